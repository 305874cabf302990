package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"negentropy-api/pkg/llm"
)

const memoryCollectionName = "negentropy_conversations"

// memoryRecallLimit 回答生成時に参照する過去会話の件数
const memoryRecallLimit = 3

// MemoryService 過去の会話をQdrantに保存して類似検索する会話記憶ストア。
// 任意機能であり、QdrantやEmbedding APIが使えない環境では生成自体をスキップする。
type MemoryService struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	llm         *llm.Client
}

// NewMemoryService QdrantへのgRPC接続を確立して会話記憶ストアを初期化します。
// 選択中のLLMプロバイダーがEmbeddingを提供しない場合はErrEmbeddingUnsupportedを返す。
func NewMemoryService(llmClient *llm.Client, qdrantURL, qdrantAPIKey string) (*MemoryService, error) {
	if llmClient.Provider() == llm.ProviderAnthropic {
		return nil, llm.ErrEmbeddingUnsupported
	}

	// APIキーの有無で、Cloud接続(TLS+APIキー)とローカル接続(非セキュア)を切り替える
	var dialOpts []grpc.DialOption
	if qdrantAPIKey != "" {
		creds := credentials.NewTLS(&tls.Config{})
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))

		authInterceptor := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "api-key", qdrantAPIKey)
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(authInterceptor))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(qdrantURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("QdrantへのgRPCクライアント作成に失敗: %w", err)
	}

	s := &MemoryService{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		llm:         llmClient,
	}
	if err := s.ensureCollection(); err != nil {
		return nil, err
	}
	return s, nil
}

// embeddingDimension プロバイダーごとのEmbeddingベクトルの次元数
func (s *MemoryService) embeddingDimension() uint64 {
	if s.llm.Provider() == llm.ProviderOpenAI {
		return 1536 // text-embedding-3-small
	}
	return 768 // text-embedding-004
}

func (s *MemoryService) ensureCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("Qdrantのコレクションリスト取得に失敗: %w", err)
	}
	for _, collection := range res.GetCollections() {
		if collection.GetName() == memoryCollectionName {
			return nil
		}
	}

	log.Printf("コレクション '%s' が存在しないため、新規作成します。", memoryCollectionName)
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: memoryCollectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     s.embeddingDimension(),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Qdrantのコレクション作成に失敗: %w", err)
	}
	return nil
}

// Remember 質問と回答のペアをベクトル化して保存します。
func (s *MemoryService) Remember(ctx context.Context, tenantID, query, answer string) error {
	text := fmt.Sprintf("Q: %s\nA: %s", query, answer)
	vector, err := s.llm.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("会話のベクトル化に失敗: %w", err)
	}

	payload := map[string]*qdrant.Value{
		"tenant_id": {Kind: &qdrant.Value_StringValue{StringValue: tenantID}},
		"query":     {Kind: &qdrant.Value_StringValue{StringValue: query}},
		"answer":    {Kind: &qdrant.Value_StringValue{StringValue: answer}},
		"timestamp": {Kind: &qdrant.Value_StringValue{StringValue: time.Now().Format(time.RFC3339)}},
	}

	waitUpsert := true
	_, err = s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: memoryCollectionName,
		Wait:           &waitUpsert,
		Points: []*qdrant.PointStruct{
			{
				Id: &qdrant.PointId{
					PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.New().String()},
				},
				Vectors: &qdrant.Vectors{
					VectorsOptions: &qdrant.Vectors_Vector{
						Vector: &qdrant.Vector{Data: vector},
					},
				},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Qdrantへの会話保存に失敗: %w", err)
	}
	return nil
}

// Recall クエリに類似した自テナントの過去会話をテキストとして返します。
// 該当が無い場合は空文字列。
func (s *MemoryService) Recall(ctx context.Context, tenantID, query string) (string, error) {
	vector, err := s.llm.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("クエリのベクトル化に失敗: %w", err)
	}

	// 他テナントの会話は検索対象に含めない
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "tenant_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: tenantID},
						},
					},
				},
			},
		},
	}

	withPayload := true
	result, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: memoryCollectionName,
		Vector:         vector,
		Limit:          memoryRecallLimit,
		Filter:         filter,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: withPayload}},
	})
	if err != nil {
		return "", fmt.Errorf("Qdrantでの会話検索に失敗: %w", err)
	}

	var b strings.Builder
	for _, point := range result.GetResult() {
		payload := point.GetPayload()
		q := payload["query"].GetStringValue()
		a := payload["answer"].GetStringValue()
		if q == "" && a == "" {
			continue
		}
		fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", q, a)
	}
	return b.String(), nil
}
