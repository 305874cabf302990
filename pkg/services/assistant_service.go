package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"negentropy-api/pkg/llm"
	"negentropy-api/pkg/models"
)

// conversationMemory 会話記憶ストアのインターフェース。実装はQdrantベースだが
// 未設定の場合はnilのまま動作し、記憶機能なしで応答を返す。
type conversationMemory interface {
	Recall(ctx context.Context, tenantID, query string) (string, error)
	Remember(ctx context.Context, tenantID, query, answer string) error
}

// AssistantService 業務コンテキストとLLMを組み合わせたAIアシスタント。
// LLM障害時はキーワードベースのフォールバック回答に切り替わり、
// 呼び出し側にエラーを返すことはない。
type AssistantService struct {
	llm          *llm.Client
	llmInitError error
	contextSvc   *ContextService
	memory       conversationMemory
	systemPrompt string
	monitoring   *MonitoringService
}

// NewAssistantService 新しいアシスタントサービスを作成します。
// clientがnilの場合（資格情報未設定）、initErrが設定エラーとして全回答に反映される。
func NewAssistantService(client *llm.Client, initErr error, contextSvc *ContextService, systemPrompt string, monitoring *MonitoringService) *AssistantService {
	return &AssistantService{
		llm:          client,
		llmInitError: initErr,
		contextSvc:   contextSvc,
		systemPrompt: systemPrompt,
		monitoring:   monitoring,
	}
}

// SetMemory 会話記憶ストアを設定します（任意）。
func (s *AssistantService) SetMemory(memory conversationMemory) {
	s.memory = memory
}

// Query 自然言語の質問に業務データを踏まえて回答します。
func (s *AssistantService) Query(ctx context.Context, tenantID, query string, history []llm.Message) *models.AssistantAnswer {
	bc := s.contextSvc.BuildContext(ctx, tenantID)
	contextUsed := models.ContextUsed{
		InventoryItems:     bc.Inventory.TotalItems,
		CriticalItems:      len(bc.Inventory.CriticalItems),
		SalesThisMonth:     bc.Sales.ThisMonth,
		DonationsThisMonth: bc.Donations.TotalThisMonth,
	}

	if s.llm == nil {
		answer := s.configErrorAnswer(query)
		answer.ContextUsed = contextUsed
		return answer
	}

	messages := make([]llm.Message, 0, len(history)+4)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt},
		llm.Message{Role: llm.RoleSystem, Content: "# Current Business Data\n\n" + ContextToText(bc)},
	)

	// 過去の会話からの関連記憶（任意機能、失敗しても回答は続行）
	if s.memory != nil {
		if recalled, err := s.memory.Recall(ctx, tenantID, query); err == nil && recalled != "" {
			messages = append(messages, llm.Message{
				Role:    llm.RoleSystem,
				Content: "# Relevant Past Conversations\n\n" + recalled,
			})
		}
	}

	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	log.Printf("[Assistant] クエリを処理中 tenant=%s provider=%s model=%s", tenantID, s.llm.Provider(), s.llm.Model())

	resp, err := s.llm.Chat(ctx, messages, llm.Options{MaxTokens: 1500, Temperature: 0.7})
	if err != nil {
		log.Printf("⚠️ [Assistant] LLM呼び出しに失敗: %v", err)
		fallback := generateFallbackAnswer(query)
		fallback.Answer = fmt.Sprintf("⚠️ **Debug Error:** %s\n\n%s", err.Error(), fallback.Answer)
		fallback.Error = err.Error()
		fallback.ContextUsed = contextUsed
		return fallback
	}

	usage := resp.Usage
	if usage == nil {
		// プロバイダーがusageを省略した場合の概算（テレメトリ用途のみ）
		usage = &llm.Usage{TotalTokens: llm.EstimateTokens(resp.Content)}
	}
	cost := s.llm.EstimateCost(usage.PromptTokens, usage.CompletionTokens)
	log.Printf("[Assistant] 使用量: %dトークン, コスト: $%.4f", usage.TotalTokens, cost)

	if s.monitoring != nil {
		s.monitoring.RecordLLMUsage(string(s.llm.Provider()), usage.TotalTokens, cost)
	}

	answer := &models.AssistantAnswer{
		Answer:            resp.Content,
		ContextUsed:       contextUsed,
		ActionableIntents: detectIntents(resp.Content),
		Metadata: &models.AssistantMetadata{
			Provider: string(s.llm.Provider()),
			Model:    resp.Model,
			Tokens:   usage.TotalTokens,
			CostUSD:  cost,
		},
	}

	if s.memory != nil {
		if err := s.memory.Remember(ctx, tenantID, query, resp.Content); err != nil {
			log.Printf("⚠️ [Assistant] 会話記憶の保存に失敗: %v", err)
		}
	}
	return answer
}

// StaticRecommendation LLM障害時の固定レコメンデーション
type StaticRecommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ActionLabel string `json:"action_label"`
	Impact      string `json:"impact"`
}

// RecommendationResult 能動的レコメンデーションの結果
type RecommendationResult struct {
	RecommendationsText string                    `json:"recommendations_text,omitempty"`
	Recommendations     []StaticRecommendation    `json:"recommendations,omitempty"`
	Metadata            *models.AssistantMetadata `json:"metadata,omitempty"`
	Fallback            bool                      `json:"fallback,omitempty"`
}

// RecommendAction 業務データに基づく能動的なアクション提案を生成します。
func (s *AssistantService) RecommendAction(ctx context.Context, tenantID string) *RecommendationResult {
	if s.llm == nil {
		return staticRecommendations()
	}

	bc := s.contextSvc.BuildContext(ctx, tenantID)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.systemPrompt},
		{
			Role: llm.RoleUser,
			Content: "Based on the following business data, provide 2-3 specific, high-impact actions I should take right now to reduce waste and improve profitability. Format each as:\n\n" +
				"**Title**\nDescription (1-2 sentences)\nAction: (exact button label)\nImpact: (high/medium/low)\n\n---\n\n" + ContextToText(bc),
		},
	}

	resp, err := s.llm.Chat(ctx, messages, llm.Options{MaxTokens: 1000, Temperature: 0.8})
	if err != nil {
		log.Printf("⚠️ [Assistant] レコメンデーション生成に失敗: %v", err)
		return staticRecommendations()
	}

	usage := resp.Usage
	if usage == nil {
		usage = &llm.Usage{TotalTokens: llm.EstimateTokens(resp.Content)}
	}
	cost := s.llm.EstimateCost(usage.PromptTokens, usage.CompletionTokens)
	log.Printf("[Assistant] レコメンデーション生成完了, コスト: $%.4f", cost)

	return &RecommendationResult{
		RecommendationsText: resp.Content,
		Metadata: &models.AssistantMetadata{
			Provider: string(s.llm.Provider()),
			Model:    resp.Model,
			Tokens:   usage.TotalTokens,
			CostUSD:  cost,
		},
	}
}

func staticRecommendations() *RecommendationResult {
	return &RecommendationResult{
		Recommendations: []StaticRecommendation{
			{
				Type:        "markdown",
				Title:       "Flash Sale Opportunity",
				Description: "Review items expiring soon and apply discounts",
				ActionLabel: "View Inventory",
				Impact:      "high",
			},
		},
		Fallback: true,
	}
}

// configErrorAnswer 資格情報未設定の場合の回答
func (s *AssistantService) configErrorAnswer(query string) *models.AssistantAnswer {
	message := "Configuration Error: No LLM API Key found. Please set GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY."
	answer := generateFallbackAnswer(query)
	answer.Answer = fmt.Sprintf("⚠️ **Debug Error:** %s\n\n%s", message, answer.Answer)
	answer.Error = message
	answer.IsConfigError = true
	return answer
}

// detectIntents 回答テキストから実行可能アクションを検出します。
func detectIntents(answer string) []models.ActionableIntent {
	lower := strings.ToLower(answer)
	intents := []models.ActionableIntent{}

	if strings.Contains(lower, "generar") && strings.Contains(lower, "plan") {
		intents = append(intents, models.ActionableIntent{
			Type:     "generate_prevention_plan",
			Label:    "Generar Plan de Prevención",
			Endpoint: "/legal-module/generate-prevention-plan",
		})
	}
	if strings.Contains(lower, "donar") || strings.Contains(lower, "donate") {
		intents = append(intents, models.ActionableIntent{
			Type:     "view_donations",
			Label:    "Ver Candidatos para Donación",
			Endpoint: "/legal-module/donations-detect",
		})
	}
	return intents
}

// generateFallbackAnswer LLMが使えない場合のキーワードベース回答
func generateFallbackAnswer(query string) *models.AssistantAnswer {
	lower := strings.ToLower(query)
	answer := "Lo siento, el asistente AI está temporalmente no disponible. Por favor, intenta de nuevo en unos momentos."

	switch {
	case strings.Contains(lower, "desperdicio") || strings.Contains(lower, "waste"):
		answer = "Revisa la sección de Inventario para ver los items en riesgo de expiración. Te recomiendo aplicar descuentos o donar los productos que expiran en los próximos 3 días."
	case strings.Contains(lower, "reducir") || strings.Contains(lower, "reduce"):
		answer = "Para reducir pérdidas: 1) Aplica descuentos del 30% en productos cerca de expirar, 2) Dona excedentes a bancos de alimentos registrados."
	case strings.Contains(lower, "plan") && (strings.Contains(lower, "prevención") || strings.Contains(lower, "prevention")):
		answer = "Puedes generar un Plan de Prevención desde el módulo Legal. Incluirá tu diagnóstico actual y acciones propuestas según Ley 1/2025."
	}

	return &models.AssistantAnswer{
		Answer:            answer,
		ActionableIntents: []models.ActionableIntent{},
		Fallback:          true,
	}
}
