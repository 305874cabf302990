package handlers

import (
	"net/http"

	"negentropy-api/pkg/llm"
	"negentropy-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// AssistantHandler はAIアシスタント関連のハンドラです。
type AssistantHandler struct {
	assistantService *services.AssistantService
}

// NewAssistantHandler は新しいAssistantHandlerを生成します。
func NewAssistantHandler(assistantService *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{
		assistantService: assistantService,
	}
}

// ConversationTurn 会話履歴の1ターン
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantQueryRequest アシスタントへの質問リクエスト
type AssistantQueryRequest struct {
	Query               string             `json:"query"`
	ConversationHistory []ConversationTurn `json:"conversation_history"`
}

// Query 業務データを踏まえたAI回答を生成します。
// LLM障害時もフォールバック回答を200で返します。
func (h *AssistantHandler) Query(c *gin.Context) {
	var req AssistantQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました: " + err.Error()})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queryは必須です"})
		return
	}

	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for _, turn := range req.ConversationHistory {
		if turn.Role != llm.RoleUser && turn.Role != llm.RoleAssistant {
			continue
		}
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	answer := h.assistantService.Query(c.Request.Context(), tenantFromRequest(c), req.Query, history)
	c.JSON(http.StatusOK, answer)
}

// RecommendAction 業務データに基づく能動的なアクション提案を返します。
func (h *AssistantHandler) RecommendAction(c *gin.Context) {
	result := h.assistantService.RecommendAction(c.Request.Context(), tenantFromRequest(c))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
