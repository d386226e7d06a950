package handler

import (
	"errors"
	"net/http"

	"github.com/amaankhan02/movie-maestro/internal/repository"
	"github.com/amaankhan02/movie-maestro/internal/service"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责处理对话查询请求。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// Get 处理 GET /conversation/:id：返回一段对话的完整轮次序列。
func (h *ConversationHandler) Get(c *gin.Context) {
	conversationID := c.Param("id")

	turns, err := h.conversationService.GetConversationTurns(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.Errorf("获取对话 %s 失败: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, turns)
}

// Search 处理 GET /conversations/search?q=...：全文检索历史助手回答。
func (h *ConversationHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	docs, err := h.conversationService.SearchTurns(c.Request.Context(), query)
	if err != nil {
		log.Errorf("检索历史回答失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": docs})
}
