// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/internal/service"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求，包括同步 HTTP 与 WebSocket 流式两条路径。
type ChatHandler struct {
	chatService service.ChatService
	// 每连接停止标志
	stopFlags sync.Map // key: session pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理 POST /chat：接收一条用户消息，返回完整的带引用答案。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	resp, err := h.chatService.Handle(c.Request.Context(), req.Message, req.ConversationID)
	if err != nil {
		log.Errorf("处理聊天请求失败: %v", err)
		// 内部细节不下发，失败轮次已记录在对话中
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process your message, please try again"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Handle 处理一个传入的 WebSocket 连接，每条文本消息触发一轮流式问答。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	defer h.stopFlags.Delete(sessionKey(conn))

	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())

	// 对话 ID 跨消息保持，由首轮响应建立
	conversationID := c.Query("conversation_id")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		// JSON 控制帧: {"type":"stop"} 中断当前流
		var ctrl struct {
			Type           string `json:"type"`
			Message        string `json:"message"`
			ConversationID string `json:"conversation_id"`
		}
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &ctrl); err == nil && ctrl.Type == "stop" {
				h.stopFlags.Store(sessionKey(conn), true)
				continue
			}
		}

		query := string(message)
		if ctrl.Message != "" {
			query = ctrl.Message
		}
		if ctrl.ConversationID != "" {
			conversationID = ctrl.ConversationID
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}
		// 清除旧标志
		h.stopFlags.Delete(sessionKey(conn))

		err = h.chatService.StreamResponse(c.Request.Context(), query, conversationID, conn, shouldStop)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]string{"error": "failed to process your message, please try again"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}
	}
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
