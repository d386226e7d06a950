package handler

import (
	"net/http"

	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthHandler 负责签发匿名会话令牌。
// 本服务没有用户账号，令牌只用于给前端会话一个可验证的句柄。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler。
func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// CreateSession 处理 POST /auth/session：签发一个新的匿名会话令牌。
func (h *AuthHandler) CreateSession(c *gin.Context) {
	sessionID := uuid.NewString()
	tokenString, err := h.jwtManager.GenerateSessionToken(sessionID)
	if err != nil {
		log.Errorf("签发会话令牌失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"token":      tokenString,
	})
}
