package middleware

import (
	"net/http"
	"strings"

	"github.com/amaankhan02/movie-maestro/pkg/token"
	"github.com/gin-gonic/gin"
)

// SessionAuthMiddleware 校验请求携带的匿名会话令牌。
// 会话鉴权是可选能力，由 server.auth_enabled 开关控制是否挂载。
func SessionAuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := jwtManager.VerifyToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session token"})
			return
		}

		c.Set("sessionID", claims.SessionID)
		c.Next()
	}
}
