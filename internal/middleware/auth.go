// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-forge/pkg/log"
	"resume-forge/pkg/token"
)

// ContextUserIDKey 是 gin 上下文中保存当前用户 ID 的键。
const ContextUserIDKey = "userID"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 由外部签发，这里只做校验，并把 userID 和 claims 存入上下文。
// WebSocket 连接无法设置请求头，因此也接受 ?token= 查询参数。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权信息", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnf("[Auth] token 校验失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set("claims", claims)
		c.Next()
	}
}
