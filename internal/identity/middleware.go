package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextCallerId = "callerId"
	ContextRole     = "role"
)

// AuthMiddleware 认证中间件：解析Bearer令牌并注入调用者信息
func AuthMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少访问令牌"})
			return
		}

		claims, err := svc.ParseToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的访问令牌"})
			return
		}

		c.Set(ContextCallerId, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// CallerId 从请求上下文取出调用者ID
func CallerId(c *gin.Context) string {
	return c.GetString(ContextCallerId)
}
