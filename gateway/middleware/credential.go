package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CredentialKey is the context key holding a caller-supplied provider key.
const CredentialKey = "user_api_key"

// Credential 中间件：提取调用方自带的 provider key（X-API-Key 或 Bearer）并注入上下文
// The key is passed through to the provider untouched; nothing is validated
// here.
func Credential() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if key == "" {
			if after, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				key = strings.TrimSpace(after)
			}
		}
		if key != "" {
			c.Set(CredentialKey, key)
		}
		c.Next()
	}
}

// CallerCredential returns the key set by Credential, if any.
func CallerCredential(c *gin.Context) string {
	return c.GetString(CredentialKey)
}

// BodyLimit caps request bodies at limit bytes.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
