package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAPIKey は Authorization: Bearer <key> を検証するミドルウェアを返します。
// 同じIPから失敗が続いた場合は一定時間 429 を返します。
func (m *Manager) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if retryAfter := m.checkLock(ip); retryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "too many invalid api keys, try again later",
			})
			return
		}

		key, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="textforge"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "missing bearer api key",
			})
			return
		}

		if !m.Verify(key) {
			remaining := m.recordFailure(ip)
			c.Header("WWW-Authenticate", `Bearer realm="textforge", error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail":            "invalid api key",
				"remainingAttempts": remaining,
			})
			return
		}

		m.resetAttempts(ip)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
