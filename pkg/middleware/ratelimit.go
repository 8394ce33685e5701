package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit はトークンバケットでリクエスト数を制限するGinミドルウェアを返す。
// rpsが0以下の場合は制限しない。burstが0以下の場合はrpsを切り上げた値を使用する。
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rps)
		if float64(burst) < rps {
			burst++
		}
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", strconv.Itoa(1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "リクエスト数が上限を超えました",
			})
			return
		}
		c.Next()
	}
}
