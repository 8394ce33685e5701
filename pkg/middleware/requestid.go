package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを受け渡すHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID = "request_id"

// maxRequestIDLength は呼び出し元から受け付けるリクエストIDの最大長。
const maxRequestIDLength = 128

// RequestID はリクエストIDを払い出すGinミドルウェアを返す。
// 呼び出し元がX-Request-IDを指定した場合はそれを引き継ぎ、無ければUUIDを採番する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
// RequestIDミドルウェアが適用されていない場合は空文字列を返す。
func GetRequestID(c *gin.Context) string {
	requestID, _ := c.Get(contextKeyRequestID)
	if id, ok := requestID.(string); ok {
		return id
	}
	return ""
}
