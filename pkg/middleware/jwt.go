package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はこのサービスが発行するトークンのiss。
const tokenIssuer = "llmrouter"

// contextKeyClientID はGinコンテキストにクライアントIDを格納するためのキー。
const contextKeyClientID = "client_id"

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// ルーティングAPIを呼び出すクライアントを識別するために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// ClientID は呼び出し元クライアント（チャネル連携やバックエンド）の識別子。
	ClientID string `json:"client_id"`
}

// GenerateJWT はクライアントIDからJWTトークンを生成する。
// ttlが0以下の場合は24時間とする。
func GenerateJWT(secret, clientID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("署名用の秘密鍵が空です")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		ClientID: clientID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "client_id" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
		)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set(contextKeyClientID, claims.ClientID)
		c.Next()
	}
}

// GetClientID はGinコンテキストからクライアントIDを取得する。
// JWTAuthミドルウェアが適用されていない場合は空文字列を返す。
func GetClientID(c *gin.Context) string {
	clientID, _ := c.Get(contextKeyClientID)
	if id, ok := clientID.(string); ok {
		return id
	}
	return ""
}
