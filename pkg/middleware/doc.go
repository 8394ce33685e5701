// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの検証、リクエストIDの払い出し、zapによるアクセスログ、
// パニックリカバリ、CORS設定、レート制限など、ルーティングAPIで共通して
// 使用するミドルウェアを含む。
package middleware
