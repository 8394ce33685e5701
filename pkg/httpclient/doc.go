// Package httpclient は外部APIとのJSON形式のHTTP通信を行うクライアントを提供する。
//
// LLMゲートウェイがOpenAI互換のプロバイダAPIを呼び出す際に使用する。
// Bearerトークンの付与、リクエストIDの伝播、タイムアウト設定など、
// 外部通信のパターンを統一する。
package httpclient
