// Package api はルーターのHTTPアプリケーション（"api:app"）を提供する。
//
// ルーティングエンジン、v0分類器、LLMゲートウェイ、イベントストア、
// メトリクスを束ね、Ginのエンジンとしてhttp.Handlerを実装する。
// 停止時に閉じる必要のある資源を持つため、io.Closerも実装する。
//
// エンドポイント:
//   - GET  /health                          ヘルスチェック
//   - POST /route                           経路の判定と実行
//   - POST /classify                        v0分類器による分類
//   - GET  /api/v1/decisions                判定イベントの一覧（新しい順）
//   - GET  /api/v1/decisions/:request_id    リクエストIDごとのイベント
//   - GET  /metrics                         Prometheusメトリクス
package api
