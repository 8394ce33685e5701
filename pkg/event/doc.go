// Package event はルーティング判定の監査イベントを表す型を提供する。
//
// ルーティングエンジンの判定、LLMゲートウェイの実行結果、処理の失敗を
// 不変のイベントとして表現し、イベントストアへの永続化に使用する。
package event
