// Package eventstore はルーティング判定の監査ログを保存するイベントストアを提供する。
//
// ルーティングの判定・実行・失敗をイベントとしてSQLiteに永続化する。
// イベントは不変（immutable）であり、追記のみ（append-only）で運用される。
//
// 主な機能:
//   - イベントの追記（Append）
//   - リクエストIDによるイベント取得（ListByAggregate）
//   - 新しい順のイベント一覧（ListRecent）
package eventstore
