package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeRouteRequest はルーティングリクエストを表す。
	// AggregateIDには判定ごとに採番したID（X-Decision-ID）を使用する。
	AggregateTypeRouteRequest AggregateType = "RouteRequest"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeRouteDecided はルーティングエンジンが経路を決定したことを表す。
	TypeRouteDecided Type = "RouteDecided"
	// TypeRouteExecuted はLLMゲートウェイが決定を実行したことを表す。
	TypeRouteExecuted Type = "RouteExecuted"
	// TypeRouteFailed はリクエストの処理が失敗したことを表す。
	TypeRouteFailed Type = "RouteFailed"
)

// Event は判定監査ログにおける不変のイベントレコードを表す。
// ルーティングの判定と実行結果はこの構造体としてイベントストアに永続化される。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CorrelationID は呼び出し元のリクエストID（X-Request-ID）。
	// 再送などで同じ値が複数のAggregateにまたがることがある。
	CorrelationID string `json:"correlation_id,omitempty"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// RouteDecidedData はRouteDecidedイベントのデータ。
type RouteDecidedData struct {
	// Channel はリクエストの流入チャネル（web, whatsapp, voice など）。
	Channel string `json:"channel"`
	// Product はリクエスト元のプロダクト。
	Product string `json:"product"`
	// InputPreview は入力テキストの先頭部分。
	InputPreview string `json:"input_preview"`
	// Intent は判定されたインテント。
	Intent string `json:"intent"`
	// Category は判定されたカテゴリ。
	Category string `json:"category"`
	// ComplexityScore は複雑度スコア（0-100）。
	ComplexityScore int `json:"complexity_score"`
	// RiskScore はリスクスコア（0-100）。
	RiskScore int `json:"risk_score"`
	// Route は選択された経路。
	Route string `json:"route"`
	// EstimatedCost は推定コスト（USD）。
	EstimatedCost float64 `json:"estimated_cost"`
	// FallbackUsed はコスト上限によるフォールバックが発生したかどうか。
	FallbackUsed bool `json:"fallback_used"`
	// ClientID はJWTで認証されたクライアントID。認証無効時は空。
	ClientID string `json:"client_id,omitempty"`
	// Note は適用された強制ルールの説明。
	Note string `json:"note,omitempty"`
}

// RouteExecutedData はRouteExecutedイベントのデータ。
type RouteExecutedData struct {
	// Route は実行された経路。
	Route string `json:"route"`
	// Model は応答したモデル名。静的応答の場合は空。
	Model string `json:"model,omitempty"`
	// Source は応答の生成元。
	Source string `json:"source,omitempty"`
	// ProviderLatencyMS はプロバイダ呼び出しにかかった時間（ミリ秒）。
	ProviderLatencyMS float64 `json:"provider_latency_ms"`
}

// RouteFailedData はRouteFailedイベントのデータ。
type RouteFailedData struct {
	// Reason は失敗の理由。
	Reason string `json:"reason"`
}
