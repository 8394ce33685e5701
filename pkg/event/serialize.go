package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownType はペイロードの型が定義されていないイベント種別の場合のエラー。
var ErrUnknownType = errors.New("未知のイベント種別です")

// Option はNewのオプション。
type Option func(*Event)

// WithCorrelationID は呼び出し元のリクエストIDを設定する。
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		e.CorrelationID = id
	}
}

// New は新しいイベントを生成する。dataはJSONにシリアライズされる。
func New(aggregateID string, aggregateType AggregateType, eventType Type, version int64, data any, opts ...Option) (*Event, error) {
	if aggregateID == "" {
		return nil, fmt.Errorf("AggregateIDが空です")
	}
	if version <= 0 {
		return nil, fmt.Errorf("バージョンは1以上で指定してください: %d", version)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%sのシリアライズに失敗: %w", eventType, err)
	}

	ev := &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		Version:       version,
		CreatedAt:     time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev, nil
}

// DecodeData はイベントのDataをTにデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("%s（id=%s）のデシリアライズに失敗: %w", e.EventType, e.ID, err)
	}
	return &data, nil
}

// Payload はイベント種別に対応する型でDataを復元する。
// 戻り値は *RouteDecidedData, *RouteExecutedData, *RouteFailedData のいずれか。
func (e *Event) Payload() (any, error) {
	switch e.EventType {
	case TypeRouteDecided:
		return DecodeData[RouteDecidedData](e)
	case TypeRouteExecuted:
		return DecodeData[RouteExecutedData](e)
	case TypeRouteFailed:
		return DecodeData[RouteFailedData](e)
	}
	return nil, fmt.Errorf("%q: %w", e.EventType, ErrUnknownType)
}
