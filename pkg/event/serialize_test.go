package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("RouteDecidedDataでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := RouteDecidedData{
			Channel:         "whatsapp",
			Product:         "alex",
			InputPreview:    "hola",
			Intent:          "quick_confirmation",
			Category:        "static",
			Route:           "ANTIGRAVITY",
			EstimatedCost:   0.0001,
			ComplexityScore: 0,
		}

		before := time.Now().UTC()
		ev, err := New("req-1", AggregateTypeRouteRequest, TypeRouteDecided, 1, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev == nil {
			t.Fatal("New()がnilを返した")
		}

		// UUIDが生成されていること
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.AggregateID != "req-1" {
			t.Errorf("AggregateID = %q, want %q", ev.AggregateID, "req-1")
		}
		if ev.AggregateType != AggregateTypeRouteRequest {
			t.Errorf("AggregateType = %q, want %q", ev.AggregateType, AggregateTypeRouteRequest)
		}
		if ev.EventType != TypeRouteDecided {
			t.Errorf("EventType = %q, want %q", ev.EventType, TypeRouteDecided)
		}
		if ev.Version != 1 {
			t.Errorf("Version = %d, want %d", ev.Version, 1)
		}

		// CreatedAtが呼び出し前後の範囲内であること
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		var decoded RouteDecidedData
		if err := json.Unmarshal(ev.Data, &decoded); err != nil {
			t.Fatalf("Dataのデシリアライズに失敗: %v", err)
		}
		if decoded.Route != data.Route {
			t.Errorf("Data.Route = %q, want %q", decoded.Route, data.Route)
		}
		if decoded.Channel != data.Channel {
			t.Errorf("Data.Channel = %q, want %q", decoded.Channel, data.Channel)
		}
	})

	t.Run("イベントごとに異なるIDが採番されること", func(t *testing.T) {
		t.Parallel()

		ev1, err := New("req-2", AggregateTypeRouteRequest, TypeRouteDecided, 1, RouteDecidedData{})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		ev2, err := New("req-2", AggregateTypeRouteRequest, TypeRouteExecuted, 2, RouteExecutedData{})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev1.ID == ev2.ID {
			t.Errorf("IDが重複している: %q", ev1.ID)
		}
	})

	t.Run("AggregateIDが空の場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("", AggregateTypeRouteRequest, TypeRouteDecided, 1, RouteDecidedData{}); err == nil {
			t.Error("エラーが返されるべき")
		}
	})

	t.Run("WithCorrelationIDでリクエストIDを設定できること", func(t *testing.T) {
		t.Parallel()

		ev, err := New("dec-1", AggregateTypeRouteRequest, TypeRouteDecided, 1, RouteDecidedData{}, WithCorrelationID("req-9"))
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev.CorrelationID != "req-9" {
			t.Errorf("CorrelationID = %q, want %q", ev.CorrelationID, "req-9")
		}
	})

	t.Run("バージョンが0以下の場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("dec-1", AggregateTypeRouteRequest, TypeRouteDecided, 0, RouteDecidedData{}); err == nil {
			t.Error("エラーが返されるべき")
		}
	})

	t.Run("シリアライズできないデータの場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("req-3", AggregateTypeRouteRequest, TypeRouteFailed, 1, make(chan int)); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestDecodeData はDecodeData関数を検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("RouteExecutedDataを復元できること", func(t *testing.T) {
		t.Parallel()

		ev, err := New("req-1", AggregateTypeRouteRequest, TypeRouteExecuted, 2, RouteExecutedData{
			Route:             "DEEPSEEK",
			Model:             "deepseek-r1",
			ProviderLatencyMS: 12.5,
		})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		got, err := DecodeData[RouteExecutedData](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if got.Model != "deepseek-r1" {
			t.Errorf("Model = %q, want %q", got.Model, "deepseek-r1")
		}
		if got.ProviderLatencyMS != 12.5 {
			t.Errorf("ProviderLatencyMS = %v, want %v", got.ProviderLatencyMS, 12.5)
		}
	})

	t.Run("不正なJSONの場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		ev := &Event{Data: json.RawMessage(`{"reason":`)}
		if _, err := DecodeData[RouteFailedData](ev); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestPayload はイベント種別に応じたペイロードの復元を検証する。
func TestPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventType Type
		data      any
		check     func(t *testing.T, payload any)
	}{
		{
			name:      "RouteDecidedはRouteDecidedDataになること",
			eventType: TypeRouteDecided,
			data:      RouteDecidedData{Route: "GOOGLE"},
			check: func(t *testing.T, payload any) {
				got, ok := payload.(*RouteDecidedData)
				if !ok || got.Route != "GOOGLE" {
					t.Errorf("payload = %#v", payload)
				}
			},
		},
		{
			name:      "RouteExecutedはRouteExecutedDataになること",
			eventType: TypeRouteExecuted,
			data:      RouteExecutedData{Model: "gemini-pro"},
			check: func(t *testing.T, payload any) {
				got, ok := payload.(*RouteExecutedData)
				if !ok || got.Model != "gemini-pro" {
					t.Errorf("payload = %#v", payload)
				}
			},
		},
		{
			name:      "RouteFailedはRouteFailedDataになること",
			eventType: TypeRouteFailed,
			data:      RouteFailedData{Reason: "timeout"},
			check: func(t *testing.T, payload any) {
				got, ok := payload.(*RouteFailedData)
				if !ok || got.Reason != "timeout" {
					t.Errorf("payload = %#v", payload)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev, err := New("dec-1", AggregateTypeRouteRequest, tt.eventType, 1, tt.data)
			if err != nil {
				t.Fatalf("New()でエラーが発生: %v", err)
			}
			payload, err := ev.Payload()
			if err != nil {
				t.Fatalf("Payload()でエラーが発生: %v", err)
			}
			tt.check(t, payload)
		})
	}

	t.Run("未知の種別はErrUnknownTypeになること", func(t *testing.T) {
		t.Parallel()

		ev := &Event{EventType: "Unknown", Data: json.RawMessage(`{}`)}
		if _, err := ev.Payload(); !errors.Is(err, ErrUnknownType) {
			t.Errorf("err = %v, want ErrUnknownType", err)
		}
	})
}
