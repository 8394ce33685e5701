package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/llmrouter/internal/engine"
)

// fakeProvider はテスト用のプロバイダ。呼び出し回数と受け取ったコンテキストを記録する。
type fakeProvider struct {
	name   string
	result *Result
	err    error

	mu       sync.Mutex
	calls    int
	deadline time.Time
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, _ string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.deadline, _ = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

// simulatedProviders はシミュレーションのみのプロバイダ組を返す。
func simulatedProviders() Providers {
	return NewProviders(Config{})
}

// TestExecute は経路ごとの実行を検証する。
func TestExecute(t *testing.T) {
	t.Parallel()

	text := "explicame la diferencia entre planes"
	tests := []struct {
		name        string
		route       engine.Route
		wantContent string
		wantModel   string
		wantSource  string
		wantNote    string
		wantCost    float64
	}{
		{
			name:        "ANTIGRAVITYはローカルで応答すること",
			route:       engine.RouteAntigravity,
			wantContent: "ANTIGRAVITY_STATIC_RESPONSE",
			wantSource:  "static_rules",
			wantNote:    "Traffic handled locally. No LLM cost.",
		},
		{
			name:        "DEEPSEEKはDeepSeekで応答すること",
			route:       engine.RouteDeepSeek,
			wantContent: "[DEEPSEEK REASONING] Processed: explicame la diferen...",
			wantModel:   "deepseek-r1",
			wantCost:    0.002,
		},
		{
			name:        "GOOGLEはGeminiで応答すること",
			route:       engine.RouteGoogle,
			wantContent: "[GEMINI PRO] Answered: explicame la diferen...",
			wantModel:   "gemini-pro",
			wantCost:    0.001,
		},
		{
			name:        "DEEPSEEK_THEN_GPT5はDeepSeekで完結すること",
			route:       engine.RouteDeepSeekThenGPT5,
			wantContent: "[DEEPSEEK REASONING] Processed: explicame la diferen...",
			wantModel:   "deepseek-r1",
			wantNote:    "Waterfall: DeepSeek sufficient.",
			wantCost:    0.002,
		},
	}

	g := New(simulatedProviders())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := engine.Decision{RouteSelected: tt.route, TimeoutMS: 8000}
			resp, err := g.Execute(context.Background(), decision, text)
			if err != nil {
				t.Fatalf("Execute()でエラーが発生: %v", err)
			}
			if resp.RouteDecision.RouteSelected != tt.route {
				t.Errorf("RouteDecision.RouteSelected = %q, want %q", resp.RouteDecision.RouteSelected, tt.route)
			}
			got := resp.ExecutionResult
			if got == nil {
				t.Fatal("ExecutionResultがnil")
			}
			if got.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", got.Content, tt.wantContent)
			}
			if got.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", got.Model, tt.wantModel)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if got.Note != tt.wantNote {
				t.Errorf("Note = %q, want %q", got.Note, tt.wantNote)
			}
			if got.CostEstimated != tt.wantCost {
				t.Errorf("CostEstimated = %v, want %v", got.CostEstimated, tt.wantCost)
			}
			if resp.ProviderLatencyMS < 0 {
				t.Errorf("ProviderLatencyMS = %v, want >= 0", resp.ProviderLatencyMS)
			}
		})
	}

	t.Run("未知の経路は実行結果がnullになること", func(t *testing.T) {
		t.Parallel()

		resp, err := g.Execute(context.Background(), engine.Decision{RouteSelected: "UNKNOWN"}, text)
		if err != nil {
			t.Fatalf("Execute()でエラーが発生: %v", err)
		}
		if resp.ExecutionResult != nil {
			t.Errorf("ExecutionResult = %+v, want nil", resp.ExecutionResult)
		}

		raw, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("JSONへの変換に失敗: %v", err)
		}
		if !strings.Contains(string(raw), `"execution_result":null`) {
			t.Errorf("JSON = %s, execution_result:null を含むべき", raw)
		}
	})
}

// TestExecuteWaterfall はウォーターフォールの昇格を検証する。
func TestExecuteWaterfall(t *testing.T) {
	t.Parallel()

	decision := engine.Decision{RouteSelected: engine.RouteDeepSeekThenGPT5, TimeoutMS: 2000}

	t.Run("確信が持てない場合はGPT-5に昇格すること", func(t *testing.T) {
		t.Parallel()

		deepseek := &fakeProvider{name: "deepseek", result: &Result{Content: "tal vez", Model: "deepseek-r1"}}
		gpt5 := &fakeProvider{name: "openai", result: &Result{Content: "respuesta", Model: "gpt-5-preview"}}
		g := New(Providers{DeepSeek: deepseek, GPT5: gpt5}, WithConfidence(func(*Result) bool { return false }))

		resp, err := g.Execute(context.Background(), decision, "texto")
		if err != nil {
			t.Fatalf("Execute()でエラーが発生: %v", err)
		}
		if resp.ExecutionResult.Model != "gpt-5-preview" {
			t.Errorf("Model = %q, want %q", resp.ExecutionResult.Model, "gpt-5-preview")
		}
		if resp.ExecutionResult.Note != "Waterfall: Escalated to GPT-5." {
			t.Errorf("Note = %q, want %q", resp.ExecutionResult.Note, "Waterfall: Escalated to GPT-5.")
		}
		if deepseek.calls != 1 || gpt5.calls != 1 {
			t.Errorf("呼び出し回数 = (deepseek %d, gpt5 %d), want (1, 1)", deepseek.calls, gpt5.calls)
		}
	})

	t.Run("DeepSeekが失敗した場合はGPT-5に昇格すること", func(t *testing.T) {
		t.Parallel()

		deepseek := &fakeProvider{name: "deepseek", err: errors.New("unavailable")}
		gpt5 := &fakeProvider{name: "openai", result: &Result{Content: "respuesta", Model: "gpt-5-preview"}}
		g := New(Providers{DeepSeek: deepseek, GPT5: gpt5})

		resp, err := g.Execute(context.Background(), decision, "texto")
		if err != nil {
			t.Fatalf("Execute()でエラーが発生: %v", err)
		}
		if resp.ExecutionResult.Note != "Waterfall: Escalated to GPT-5." {
			t.Errorf("Note = %q, want %q", resp.ExecutionResult.Note, "Waterfall: Escalated to GPT-5.")
		}
	})

	t.Run("両方失敗した場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		g := New(Providers{
			DeepSeek: &fakeProvider{name: "deepseek", err: errors.New("unavailable")},
			GPT5:     &fakeProvider{name: "openai", err: errors.New("quota exceeded")},
		})
		if _, err := g.Execute(context.Background(), decision, "texto"); err == nil {
			t.Error("エラーが返されるべき")
		}
	})

	t.Run("空の応答は確信なしとみなされること", func(t *testing.T) {
		t.Parallel()

		deepseek := &fakeProvider{name: "deepseek", result: &Result{Model: "deepseek-r1"}}
		gpt5 := &fakeProvider{name: "openai", result: &Result{Content: "respuesta", Model: "gpt-5-preview"}}
		resp, err := New(Providers{DeepSeek: deepseek, GPT5: gpt5}).Execute(context.Background(), decision, "texto")
		if err != nil {
			t.Fatalf("Execute()でエラーが発生: %v", err)
		}
		if gpt5.calls != 1 {
			t.Errorf("GPT-5の呼び出し回数 = %d, want %d", gpt5.calls, 1)
		}
		if resp.ExecutionResult.Content != "respuesta" {
			t.Errorf("Content = %q, want %q", resp.ExecutionResult.Content, "respuesta")
		}
	})
}

// TestExecuteTimeout はプロバイダ呼び出しへのタイムアウト適用を検証する。
func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	deepseek := &fakeProvider{name: "deepseek", result: &Result{Content: "ok"}}
	var observed []string
	g := New(Providers{DeepSeek: deepseek}, WithObserver(func(provider string, _ time.Duration, err error) {
		if err == nil {
			observed = append(observed, provider)
		}
	}))

	before := time.Now()
	if _, err := g.Execute(context.Background(), engine.Decision{RouteSelected: engine.RouteDeepSeek, TimeoutMS: 2000}, "x"); err != nil {
		t.Fatalf("Execute()でエラーが発生: %v", err)
	}
	if deepseek.deadline.IsZero() {
		t.Fatal("期限が設定されていない")
	}
	if d := deepseek.deadline.Sub(before); d > 2*time.Second+time.Second || d <= 0 {
		t.Errorf("期限までの時間 = %v, want 約2s", d)
	}
	if len(observed) != 1 || observed[0] != "deepseek" {
		t.Errorf("observed = %v, want [deepseek]", observed)
	}
}

// TestExecuteMissingProvider はプロバイダ未設定時の挙動を検証する。
func TestExecuteMissingProvider(t *testing.T) {
	t.Parallel()

	if _, err := New(Providers{}).Execute(context.Background(), engine.Decision{RouteSelected: engine.RouteGoogle}, "x"); err == nil {
		t.Error("エラーが返されるべき")
	}
}

// TestNewProviders は設定からのプロバイダ選択を検証する。
func TestNewProviders(t *testing.T) {
	t.Parallel()

	p := NewProviders(Config{
		DeepSeek: ProviderConfig{APIURL: "https://api.deepseek.example/v1", APIKey: "k"},
		Google:   ProviderConfig{APIURL: "https://gemini.example/v1"},
	})
	if _, ok := p.DeepSeek.(*Remote); !ok {
		t.Errorf("DeepSeek = %T, want *Remote", p.DeepSeek)
	}
	if _, ok := p.Google.(*Simulated); !ok {
		t.Errorf("Google = %T, want *Simulated（キー未設定）", p.Google)
	}
	if _, ok := p.GPT5.(*Simulated); !ok {
		t.Errorf("GPT5 = %T, want *Simulated", p.GPT5)
	}
}
