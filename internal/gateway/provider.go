package gateway

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Provider はLLMプロバイダの呼び出し口。
type Provider interface {
	// Name はログとメトリクスに使うプロバイダ名を返す。
	Name() string
	// Complete はテキストに対する応答を生成する。
	Complete(ctx context.Context, text string) (*Result, error)
}

// Result はプロバイダまたはローカル処理の実行結果。
type Result struct {
	// Content は応答本文。
	Content string `json:"content"`
	// Source はローカル処理の場合の応答元。
	Source string `json:"source,omitempty"`
	// Model は応答したモデル名。
	Model string `json:"model,omitempty"`
	// CostEstimated は推定コスト（USD）。
	CostEstimated float64 `json:"cost_estimated,omitempty"`
	// Note は経路に関する補足。
	Note string `json:"note,omitempty"`
}

// simulatedPreviewLength はシミュレーション応答に埋め込む入力の文字数。
const simulatedPreviewLength = 20

// Simulated は外部APIを呼ばずに固定形式の応答を返すプロバイダ。
type Simulated struct {
	name   string
	model  string
	prefix string
	cost   float64
}

// NewSimulatedDeepSeek はDeepSeekのシミュレーションを生成する。
func NewSimulatedDeepSeek() *Simulated {
	return &Simulated{name: "deepseek", model: "deepseek-r1", prefix: "[DEEPSEEK REASONING] Processed: ", cost: 0.002}
}

// NewSimulatedGemini はGemini Proのシミュレーションを生成する。
func NewSimulatedGemini() *Simulated {
	return &Simulated{name: "google", model: "gemini-pro", prefix: "[GEMINI PRO] Answered: ", cost: 0.001}
}

// NewSimulatedGPT5 はGPT-5のシミュレーションを生成する。
func NewSimulatedGPT5() *Simulated {
	return &Simulated{name: "openai", model: "gpt-5-preview", prefix: "[GPT-5 ANSWER] Perfect response to: ", cost: 0.025}
}

// Name はプロバイダ名を返す。
func (s *Simulated) Name() string {
	return s.name
}

// Complete は入力の先頭20文字を含む固定形式の応答を返す。
func (s *Simulated) Complete(ctx context.Context, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return &Result{
		Content:       s.prefix + head(text, simulatedPreviewLength) + "...",
		Model:         s.model,
		CostEstimated: s.cost,
	}, nil
}

// head は先頭n文字（rune数）を返す。
func head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
