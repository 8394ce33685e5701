package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/llmrouter/internal/engine"
	"github.com/nao1215/llmrouter/pkg/httpclient"
	"go.uber.org/zap"
)

const (
	// staticContent はローカル処理時の応答本文。
	staticContent = "ANTIGRAVITY_STATIC_RESPONSE"
	// staticSource はローカル処理時の応答元。
	staticSource = "static_rules"
	// staticNote はローカル処理時の補足。
	staticNote = "Traffic handled locally. No LLM cost."
	// noteDeepSeekSufficient はウォーターフォールがDeepSeekで完結した場合の補足。
	noteDeepSeekSufficient = "Waterfall: DeepSeek sufficient."
	// noteEscalated はウォーターフォールがGPT-5に昇格した場合の補足。
	noteEscalated = "Waterfall: Escalated to GPT-5."
)

// ProviderConfig はリモートプロバイダの接続設定。
// APIURLとAPIKeyが両方設定されている場合のみリモート呼び出しを行う。
type ProviderConfig struct {
	// APIURL はOpenAI互換APIのベースURL。
	APIURL string
	// APIKey はBearerトークンとして送るAPIキー。
	APIKey string
	// Model はリクエストに指定するモデル名。
	Model string
}

// remote はリモート呼び出しの設定が揃っているかどうかを返す。
func (c ProviderConfig) remote() bool {
	return c.APIURL != "" && c.APIKey != ""
}

// Config はゲートウェイが使うプロバイダの設定。
type Config struct {
	// DeepSeek はDeepSeekの設定（DEEPSEEK_API_URL, DEEPSEEK_API_KEY）。
	DeepSeek ProviderConfig
	// Google はGeminiの設定（GOOGLE_API_URL, GOOGLE_API_KEY）。
	Google ProviderConfig
	// OpenAI はGPT-5の設定（OPENAI_API_URL, OPENAI_API_KEY）。
	OpenAI ProviderConfig
}

// Providers は経路ごとに使うプロバイダの組。
type Providers struct {
	DeepSeek Provider
	Google   Provider
	GPT5     Provider
}

// NewProviders は設定からプロバイダを組み立てる。
// 設定が揃わないプロバイダはシミュレーションになる。
func NewProviders(cfg Config) Providers {
	return Providers{
		DeepSeek: pick(cfg.DeepSeek, NewSimulatedDeepSeek(), "deepseek", "deepseek-reasoner", 0.002),
		Google:   pick(cfg.Google, NewSimulatedGemini(), "google", "gemini-pro", 0.001),
		GPT5:     pick(cfg.OpenAI, NewSimulatedGPT5(), "openai", "gpt-5-preview", 0.025),
	}
}

// pick は設定に応じてリモートかシミュレーションのプロバイダを返す。
func pick(cfg ProviderConfig, simulated Provider, name, defaultModel string, cost float64) Provider {
	if !cfg.remote() {
		return simulated
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return NewRemote(name, model, cost, httpclient.New(cfg.APIURL, httpclient.WithBearerToken(cfg.APIKey)))
}

// Response はゲートウェイの実行結果。
type Response struct {
	// RouteDecision はエンジンの判定結果。
	RouteDecision engine.Decision `json:"route_decision"`
	// ExecutionResult は実行結果。未知の経路の場合はnull。
	ExecutionResult *Result `json:"execution_result"`
	// ProviderLatencyMS はプロバイダ呼び出しにかかった時間（ミリ秒）。
	ProviderLatencyMS float64 `json:"provider_latency_ms"`
}

// Observer はプロバイダ呼び出しの結果を受け取る。メトリクス記録に使う。
type Observer func(provider string, elapsed time.Duration, err error)

// Gateway は判定結果に従ってプロバイダを呼び出す。
type Gateway struct {
	providers Providers
	confident func(*Result) bool
	observe   Observer
	logger    *zap.Logger
}

// Option はGatewayの生成オプション。
type Option func(*Gateway)

// WithLogger はログ出力先を設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithConfidence はDeepSeekの結果で十分かどうかの判定関数を差し替える。
func WithConfidence(fn func(*Result) bool) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.confident = fn
		}
	}
}

// WithObserver はプロバイダ呼び出しごとに呼ばれる関数を設定する。
func WithObserver(fn Observer) Option {
	return func(g *Gateway) {
		g.observe = fn
	}
}

// New は新しいゲートウェイを生成する。
func New(providers Providers, opts ...Option) *Gateway {
	g := &Gateway{
		providers: providers,
		confident: hasContent,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// hasContent は応答本文が空でなければ十分とみなす既定の判定。
func hasContent(r *Result) bool {
	return r != nil && r.Content != ""
}

// Execute は判定結果の経路でテキストを処理する。
// 各プロバイダ呼び出しには判定結果のtimeout_msが適用される。
func (g *Gateway) Execute(ctx context.Context, decision engine.Decision, text string) (*Response, error) {
	resp := &Response{RouteDecision: decision}
	start := time.Now()

	var err error
	switch decision.RouteSelected {
	case engine.RouteAntigravity:
		resp.ExecutionResult = &Result{Content: staticContent, Source: staticSource, Note: staticNote}
	case engine.RouteDeepSeek:
		resp.ExecutionResult, err = g.call(ctx, g.providers.DeepSeek, decision.TimeoutMS, text)
	case engine.RouteGoogle:
		resp.ExecutionResult, err = g.call(ctx, g.providers.Google, decision.TimeoutMS, text)
	case engine.RouteDeepSeekThenGPT5:
		resp.ExecutionResult, err = g.waterfall(ctx, decision.TimeoutMS, text)
	default:
		g.logger.Warn("未知の経路のため実行しません", zap.String("route", string(decision.RouteSelected)))
	}
	if err != nil {
		return nil, err
	}

	resp.ProviderLatencyMS = float64(time.Since(start).Microseconds()) / 1000
	return resp, nil
}

// waterfall はDeepSeekで処理し、確信が持てないか失敗した場合にGPT-5へ昇格する。
func (g *Gateway) waterfall(ctx context.Context, timeoutMS int, text string) (*Result, error) {
	result, err := g.call(ctx, g.providers.DeepSeek, timeoutMS, text)
	if err == nil && g.confident(result) {
		result.Note = noteDeepSeekSufficient
		return result, nil
	}
	if err != nil {
		g.logger.Warn("DeepSeekの呼び出しに失敗したためGPT-5に昇格します", zap.Error(err))
	}

	result, err = g.call(ctx, g.providers.GPT5, timeoutMS, text)
	if err != nil {
		return nil, err
	}
	result.Note = noteEscalated
	return result, nil
}

// call はタイムアウトを適用してプロバイダを呼び出す。
func (g *Gateway) call(ctx context.Context, p Provider, timeoutMS int, text string) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("プロバイダが設定されていません")
	}
	if timeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	result, err := p.Complete(ctx, text)
	elapsed := time.Since(start)
	if g.observe != nil {
		g.observe(p.Name(), elapsed, err)
	}
	if err != nil {
		return nil, err
	}

	g.logger.Debug("プロバイダ呼び出し完了",
		zap.String("provider", p.Name()),
		zap.String("model", result.Model),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}
