package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// Category はリクエストの分類。
type Category string

const (
	// CategoryStatic は定型応答で処理できる分類。
	CategoryStatic Category = "static"
	// CategoryTransactional は手続き的な処理（スロット補完など）の分類。
	CategoryTransactional Category = "transactional"
	// CategoryConversational は推論を要する会話の分類。
	CategoryConversational Category = "conversational"
	// CategoryCritical は誤答の影響が大きい分類。
	CategoryCritical Category = "critical"
)

// valid はカテゴリが既知の値かどうかを返す。
func (c Category) valid() bool {
	switch c {
	case CategoryStatic, CategoryTransactional, CategoryConversational, CategoryCritical:
		return true
	}
	return false
}

// Route はリクエストの処理経路。
type Route string

const (
	// RouteAntigravity はLLMを使わずローカルで処理する経路。
	RouteAntigravity Route = "ANTIGRAVITY"
	// RouteDeepSeek はDeepSeekで処理する経路。
	RouteDeepSeek Route = "DEEPSEEK"
	// RouteGoogle はGeminiで処理する経路。
	RouteGoogle Route = "GOOGLE"
	// RouteDeepSeekThenGPT5 はDeepSeekで処理し、確信度が低ければGPT-5に昇格する経路。
	RouteDeepSeekThenGPT5 Route = "DEEPSEEK_THEN_GPT5"
)

// EngineUsed はDecision.EngineUsedに記録する判定エンジン名。
const EngineUsed = "rules_engine"

const (
	// maxScore はスコアの上限。
	maxScore = 100
	// defaultTimeoutMS はタイムアウト未定義のチャネルに使う既定値。
	defaultTimeoutMS = 5000
	// previewLength はinput_previewに残す文字数。
	previewLength = 50
	// voiceNoiseLength は音声チャネルでノイズとみなす文字数の上限（未満）。
	voiceNoiseLength = 10
	// freePatternPrefixLength は前方一致で無料パターンとみなす文字数の上限（未満）。
	freePatternPrefixLength = 20
	// explanationWordCount はこの語数を超える未分類テキストを説明要求とみなす。
	explanationWordCount = 7
	// localCost はローカル処理に計上する名目コスト（USD）。
	localCost = 0.0001
	// defaultRegexTimeout はルールセットのパターン1回の評価に許す時間。
	defaultRegexTimeout = 100 * time.Millisecond
)

// freePatterns は短い定型文として常にローカル処理する語句。
var freePatterns = []string{
	"hola", "buenas", "buenos dias", "buenas tardes", "buenas noches",
	"chau", "adios", "hasta luego", "gracias", "muchas gracias",
	"ok", "dale", "listo", "bueno", "perfecto", "genial",
	"si", "no", "claro", "exacto", "correcto", "asi es",
	"precio", "precios", "info", "ayuda", "menu", "salir",
}

// routeCosts は経路ごとの推定コスト（USD）。
var routeCosts = map[Route]float64{
	RouteAntigravity:      0,
	RouteDeepSeek:         0.002,
	RouteDeepSeekThenGPT5: 0.025,
}

// Request はルーティング判定の入力。
type Request struct {
	// Text はユーザーの発話またはメッセージ本文。
	Text string `json:"text"`
	// Channel は流入チャネル（web, whatsapp, voice など）。空の場合は "web"。
	Channel string `json:"channel"`
	// Product はリクエスト元のプロダクト。空の場合は "generic"。
	Product string `json:"product"`
	// Metadata は missing_slots や user_tier などの付帯情報。
	Metadata map[string]any `json:"metadata"`
}

// Decision はルーティング判定の結果。
type Decision struct {
	// Timestamp は判定時刻（Unix秒）。
	Timestamp float64 `json:"timestamp"`
	// InputPreview は入力テキストの先頭50文字。
	InputPreview string `json:"input_preview"`
	// Channel は判定に使ったチャネル。
	Channel string `json:"channel"`
	// EngineUsed は判定したエンジン名。
	EngineUsed string `json:"engine_used"`
	// Intent は判定されたインテント。
	Intent string `json:"intent"`
	// Category は判定されたカテゴリ。
	Category Category `json:"category"`
	// ComplexityScore は複雑度スコア。
	ComplexityScore int `json:"complexity_score"`
	// RiskScore はリスクスコア。
	RiskScore int `json:"risk_score"`
	// RouteSelected は選択された経路。
	RouteSelected Route `json:"route_selected"`
	// EstimatedCost は推定コスト（USD）。
	EstimatedCost float64 `json:"estimated_cost"`
	// FallbackUsed はコスト上限によりローカル処理へ落としたかどうか。
	FallbackUsed bool `json:"fallback_used"`
	// ProcessingTimeMS は判定にかかった時間（ミリ秒）。
	ProcessingTimeMS float64 `json:"processing_time_ms"`
	// TimeoutMS はこのチャネルでのプロバイダ呼び出しタイムアウト（ミリ秒）。
	TimeoutMS int `json:"timeout_ms"`
	// Note は強制ルールが適用された場合の説明。
	Note string `json:"note,omitempty"`
}

// compiledIntent はパターンをコンパイル済みのインテント。
type compiledIntent struct {
	name     string
	category Category
	re       *regexp2.Regexp
}

// Engine は決定的なルールベースのルーティングエンジン。
// 生成後は不変であり、複数のゴルーチンから同時に使用できる。
type Engine struct {
	rules        *Ruleset
	intents      []compiledIntent
	logger       *zap.Logger
	now          func() time.Time
	regexTimeout time.Duration
}

// Option はEngineの生成オプション。
type Option func(*Engine)

// WithLogger はログ出力先を設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRegexTimeout はパターン1回の評価に許す時間を設定する。
func WithRegexTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.regexTimeout = d
		}
	}
}

// New はルールセットからエンジンを生成する。
// パターンは起動時にすべてコンパイルし、不正なパターンがあればエラーを返す。
func New(rules *Ruleset, opts ...Option) (*Engine, error) {
	if rules == nil {
		return nil, fmt.Errorf("ルールセットがnilです")
	}

	e := &Engine{
		rules:        rules,
		logger:       zap.NewNop(),
		now:          time.Now,
		regexTimeout: defaultRegexTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.compile(); err != nil {
		return nil, err
	}
	return e, nil
}

// compile はインテントのパターンをOR結合してコンパイルする。
// 同名のインテントは後の定義で置き換え、評価順は最初の出現位置を保つ。
func (e *Engine) compile() error {
	index := make(map[string]int)
	for _, group := range e.rules.Intents {
		for _, rule := range group.Intents {
			if len(rule.Patterns) == 0 {
				continue
			}
			pattern := strings.Join(rule.Patterns, "|")
			re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
			if err != nil {
				return fmt.Errorf("インテント %q のパターンのコンパイルに失敗: %w", rule.Name, err)
			}
			re.MatchTimeout = e.regexTimeout

			ci := compiledIntent{name: rule.Name, category: group.Category, re: re}
			if i, ok := index[rule.Name]; ok {
				e.intents[i] = ci
				continue
			}
			index[rule.Name] = len(e.intents)
			e.intents = append(e.intents, ci)
		}
	}
	return nil
}

// Decide はリクエストを判定し、経路を決定する。
func (e *Engine) Decide(req Request) Decision {
	start := time.Now()

	channel := req.Channel
	if channel == "" {
		channel = "web"
	}
	product := req.Product
	if product == "" {
		product = "generic"
	}
	text := req.Text
	base := Decision{
		Timestamp:    unixSeconds(e.now()),
		InputPreview: truncateRunes(text, previewLength),
		Channel:      channel,
		EngineUsed:   EngineUsed,
		TimeoutMS:    e.rules.timeoutFor(channel),
	}

	// 音声チャネルの短い入力は無音・ノイズとして扱う
	if channel == "voice" && utf8.RuneCountInString(strings.TrimSpace(text)) < voiceNoiseLength {
		d := base
		d.InputPreview = "voice_noise"
		d.Intent = "silence_or_noise"
		d.Category = CategoryStatic
		d.RouteSelected = RouteAntigravity
		d.EstimatedCost = localCost
		d.Note = "Rule C: Voice Aggressive Filter"
		return d
	}

	// 未入力のスロットがあれば常に手続き処理
	if HasMissingSlots(req.Metadata) {
		d := base
		d.Intent = "slot_filling"
		d.Category = CategoryTransactional
		d.ComplexityScore = 10
		d.RouteSelected = RouteAntigravity
		d.EstimatedCost = localCost
		d.Note = "Rule B: Strict Slot Filling"
		return d
	}

	if isFreePattern(text) {
		d := base
		d.Intent = "quick_confirmation"
		d.Category = CategoryStatic
		d.RouteSelected = RouteAntigravity
		d.EstimatedCost = localCost
		d.Note = "Rule A: Global Free Patterns"
		return d
	}

	intent, category, complexity := e.matchIntent(text)
	risk := e.calculateRisk(text, category, channel, product, req.Metadata)

	route := RouteAntigravity
	switch category {
	case CategoryConversational:
		route = RouteDeepSeek
	case CategoryCritical:
		route = RouteDeepSeekThenGPT5
	}
	if risk >= e.rules.Thresholds.Risk.High {
		route = RouteDeepSeekThenGPT5
		category = CategoryCritical
	}

	cost := routeCosts[route]
	fallback := false
	if limit := e.rules.FinancialGuardrails.MaxCostPerRequestUSD; cost > limit {
		e.logger.Warn("コスト上限を超えたためローカル処理にフォールバックします",
			zap.Float64("estimated_cost", cost),
			zap.Float64("limit", limit),
			zap.String("route", string(route)),
		)
		route = RouteAntigravity
		fallback = true
		cost = localCost
	}

	d := base
	d.Intent = intent
	d.Category = category
	d.ComplexityScore = complexity
	d.RiskScore = risk
	d.RouteSelected = route
	d.EstimatedCost = cost
	d.FallbackUsed = fallback
	d.ProcessingTimeMS = float64(time.Since(start).Microseconds()) / 1000
	return d
}

// categoryOrder はインテント照合のカテゴリ優先順。
var categoryOrder = []struct {
	category   Category
	complexity int
}{
	{CategoryStatic, 0},
	{CategoryTransactional, 10},
	{CategoryCritical, 80},
	{CategoryConversational, 25},
}

// matchIntent はカテゴリ優先順にインテントを照合し、インテント・カテゴリ・複雑度を返す。
func (e *Engine) matchIntent(text string) (string, Category, int) {
	text = strings.TrimSpace(text)

	for _, step := range categoryOrder {
		for _, in := range e.intents {
			if in.category != step.category || !e.match(in, text) {
				continue
			}
			complexity := step.complexity
			if step.category == CategoryConversational && hasConditional(text) {
				complexity = 40
			}
			return in.name, step.category, complexity
		}
	}

	if len(strings.Fields(text)) > explanationWordCount {
		return "explanation_request", CategoryConversational, 40
	}
	return "unknown", CategoryStatic, 0
}

// match はインテントのパターンを評価する。評価がタイムアウトした場合は不一致とする。
func (e *Engine) match(in compiledIntent, text string) bool {
	ok, err := in.re.MatchString(text)
	if err != nil {
		e.logger.Warn("パターン評価に失敗したため不一致として扱います",
			zap.String("intent", in.name),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// calculateRisk はリスクスコアを0から100の範囲で算出する。
func (e *Engine) calculateRisk(text string, category Category, channel, product string, metadata map[string]any) int {
	risk := 0
	if rule, ok := e.rules.ChannelRules[channel]; ok {
		risk += rule.RiskModifier
	}
	if rule, ok := e.rules.ProductRules[product]; ok {
		risk += rule.RiskModifier
	}

	switch category {
	case CategoryCritical:
		risk += 60
	case CategoryConversational:
		risk += 20
	}

	if containsAny(strings.ToLower(text), "legal", "laboral", "medico", "denuncia") {
		risk = max(risk, 60)
	}

	if tier, _ := metadata["user_tier"].(string); tier == "enterprise" {
		risk += 20
	}

	return min(risk, maxScore)
}

// isFreePattern は入力が短い定型文かどうかを判定する。
// 記号を除いた小文字のテキストが完全一致するか、短く定型文で始まる場合に真。
func isFreePattern(text string) bool {
	clean := stripPunctuation(strings.TrimSpace(strings.ToLower(text)))
	for _, p := range freePatterns {
		if clean == p {
			return true
		}
	}
	if utf8.RuneCountInString(clean) >= freePatternPrefixLength {
		return false
	}
	for _, p := range freePatterns {
		if strings.HasPrefix(clean, p) {
			return true
		}
	}
	return false
}

// stripPunctuation は英数字・アンダースコア・空白以外の文字を取り除く。
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}

// hasConditional は条件表現を含むかどうかを返す。大文字小文字は区別する。
func hasConditional(text string) bool {
	return containsAny(text, "si", "depende", "cuando")
}

// HasMissingSlots はmetadata.missing_slotsに値があるかどうかを返す。
// スライス（[]any, []string）は要素があれば、文字列は空でなければ真。
func HasMissingSlots(metadata map[string]any) bool {
	switch v := metadata["missing_slots"].(type) {
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case string:
		return v != ""
	}
	return false
}

// containsAny はsがいずれかの部分文字列を含むかどうかを返す。
func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// truncateRunes は文字数（rune数）で先頭n文字に切り詰める。
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// unixSeconds は時刻を小数部付きのUnix秒に変換する。
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
