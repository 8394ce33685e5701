package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_ruleset.json
var defaultRuleset []byte

// IntentRule は1つのインテントと、それに該当する正規表現パターンの組。
// 複数のパターンはOR結合され、大文字小文字を区別せずに評価される。
type IntentRule struct {
	// Name はインテント名（greeting, ats_evaluation など）。
	Name string `yaml:"name"`
	// Patterns はインテントに該当するパターン。空の場合は正規表現では判定しない。
	Patterns []string `yaml:"patterns"`
}

// IntentGroup はカテゴリごとのインテント定義。
type IntentGroup struct {
	// Category はインテントが属するカテゴリ。
	Category Category
	// Intents はファイルに記述された順のインテント定義。
	Intents []IntentRule
}

// Intents はカテゴリ別インテント定義の一覧。
// 評価順序がファイル上の記述順に依存するため、マップではなくスライスで保持する。
type Intents []IntentGroup

// UnmarshalYAML はマッピングの記述順を保ったままインテント定義を読み込む。
func (in *Intents) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("intentsはカテゴリをキーとするマッピングである必要があります（line %d）", node.Line)
	}

	groups := make(Intents, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		category := Category(key.Value)
		if !category.valid() {
			return fmt.Errorf("不明なカテゴリです: %q（line %d）", key.Value, key.Line)
		}

		var rules []IntentRule
		if err := node.Content[i+1].Decode(&rules); err != nil {
			return fmt.Errorf("カテゴリ %q のインテント定義の読み込みに失敗: %w", key.Value, err)
		}
		groups = append(groups, IntentGroup{Category: category, Intents: rules})
	}

	*in = groups
	return nil
}

// ChannelRule はチャネルごとのリスク補正。
type ChannelRule struct {
	// RiskModifier はリスクスコアへの加算値。
	RiskModifier int `yaml:"risk_modifier"`
}

// ProductRule はプロダクトごとのリスク補正。
type ProductRule struct {
	// RiskModifier はリスクスコアへの加算値。
	RiskModifier int `yaml:"risk_modifier"`
	// MinCategoryIfNotStatic は静的インテント以外に適用する最低カテゴリ。
	// v1では読み込みのみ行い、判定には使用しない。
	MinCategoryIfNotStatic Category `yaml:"min_category_if_not_static"`
}

// RiskThresholds はリスクスコアのしきい値。
type RiskThresholds struct {
	// High はこの値以上で最上位の経路に強制するしきい値。
	High int `yaml:"high"`
}

// Thresholds は判定に使うしきい値群。
type Thresholds struct {
	// Risk はリスクスコアのしきい値。
	Risk RiskThresholds `yaml:"risk"`
}

// FinancialGuardrails はコストとレイテンシの上限。
type FinancialGuardrails struct {
	// MaxCostPerRequestUSD は1リクエストあたりの推定コスト上限（USD）。
	MaxCostPerRequestUSD float64 `yaml:"max_cost_per_request_usd"`
	// TimeoutsMS はチャネルごとのプロバイダ呼び出しタイムアウト（ミリ秒）。
	TimeoutsMS map[string]int `yaml:"timeouts_ms"`
}

// Ruleset はルーティングエンジンの判定ルール一式。
// JSONとYAMLのどちらでも記述できる。
type Ruleset struct {
	// Version はルールセットのバージョン表記。
	Version string `yaml:"version"`
	// Intents はカテゴリ別のインテント定義。
	Intents Intents `yaml:"intents"`
	// ChannelRules はチャネルごとのリスク補正。
	ChannelRules map[string]ChannelRule `yaml:"channel_rules"`
	// ProductRules はプロダクトごとのリスク補正。
	ProductRules map[string]ProductRule `yaml:"product_rules"`
	// Thresholds は判定しきい値。
	Thresholds Thresholds `yaml:"thresholds"`
	// FinancialGuardrails はコストとタイムアウトの上限。
	FinancialGuardrails FinancialGuardrails `yaml:"financial_guardrails"`
}

// ParseRuleset はJSONまたはYAMLのバイト列からルールセットを読み込み、検証する。
func ParseRuleset(data []byte) (*Ruleset, error) {
	// YAMLはタブでのインデントを許さない。正しいJSONでは生のタブは空白としてしか
	// 現れないため、空白に置き換えても内容は変わらない
	if json.Valid(data) {
		data = bytes.ReplaceAll(data, []byte("\t"), []byte(" "))
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("ルールセットのパースに失敗: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRuleset はファイルからルールセットを読み込む。
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルールセットファイルの読み込みに失敗: %w", err)
	}
	rs, err := ParseRuleset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// DefaultRuleset はバイナリに埋め込まれた既定のルールセットを返す。
func DefaultRuleset() *Ruleset {
	rs, err := ParseRuleset(defaultRuleset)
	if err != nil {
		// 埋め込みファイルはテストで検証しているため、ここに来るのはビルドの不備のみ
		panic(fmt.Sprintf("埋め込みルールセットが不正です: %v", err))
	}
	return rs
}

// validate はルールセットの必須項目を検証する。
func (rs *Ruleset) validate() error {
	if len(rs.Intents) == 0 {
		return fmt.Errorf("intentsが定義されていません")
	}
	for _, g := range rs.Intents {
		for _, in := range g.Intents {
			if in.Name == "" {
				return fmt.Errorf("カテゴリ %q に名前の無いインテントがあります", g.Category)
			}
		}
	}
	if rs.Thresholds.Risk.High <= 0 || rs.Thresholds.Risk.High > maxScore {
		return fmt.Errorf("thresholds.risk.highは1から%dの範囲で指定してください: %d", maxScore, rs.Thresholds.Risk.High)
	}
	if rs.FinancialGuardrails.MaxCostPerRequestUSD <= 0 {
		return fmt.Errorf("financial_guardrails.max_cost_per_request_usdは正の値で指定してください")
	}
	for ch, ms := range rs.FinancialGuardrails.TimeoutsMS {
		if ms <= 0 {
			return fmt.Errorf("financial_guardrails.timeouts_ms.%sは正の値で指定してください: %d", ch, ms)
		}
	}
	return nil
}

// timeoutFor はチャネルのプロバイダ呼び出しタイムアウトを返す。未定義なら既定値。
func (rs *Ruleset) timeoutFor(channel string) int {
	if ms, ok := rs.FinancialGuardrails.TimeoutsMS[channel]; ok {
		return ms
	}
	return defaultTimeoutMS
}
