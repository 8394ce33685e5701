// Package config はviperによる設定の読み込みを提供する。
//
// 設定は「既定値 → 設定ファイル（任意） → 環境変数」の順に上書きされる。
// 環境変数名はキーを大文字にしたもの（port → PORT, eventstore_dsn → EVENTSTORE_DSN）。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 設定キー。
const (
	KeyPort           = "port"
	KeyHost           = "host"
	KeyGracePeriod    = "grace_period"
	KeyApp            = "app"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyRulesetPath    = "ruleset_path"
	KeyEventStoreDSN  = "eventstore_dsn"
	KeyJWTSecret      = "jwt_secret"
	KeyAllowedOrigins = "allowed_origins"
	KeyRateLimitRPS   = "rate_limit_rps"
	KeyRateLimitBurst = "rate_limit_burst"
	KeyDeepSeekAPIURL = "deepseek_api_url"
	KeyDeepSeekAPIKey = "deepseek_api_key"
	KeyDeepSeekModel  = "deepseek_model"
	KeyGoogleAPIURL   = "google_api_url"
	KeyGoogleAPIKey   = "google_api_key"
	KeyGoogleModel    = "google_model"
	KeyOpenAIAPIURL   = "openai_api_url"
	KeyOpenAIAPIKey   = "openai_api_key"
	KeyOpenAIModel    = "openai_model"
)

// envOnlyKeys は既定値を持たないが環境変数から読むキー。
// viperのAutomaticEnvはUnmarshal時に既定値の無いキーを拾わないため明示的に束縛する。
var envOnlyKeys = []string{
	KeyRulesetPath, KeyEventStoreDSN, KeyJWTSecret,
	KeyDeepSeekAPIURL, KeyDeepSeekAPIKey, KeyDeepSeekModel,
	KeyGoogleAPIURL, KeyGoogleAPIKey, KeyGoogleModel,
	KeyOpenAIAPIURL, KeyOpenAIAPIKey, KeyOpenAIModel,
}

// New は既定値と環境変数を設定したviperインスタンスを返す。
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyPort, "8000")
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyGracePeriod, "5s")
	v.SetDefault(KeyApp, "api:app")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyAllowedOrigins, "*")
	v.SetDefault(KeyRateLimitRPS, 0)
	v.SetDefault(KeyRateLimitBurst, 0)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		// BindEnvは引数が1つの場合エラーを返さない
		_ = v.BindEnv(key)
	}
	return v
}

// Load はNewの設定に加えて設定ファイルを読み込む。pathが空の場合は読み込まない。
// 形式は拡張子（.yaml, .json, .toml など）から判定される。
func Load(path string) (*viper.Viper, error) {
	v := New()
	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
	}
	return v, nil
}

// StringList はカンマ区切りの文字列またはリストとして設定された値を文字列スライスで返す。
// 空要素と前後の空白は除去する。
func StringList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	}

	list := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list
}
