package api

import (
	"github.com/nao1215/llmrouter/internal/config"
	"github.com/nao1215/llmrouter/internal/gateway"
	"github.com/spf13/viper"
)

// Settings はアプリケーションの設定。
type Settings struct {
	// RulesetPath はルールセットファイルのパス。空の場合は埋め込みの既定ルールセット。
	RulesetPath string
	// EventStoreDSN はイベントストアのDSN。空の場合はイベントを記録しない。
	EventStoreDSN string
	// JWTSecret はJWT検証用の秘密鍵。空の場合は認証しない。
	JWTSecret string
	// AllowedOrigins はCORSで許可するオリジン。"*" ですべて許可する。
	AllowedOrigins []string
	// RateLimitRPS は1秒あたりの最大リクエスト数。0以下で制限しない。
	RateLimitRPS float64
	// RateLimitBurst はバースト許容量。
	RateLimitBurst int
	// Gateway はLLMプロバイダの設定。
	Gateway gateway.Config
}

// SettingsFrom はviperから設定を読み込む。
func SettingsFrom(v *viper.Viper) Settings {
	return Settings{
		RulesetPath:    v.GetString(config.KeyRulesetPath),
		EventStoreDSN:  v.GetString(config.KeyEventStoreDSN),
		JWTSecret:      v.GetString(config.KeyJWTSecret),
		AllowedOrigins: config.StringList(v, config.KeyAllowedOrigins),
		RateLimitRPS:   v.GetFloat64(config.KeyRateLimitRPS),
		RateLimitBurst: v.GetInt(config.KeyRateLimitBurst),
		Gateway: gateway.Config{
			DeepSeek: gateway.ProviderConfig{
				APIURL: v.GetString(config.KeyDeepSeekAPIURL),
				APIKey: v.GetString(config.KeyDeepSeekAPIKey),
				Model:  v.GetString(config.KeyDeepSeekModel),
			},
			Google: gateway.ProviderConfig{
				APIURL: v.GetString(config.KeyGoogleAPIURL),
				APIKey: v.GetString(config.KeyGoogleAPIKey),
				Model:  v.GetString(config.KeyGoogleModel),
			},
			OpenAI: gateway.ProviderConfig{
				APIURL: v.GetString(config.KeyOpenAIAPIURL),
				APIKey: v.GetString(config.KeyOpenAIAPIKey),
				Model:  v.GetString(config.KeyOpenAIModel),
			},
		},
	}
}
