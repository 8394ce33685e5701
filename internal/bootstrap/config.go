package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/llmrouter/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// DefaultHost は既定のリッスンアドレス。
	DefaultHost = "0.0.0.0"
	// DefaultPort は既定のリッスンポート。
	DefaultPort = 8000
	// DefaultGracePeriod は停止時に処理中のリクエストを待つ既定の時間。
	DefaultGracePeriod = 5 * time.Second
	// DefaultAppRef は既定のアプリケーション参照。
	DefaultAppRef = "api:app"
)

// ProcessConfig はプロセスの起動設定。起動後は変更しない。
type ProcessConfig struct {
	// ListenHost はリッスンするホスト。
	ListenHost string
	// ListenPort はリッスンするTCPポート（1〜65535）。
	ListenPort int
	// GracePeriod は停止時に処理中のリクエストを待つ時間。
	GracePeriod time.Duration
	// AppRef は配信するアプリケーションの参照。
	AppRef string
}

// Addr は "host:port" 形式のリッスンアドレスを返す。
func (c ProcessConfig) Addr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// validate はポート番号の範囲を検証する。
func (c ProcessConfig) validate() error {
	if !validPort(c.ListenPort) {
		return &ConfigurationError{Key: "PORT", Value: strconv.Itoa(c.ListenPort), Err: errPortRange}
	}
	if c.GracePeriod < 0 {
		return &ConfigurationError{Key: "GRACE_PERIOD", Value: c.GracePeriod.String(), Err: errNegativeDuration}
	}
	return nil
}

var (
	errPortRange        = errors.New("ポートは1から65535の範囲で指定してください")
	errNegativeDuration = errors.New("負の値は指定できません")
)

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

// Configure は設定からProcessConfigを組み立てる。
//
// PORTが未設定なら8000を使う。整数として解釈できない場合はConfigurationErrorを返す。
// 整数だが1〜65535の範囲外の場合は警告を出して8000を使う。
// GRACE_PERIODは "5s" のような期間表記か秒数の整数で指定する。
func Configure(v *viper.Viper, logger *zap.Logger) (ProcessConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := ProcessConfig{
		ListenHost:  strings.TrimSpace(v.GetString(config.KeyHost)),
		ListenPort:  DefaultPort,
		GracePeriod: DefaultGracePeriod,
		AppRef:      strings.TrimSpace(v.GetString(config.KeyApp)),
	}
	if cfg.ListenHost == "" {
		cfg.ListenHost = DefaultHost
	}
	if cfg.AppRef == "" {
		cfg.AppRef = DefaultAppRef
	}

	if raw := strings.TrimSpace(v.GetString(config.KeyPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return ProcessConfig{}, &ConfigurationError{Key: "PORT", Value: raw, Err: err}
		}
		if validPort(port) {
			cfg.ListenPort = port
		} else {
			logger.Warn("PORTが範囲外のため既定値を使用します",
				zap.Int("port", port),
				zap.Int("default", DefaultPort),
			)
		}
	}

	if raw := strings.TrimSpace(v.GetString(config.KeyGracePeriod)); raw != "" {
		grace, err := parseDuration(raw)
		if err != nil {
			return ProcessConfig{}, &ConfigurationError{Key: "GRACE_PERIOD", Value: raw, Err: err}
		}
		cfg.GracePeriod = grace
	}

	return cfg, nil
}

// parseDuration は期間表記または秒数の整数を解釈する。
func parseDuration(raw string) (time.Duration, error) {
	if sec, err := strconv.Atoi(raw); err == nil {
		if sec < 0 {
			return 0, errNegativeDuration
		}
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("期間として解釈できません: %w", err)
	}
	if d < 0 {
		return 0, errNegativeDuration
	}
	return d, nil
}
