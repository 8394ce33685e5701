package bootstrap

import (
	"errors"
	"testing"
	"time"

	"github.com/nao1215/llmrouter/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestConfigure は設定の読み込みを検証する。
func TestConfigure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		values   map[string]string
		wantPort int
		wantWarn bool
	}{
		{name: "PORT未設定の場合は8000になること", values: nil, wantPort: 8000},
		{name: "PORT=9090の場合は9090になること", values: map[string]string{config.KeyPort: "9090"}, wantPort: 9090},
		{name: "下限の1を受け付けること", values: map[string]string{config.KeyPort: "1"}, wantPort: 1},
		{name: "上限の65535を受け付けること", values: map[string]string{config.KeyPort: "65535"}, wantPort: 65535},
		{name: "前後の空白は無視されること", values: map[string]string{config.KeyPort: " 9090 "}, wantPort: 9090},
		{name: "空文字列の場合は8000になること", values: map[string]string{config.KeyPort: ""}, wantPort: 8000},
		{name: "範囲外の場合は警告して8000になること", values: map[string]string{config.KeyPort: "70000"}, wantPort: 8000, wantWarn: true},
		{name: "0の場合は警告して8000になること", values: map[string]string{config.KeyPort: "0"}, wantPort: 8000, wantWarn: true},
		{name: "負の値の場合は警告して8000になること", values: map[string]string{config.KeyPort: "-1"}, wantPort: 8000, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.WarnLevel)
			cfg, err := Configure(newViper(tt.values), zap.New(core))
			if err != nil {
				t.Fatalf("Configure()でエラーが発生: %v", err)
			}
			if cfg.ListenPort != tt.wantPort {
				t.Errorf("ListenPort = %d, want %d", cfg.ListenPort, tt.wantPort)
			}
			if cfg.ListenHost != DefaultHost {
				t.Errorf("ListenHost = %q, want %q", cfg.ListenHost, DefaultHost)
			}
			if got := logs.Len() > 0; got != tt.wantWarn {
				t.Errorf("警告ログの有無 = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

// TestConfigureMalformedPort は数値でないPORTを検証する。
func TestConfigureMalformedPort(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "80.5", "8000abc", "0x1F90"} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			_, err := Configure(newViper(map[string]string{config.KeyPort: raw}), nil)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *ConfigurationError", err)
			}
			if cfgErr.Key != "PORT" || cfgErr.Value != raw {
				t.Errorf("ConfigurationError = {%s %q}, want {PORT %q}", cfgErr.Key, cfgErr.Value, raw)
			}
			if code := ExitCode(err); code != ExitConfigurationError {
				t.Errorf("ExitCode = %d, want %d", code, ExitConfigurationError)
			}
		})
	}
}

// TestConfigureDefaults は既定値とその他の設定項目を検証する。
func TestConfigureDefaults(t *testing.T) {
	t.Parallel()

	t.Run("既定値で0.0.0.0:8000になること", func(t *testing.T) {
		t.Parallel()

		cfg, err := Configure(newViper(nil), nil)
		if err != nil {
			t.Fatalf("Configure()でエラーが発生: %v", err)
		}
		if cfg.Addr() != "0.0.0.0:8000" {
			t.Errorf("Addr() = %q, want %q", cfg.Addr(), "0.0.0.0:8000")
		}
		if cfg.GracePeriod != DefaultGracePeriod {
			t.Errorf("GracePeriod = %v, want %v", cfg.GracePeriod, DefaultGracePeriod)
		}
		if cfg.AppRef != DefaultAppRef {
			t.Errorf("AppRef = %q, want %q", cfg.AppRef, DefaultAppRef)
		}
	})

	t.Run("config.Newの既定値でも同じ結果になること", func(t *testing.T) {
		t.Parallel()

		v := config.New()
		v.Set(config.KeyPort, "8000")
		cfg, err := Configure(v, nil)
		if err != nil {
			t.Fatalf("Configure()でエラーが発生: %v", err)
		}
		if cfg.ListenPort != 8000 {
			t.Errorf("ListenPort = %d, want %d", cfg.ListenPort, 8000)
		}
	})

	t.Run("HOSTとAPPを上書きできること", func(t *testing.T) {
		t.Parallel()

		cfg, err := Configure(newViper(map[string]string{
			config.KeyHost: "127.0.0.1",
			config.KeyApp:  "other.module:handler",
		}), nil)
		if err != nil {
			t.Fatalf("Configure()でエラーが発生: %v", err)
		}
		if cfg.ListenHost != "127.0.0.1" {
			t.Errorf("ListenHost = %q, want %q", cfg.ListenHost, "127.0.0.1")
		}
		if cfg.AppRef != "other.module:handler" {
			t.Errorf("AppRef = %q, want %q", cfg.AppRef, "other.module:handler")
		}
	})

	t.Run("IPv6のホストは角括弧で囲まれること", func(t *testing.T) {
		t.Parallel()

		cfg := ProcessConfig{ListenHost: "::1", ListenPort: 9090}
		if cfg.Addr() != "[::1]:9090" {
			t.Errorf("Addr() = %q, want %q", cfg.Addr(), "[::1]:9090")
		}
	})
}

// TestConfigureGracePeriod はGRACE_PERIODの解釈を検証する。
func TestConfigureGracePeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "10s", want: 10 * time.Second},
		{raw: "250ms", want: 250 * time.Millisecond},
		{raw: "3", want: 3 * time.Second},
		{raw: "0", want: 0},
		{raw: "soon", wantErr: true},
		{raw: "-1s", wantErr: true},
		{raw: "-5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			cfg, err := Configure(newViper(map[string]string{config.KeyGracePeriod: tt.raw}), nil)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) || cfgErr.Key != "GRACE_PERIOD" {
					t.Errorf("err = %v, want GRACE_PERIODのConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure()でエラーが発生: %v", err)
			}
			if cfg.GracePeriod != tt.want {
				t.Errorf("GracePeriod = %v, want %v", cfg.GracePeriod, tt.want)
			}
		})
	}
}
