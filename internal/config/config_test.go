package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestNew は既定値と環境変数の反映を検証する。
// t.Setenvを使うため並列実行しない。
func TestNew(t *testing.T) {
	t.Run("環境変数が無い場合は既定値になること", func(t *testing.T) {
		t.Setenv("PORT", "")
		os.Unsetenv("PORT")

		v := New()
		if got := v.GetString(KeyPort); got != "8000" {
			t.Errorf("port = %q, want %q", got, "8000")
		}
		if got := v.GetString(KeyHost); got != "0.0.0.0" {
			t.Errorf("host = %q, want %q", got, "0.0.0.0")
		}
		if got := v.GetString(KeyApp); got != "api:app" {
			t.Errorf("app = %q, want %q", got, "api:app")
		}
		if got := v.GetDuration(KeyGracePeriod).String(); got != "5s" {
			t.Errorf("grace_period = %q, want %q", got, "5s")
		}
	})

	t.Run("環境変数で上書きされること", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("EVENTSTORE_DSN", ":memory:")

		v := New()
		if got := v.GetString(KeyPort); got != "9090" {
			t.Errorf("port = %q, want %q", got, "9090")
		}
		if got := v.GetString(KeyEventStoreDSN); got != ":memory:" {
			t.Errorf("eventstore_dsn = %q, want %q", got, ":memory:")
		}
	})
}

// TestLoad は設定ファイルの読み込みを検証する。
func TestLoad(t *testing.T) {
	t.Run("YAMLファイルの値が反映されること", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "router.yaml")
		content := "host: 127.0.0.1\nallowed_origins:\n  - https://a.example\n  - https://b.example\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("設定ファイルの作成に失敗: %v", err)
		}

		v, err := Load(path)
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if got := v.GetString(KeyHost); got != "127.0.0.1" {
			t.Errorf("host = %q, want %q", got, "127.0.0.1")
		}
		want := []string{"https://a.example", "https://b.example"}
		if got := StringList(v, KeyAllowedOrigins); !reflect.DeepEqual(got, want) {
			t.Errorf("allowed_origins = %v, want %v", got, want)
		}
	})

	t.Run("パスが空の場合は既定値のみになること", func(t *testing.T) {
		v, err := Load("")
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if got := v.GetString(KeyLogLevel); got != "info" {
			t.Errorf("log_level = %q, want %q", got, "info")
		}
	})

	t.Run("ファイルが存在しない場合はエラーになること", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}

// TestStringList はリスト値の解釈を検証する。
func TestStringList(t *testing.T) {
	t.Parallel()

	v := New()
	v.Set("csv", " https://a.example, ,https://b.example ")
	v.Set("empty", "")

	if got, want := StringList(v, "csv"), []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(got, want) {
		t.Errorf("StringList(csv) = %v, want %v", got, want)
	}
	if got := StringList(v, "empty"); len(got) != 0 {
		t.Errorf("StringList(empty) = %v, want empty", got)
	}
	if got := StringList(v, "undefined"); len(got) != 0 {
		t.Errorf("StringList(undefined) = %v, want empty", got)
	}
}
