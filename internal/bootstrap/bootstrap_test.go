package bootstrap

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// testApp はテスト用のアプリケーション。Closeの呼び出しを記録する。
type testApp struct {
	handler http.Handler
	closed  atomic.Bool
}

func (a *testApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.handler != nil {
		a.handler.ServeHTTP(w, r)
		return
	}
	io.WriteString(w, "ok")
}

func (a *testApp) Close() error {
	a.closed.Store(true)
	return nil
}

// slowCloseApp はCloseに時間のかかるテスト用のアプリケーション。
type slowCloseApp struct {
	testApp
	delay time.Duration
}

func (a *slowCloseApp) Close() error {
	time.Sleep(a.delay)
	return a.testApp.Close()
}

// freePort は空いているポート番号を返す。
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("空きポートの取得に失敗: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// holdPort はポートをバインドしたままにし、テスト終了時に解放する。
func holdPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ポートのバインドに失敗: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

// newViper は環境変数を参照しないviperに値を設定して返す。
func newViper(values map[string]string) *viper.Viper {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

// localConfig は127.0.0.1で待ち受ける設定を返す。
func localConfig(port int) ProcessConfig {
	return ProcessConfig{
		ListenHost:  "127.0.0.1",
		ListenPort:  port,
		GracePeriod: DefaultGracePeriod,
		AppRef:      "test:app",
	}
}

// get はURLにGETリクエストを送り、ステータスコードと本文を返す。
func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s に失敗: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// urlFor はポートに対するURLを返す。
func urlFor(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/"
}
