package bootstrap

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State はサービスの状態。
type State int

const (
	// StateUnconfigured は設定前の状態。
	StateUnconfigured State = iota
	// StateConfigured は設定とアプリケーションが揃い、起動を待つ状態。
	StateConfigured
	// StateRunning は接続を受け付けている状態。
	StateRunning
	// StateStopping は停止処理中の状態。
	StateStopping
	// StateStopped は停止済みの終端状態。
	StateStopped
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "Unconfigured"
	case StateConfigured:
		return "Configured"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	}
	return "Unknown"
}

// readHeaderTimeout はリクエストヘッダーの読み取りに許す時間。
const readHeaderTimeout = 10 * time.Second

// Service は1つのリッスンソケットと1つのアプリケーションを所有するHTTPサービス。
// Stopはシグナル処理など別のゴルーチンから呼ばれるため、状態はミューテックスで保護する。
type Service struct {
	mu       sync.Mutex
	state    State
	cfg      ProcessConfig
	app      Application
	listener net.Listener
	server   *http.Server
	done     chan struct{}
	stopped  chan struct{}
	serveErr error

	logger *zap.Logger
	listen func(network, address string) (net.Listener, error)
}

// ServiceOption はServiceの生成オプション。
type ServiceOption func(*Service)

// WithLogger はログ出力先を設定する。
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListenFunc はソケットのバインド方法を差し替える。
func WithListenFunc(fn func(network, address string) (net.Listener, error)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.listen = fn
		}
	}
}

// NewService は未設定状態のサービスを生成する。
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		state:   StateUnconfigured,
		logger:  zap.NewNop(),
		listen:  net.Listen,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure は設定とアプリケーションを受け取り、Configured状態にする。
func (s *Service) Configure(cfg ProcessConfig, app Application) error {
	if app == nil {
		return errors.New("アプリケーションがnilです")
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnconfigured {
		return ErrInvalidState
	}
	s.cfg = cfg
	s.app = app
	s.state = StateConfigured
	return nil
}

// Start はソケットをバインドし、接続の受け付けを開始する。
// バインドに失敗した場合はBindErrorを返し、Configured状態のままとなる。
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return ErrInvalidState
	}

	addr := s.cfg.Addr()
	ln, err := s.listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.app,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}
	s.state = StateRunning

	go s.serve(s.server, ln)

	s.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("app", s.cfg.AppRef),
	)
	return nil
}

// serve は接続の受け付けループを実行し、終了したらdoneを閉じる。
func (s *Service) serve(srv *http.Server, ln net.Listener) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("接続の受け付けが異常終了しました", zap.Error(err))
		s.mu.Lock()
		s.serveErr = err
		s.mu.Unlock()
	}
}

// Stop は新しい接続の受け付けを止め、処理中のリクエストを猶予期間まで待ってから
// ソケットを解放する。猶予期間を過ぎた接続は強制的に閉じる。
// 停止処理中のエラーはログに記録するのみで、Stopped状態への遷移は妨げない。
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopping, StateStopped:
		// 先行するStopがアプリケーションを閉じ終えるまで待つ
		s.mu.Unlock()
		<-s.stopped
		return nil
	case StateUnconfigured, StateConfigured:
		app := s.app
		s.state = StateStopping
		close(s.done)
		s.mu.Unlock()
		s.closeApp(app)
		s.markStopped()
		return nil
	}
	s.state = StateStopping
	srv, app, grace := s.server, s.app, s.cfg.GracePeriod
	s.mu.Unlock()

	s.logger.Info("stopping", zap.Duration("grace_period", grace))

	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("猶予期間内に終了しなかった接続を強制的に閉じます", zap.Error(err))
		if err := srv.Close(); err != nil {
			s.logger.Warn("接続の強制終了に失敗しました", zap.Error(err))
		}
	}
	<-s.done

	s.closeApp(app)
	s.markStopped()

	s.logger.Info("stopped")
	return nil
}

// markStopped はStopped状態にし、待機中のStopを解放する。
func (s *Service) markStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	close(s.stopped)
}

// closeApp はアプリケーションがio.Closerを実装していれば閉じる。
func (s *Service) closeApp(app Application) {
	closer, ok := app.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		s.logger.Warn("アプリケーションの終了処理に失敗しました", zap.Error(err))
	}
}

// State は現在の状態を返す。
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config は設定を返す。
func (s *Service) Config() ProcessConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Addr はバインドしたアドレスを返す。Running状態でなければnil。
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done は接続の受け付けが終了したときに閉じられるチャネルを返す。
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Err は接続の受け付けが異常終了した場合のエラーを返す。
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}
