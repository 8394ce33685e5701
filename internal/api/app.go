package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/llmrouter/internal/classifier"
	"github.com/nao1215/llmrouter/internal/engine"
	"github.com/nao1215/llmrouter/internal/eventstore"
	"github.com/nao1215/llmrouter/internal/gateway"
	"github.com/nao1215/llmrouter/internal/metrics"
	"github.com/nao1215/llmrouter/pkg/middleware"
	"go.uber.org/zap"
)

// Version は /health で返すAPIのバージョン表記。
const Version = "v1.frozen"

// App はルーターのHTTPアプリケーション。
type App struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// engine はルーティングエンジン。
	engine *engine.Engine
	// classifier はv0分類器。
	classifier *classifier.Classifier
	// gateway はLLMゲートウェイ。
	gateway *gateway.Gateway
	// store はイベントストア。無効の場合はnil。
	store *eventstore.Store
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	// logger はログ出力先。
	logger *zap.Logger
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
}

// options はNewの任意設定。
type options struct {
	providers *gateway.Providers
}

// Option はNewのオプション。
type Option func(*options)

// WithProviders はLLMプロバイダを差し替える。
func WithProviders(p gateway.Providers) Option {
	return func(o *options) {
		o.providers = &p
	}
}

// New はアプリケーションを生成する。
// ルールセットの読み込みやイベントストアの接続に失敗した場合はエラーを返す。
func New(ctx context.Context, s Settings, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rules := engine.DefaultRuleset()
	if s.RulesetPath != "" {
		loaded, err := engine.LoadRuleset(s.RulesetPath)
		if err != nil {
			return nil, fmt.Errorf("ルールセットの読み込みに失敗: %w", err)
		}
		rules = loaded
	}

	eng, err := engine.New(rules, engine.WithLogger(logger.Named("engine")))
	if err != nil {
		return nil, fmt.Errorf("ルーティングエンジンの初期化に失敗: %w", err)
	}

	m := metrics.New()

	providers := gateway.NewProviders(s.Gateway)
	if o.providers != nil {
		providers = *o.providers
	}
	gw := gateway.New(providers,
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithObserver(m.ObserveProvider),
	)

	var store *eventstore.Store
	if s.EventStoreDSN != "" {
		store, err = eventstore.Open(ctx, s.EventStoreDSN, logger.Named("eventstore"))
		if err != nil {
			return nil, fmt.Errorf("イベントストアの初期化に失敗: %w", err)
		}
	}

	a := &App{
		engine:     eng,
		classifier: classifier.New(),
		gateway:    gw,
		store:      store,
		metrics:    m,
		logger:     logger,
		jwtSecret:  s.JWTSecret,
	}
	a.router = a.newRouter(s)

	logger.Info("アプリケーションを初期化しました",
		zap.String("ruleset_version", rules.Version),
		zap.Bool("eventstore", store != nil),
		zap.Bool("auth", s.JWTSecret != ""),
		zap.String("deepseek", providers.DeepSeek.Name()),
		zap.String("google", providers.Google.Name()),
		zap.String("gpt5", providers.GPT5.Name()),
	)
	return a, nil
}

// ServeHTTP はリクエストをGinのルーターに委譲する。
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close はイベントストアの接続を閉じる。
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// newRouter はミドルウェアとルーティングを設定したGinエンジンを返す。
func (a *App) newRouter(s Settings) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger.Named("http")))
	router.Use(a.countRequests())
	router.Use(middleware.CORS(s.AllowedOrigins))
	router.Use(middleware.RateLimit(s.RateLimitRPS, s.RateLimitBurst))

	// ヘルスチェック
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})
	// メトリクス
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	// 判定系エンドポイント（JWT_SECRET設定時は認証必須）
	routing := router.Group("")
	if a.jwtSecret != "" {
		routing.Use(middleware.JWTAuth(a.jwtSecret))
	}
	{
		routing.POST("/route", a.handleRoute())
		routing.POST("/classify", a.handleClassify())
	}

	api := router.Group("/api/v1")
	if a.jwtSecret != "" {
		api.Use(middleware.JWTAuth(a.jwtSecret))
	}
	{
		decisions := api.Group("/decisions")
		{
			// 新しい順の判定イベント一覧（クエリパラメータ: limit）
			decisions.GET("", a.handleListDecisions())
			// リクエストIDごとのイベント
			decisions.GET("/:request_id", a.handleGetDecision())
		}
	}

	return router
}

// countRequests はリクエスト数をメトリクスに記録するミドルウェアを返す。
func (a *App) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		a.metrics.ObserveRequest(path, strconv.Itoa(c.Writer.Status()))
	}
}
