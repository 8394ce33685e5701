package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Run はサービスを起動し、ctxがキャンセルされるか接続の受け付けが終了するまで待ってから停止する。
// シグナルによる停止はsignal.NotifyContextで得たctxを渡して行う。
func Run(ctx context.Context, svc *Service) error {
	if err := svc.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		svc.logger.Info("停止要求を受け付けました",
			zap.String("app", svc.Config().AppRef),
			zap.Duration("grace_period", svc.Config().GracePeriod),
		)
	case <-svc.Done():
	}

	// 停止はctxのキャンセル後に行うため、猶予期間は新しいコンテキストで計る
	if err := svc.Stop(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if err := svc.Err(); err != nil {
		return fmt.Errorf("サーバーが異常終了しました: %w", err)
	}
	return nil
}

// Serve は設定の読み込みからアプリケーションの解決、配信、停止までを行う。
// アプリケーションの解決に失敗した場合はソケットをバインドしない。
func Serve(ctx context.Context, v *viper.Viper, reg *Registry, logger *zap.Logger, opts ...ServiceOption) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := Configure(v, logger)
	if err != nil {
		return err
	}

	app, err := reg.Resolve(ctx, cfg.AppRef)
	if err != nil {
		return err
	}

	svc := NewService(append([]ServiceOption{WithLogger(logger)}, opts...)...)
	if err := svc.Configure(cfg, app); err != nil {
		svc.closeApp(app)
		return err
	}
	if err := Run(ctx, svc); err != nil {
		// バインドに失敗した場合も生成済みのアプリケーションは閉じる
		svc.Stop(context.WithoutCancel(ctx))
		return err
	}
	return nil
}
