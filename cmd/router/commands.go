package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/llmrouter/internal/api"
	"github.com/nao1215/llmrouter/internal/bootstrap"
	"github.com/nao1215/llmrouter/internal/classifier"
	"github.com/nao1215/llmrouter/internal/config"
	"github.com/nao1215/llmrouter/internal/engine"
	"github.com/nao1215/llmrouter/internal/logging"
	"github.com/nao1215/llmrouter/pkg/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// defaultTokenTTL は発行するJWTの既定の有効期間。
const defaultTokenTTL = 24 * time.Hour

// newRootCmd はルートコマンドを生成する。
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "router",
		Short:         "LLMリクエストのルーティングサービス",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "設定ファイルのパス（yaml, json, toml）")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDecideCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// loadConfig は--configの設定ファイルと環境変数を読み込む。
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	path, _ := cmd.Flags().GetString("config")
	v, err := config.Load(path)
	if err != nil {
		return nil, &bootstrap.ConfigurationError{Key: "config", Value: path, Err: err}
	}
	return v, nil
}

// newLogger は設定に従ってロガーを生成する。
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level := v.GetString(config.KeyLogLevel)
	format := v.GetString(config.KeyLogFormat)
	logger, err := logging.New(level, logging.Format(format))
	if err != nil {
		return nil, &bootstrap.ConfigurationError{Key: "LOG_LEVEL/LOG_FORMAT", Value: level + "/" + format, Err: err}
	}
	return logger, nil
}

// newRegistry は配信できるアプリケーションを登録したレジストリを返す。
func newRegistry(v *viper.Viper, logger *zap.Logger) *bootstrap.Registry {
	reg := bootstrap.NewRegistry()
	// 登録する参照は固定値のため失敗しない
	_ = reg.Register(bootstrap.DefaultAppRef, func(ctx context.Context) (bootstrap.Application, error) {
		return api.New(ctx, api.SettingsFrom(v), logger.Named("api"))
	})
	return reg
}

// newServeCmd はHTTPサービスを起動するserveコマンドを生成する。
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [module:attribute]",
		Short: "HTTPサービスを起動する",
		Long: `アプリケーション参照（既定は api:app）を解決してHTTPサービスを起動する。
SIGINTまたはSIGTERMを受け取ると猶予期間内に処理中のリクエストを完了させて終了する。

終了コード: 0 正常終了, 2 設定不正, 3 アプリケーション未解決, 4 バインド失敗, 1 その他`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			for key, name := range map[string]string{
				config.KeyHost:        "host",
				config.KeyPort:        "port",
				config.KeyGracePeriod: "grace-period",
			} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return fmt.Errorf("フラグ %s の設定に失敗: %w", name, err)
				}
			}
			if len(args) == 1 {
				v.Set(config.KeyApp, args[0])
			}

			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			gin.SetMode(gin.ReleaseMode)
			return bootstrap.Serve(cmd.Context(), v, newRegistry(v, logger), logger)
		},
	}
	cmd.Flags().String("host", bootstrap.DefaultHost, "待ち受けるホスト（HOST）")
	cmd.Flags().String("port", "8000", "待ち受けるポート（PORT）")
	cmd.Flags().String("grace-period", "5s", "停止時の猶予期間（GRACE_PERIOD）")
	return cmd
}

// addRequestFlags は判定リクエストを組み立てるフラグを追加する。
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("channel", "web", "流入チャネル（web, whatsapp, voice など）")
	cmd.Flags().String("product", "generic", "リクエスト元のプロダクト")
	cmd.Flags().StringSlice("missing-slot", nil, "未入力のスロット名（複数指定可）")
	cmd.Flags().String("user-tier", "", "利用者の契約区分（enterprise など）")
}

// requestFromFlags はフラグと引数から判定リクエストを組み立てる。
func requestFromFlags(cmd *cobra.Command, text string) engine.Request {
	channel, _ := cmd.Flags().GetString("channel")
	product, _ := cmd.Flags().GetString("product")
	slots, _ := cmd.Flags().GetStringSlice("missing-slot")
	tier, _ := cmd.Flags().GetString("user-tier")

	metadata := map[string]any{}
	if len(slots) > 0 {
		metadata["missing_slots"] = slots
	}
	if tier != "" {
		metadata["user_tier"] = tier
	}
	return engine.Request{Text: text, Channel: channel, Product: product, Metadata: metadata}
}

// writeJSON は値をインデント付きJSONで出力する。
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newDecideCmd はルーティングエンジンの判定を表示するdecideコマンドを生成する。
func newDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide <text>",
		Short: "ルーティングエンジンの判定結果を表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			rules := engine.DefaultRuleset()
			if path := v.GetString(config.KeyRulesetPath); path != "" {
				if rules, err = engine.LoadRuleset(path); err != nil {
					return &bootstrap.ConfigurationError{Key: "RULESET_PATH", Value: path, Err: err}
				}
			}
			eng, err := engine.New(rules)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), eng.Decide(requestFromFlags(cmd, args[0])))
		},
	}
	addRequestFlags(cmd)
	return cmd
}

// newClassifyCmd はv0分類器の結果を表示するclassifyコマンドを生成する。
func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "v0分類器の分類結果を表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), classifier.New().Classify(requestFromFlags(cmd, args[0])))
		},
	}
	addRequestFlags(cmd)
	return cmd
}

// newTokenCmd はJWT_SECRETで署名したトークンを発行するtokenコマンドを生成する。
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "APIクライアント用のJWTを発行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			secret := v.GetString(config.KeyJWTSecret)
			if secret == "" {
				return &bootstrap.ConfigurationError{Key: "JWT_SECRET", Err: fmt.Errorf("トークンの発行にはJWT_SECRETが必要です")}
			}

			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := middleware.GenerateJWT(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "トークンのクライアントID")
	cmd.Flags().Duration("ttl", defaultTokenTTL, "トークンの有効期間")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
