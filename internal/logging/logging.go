// Package logging はzapロガーの生成を提供する。
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format はログの出力形式。
type Format string

const (
	// FormatJSON は1行1レコードのJSON形式。コンテナ環境での既定。
	FormatJSON Format = "json"
	// FormatConsole は色付きの人間向け形式。
	FormatConsole Format = "console"
)

// New はレベルと形式を指定して標準エラー出力に書き出すロガーを生成する。
func New(level string, format Format) (*zap.Logger, error) {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter は出力先を指定してロガーを生成する。
func NewWithWriter(level string, format Format, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("不正なログレベルです: %q", level)
	}

	var encoder zapcore.Encoder
	switch format {
	case FormatJSON, "":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	case FormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("不正なログ形式です: %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
