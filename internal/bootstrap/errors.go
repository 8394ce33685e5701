package bootstrap

import (
	"errors"
	"fmt"
)

// 終了コード。
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitConfigurationError  = 2
	ExitApplicationNotFound = 3
	ExitBindError           = 4
)

// ErrInvalidState は現在の状態で許されない操作を行った場合のエラー。
var ErrInvalidState = errors.New("現在の状態ではこの操作を実行できません")

// ConfigurationError は環境から与えられた設定値が不正な場合のエラー。
type ConfigurationError struct {
	// Key は環境変数名。
	Key string
	// Value は与えられた値。
	Value string
	// Err は原因。
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("設定値 %s=%q が不正です: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ApplicationNotFoundError はアプリケーション参照を解決できない場合のエラー。
type ApplicationNotFoundError struct {
	// Ref はアプリケーション参照（"api:app" など）。
	Ref string
	// Reason は解決できなかった理由。
	Reason string
}

func (e *ApplicationNotFoundError) Error() string {
	return fmt.Sprintf("アプリケーション %q が見つかりません: %s", e.Ref, e.Reason)
}

// ApplicationLoadError は登録済みのアプリケーションの生成に失敗した場合のエラー。
type ApplicationLoadError struct {
	// Ref はアプリケーション参照。
	Ref string
	// Err は原因。
	Err error
}

func (e *ApplicationLoadError) Error() string {
	return fmt.Sprintf("アプリケーション %q の読み込みに失敗: %v", e.Ref, e.Err)
}

func (e *ApplicationLoadError) Unwrap() error {
	return e.Err
}

// BindError はリッスンソケットをバインドできない場合のエラー。
type BindError struct {
	// Addr はバインドしようとしたアドレス。
	Addr string
	// Err は原因。
	Err error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s のバインドに失敗: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ExitCode はエラーに対応するプロセスの終了コードを返す。
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		cfgErr      *ConfigurationError
		notFoundErr *ApplicationNotFoundError
		loadErr     *ApplicationLoadError
		bindErr     *BindError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigurationError
	case errors.As(err, &notFoundErr), errors.As(err, &loadErr):
		return ExitApplicationNotFound
	case errors.As(err, &bindErr):
		return ExitBindError
	}
	return ExitFailure
}
