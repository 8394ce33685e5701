package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Application は配信するアプリケーション。
// io.Closerも実装している場合、停止時にリッスンソケットを解放した後で閉じられる。
type Application interface {
	http.Handler
}

// Factory はアプリケーションを生成する関数。
type Factory func(ctx context.Context) (Application, error)

// Registry はアプリケーション参照と生成関数の対応表。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry は空のレジストリを生成する。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register は参照に生成関数を登録する。参照の形式が不正か、登録済みの場合はエラー。
func (r *Registry) Register(ref string, factory Factory) error {
	if _, _, err := ParseRef(ref); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("%q の生成関数がnilです", ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[ref]; ok {
		return fmt.Errorf("%q は既に登録されています", ref)
	}
	r.factories[ref] = factory
	return nil
}

// Resolve は参照からアプリケーションを生成する。
// 参照の形式が不正か未登録の場合はApplicationNotFoundErrorを、
// 生成関数が失敗した場合はApplicationLoadErrorを返す。
func (r *Registry) Resolve(ctx context.Context, ref string) (Application, error) {
	if _, _, err := ParseRef(ref); err != nil {
		return nil, &ApplicationNotFoundError{Ref: ref, Reason: err.Error()}
	}

	r.mu.RLock()
	factory, ok := r.factories[ref]
	r.mu.RUnlock()
	if !ok {
		reason := "登録されていません"
		if refs := r.Refs(); len(refs) > 0 {
			reason = fmt.Sprintf("登録されていません（登録済み: %s）", strings.Join(refs, ", "))
		}
		return nil, &ApplicationNotFoundError{Ref: ref, Reason: reason}
	}

	app, err := factory(ctx)
	if err != nil {
		return nil, &ApplicationLoadError{Ref: ref, Err: err}
	}
	if app == nil {
		return nil, &ApplicationLoadError{Ref: ref, Err: fmt.Errorf("生成関数がnilを返しました")}
	}
	return app, nil
}

// Refs は登録済みの参照を辞書順で返す。
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.factories))
	for ref := range r.factories {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// ParseRef は "<module>:<attribute>" 形式の参照を分解する。
// moduleはドット区切りの識別子、attributeは識別子である必要がある。
func ParseRef(ref string) (module, attribute string, err error) {
	module, attribute, ok := strings.Cut(ref, ":")
	if !ok {
		return "", "", fmt.Errorf("参照 %q は <module>:<attribute> 形式ではありません", ref)
	}
	for _, part := range strings.Split(module, ".") {
		if !isIdentifier(part) {
			return "", "", fmt.Errorf("参照 %q のモジュール名が不正です", ref)
		}
	}
	if !isIdentifier(attribute) {
		return "", "", fmt.Errorf("参照 %q の属性名が不正です", ref)
	}
	return module, attribute, nil
}

// isIdentifier は英字またはアンダースコアで始まり、英数字とアンダースコアのみで構成されるかを返す。
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
