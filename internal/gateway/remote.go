package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/llmrouter/pkg/httpclient"
)

// chatMessage はOpenAI互換APIのメッセージ。
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest はOpenAI互換APIの /chat/completions リクエスト。
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse はOpenAI互換APIの /chat/completions レスポンスのうち使用する部分。
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// errEmptyChoices は応答に候補が含まれない場合のエラー。
var errEmptyChoices = errors.New("応答にchoicesが含まれていません")

// Remote はOpenAI互換の /chat/completions を呼び出すプロバイダ。
type Remote struct {
	name   string
	model  string
	cost   float64
	client *httpclient.Client
}

// NewRemote はOpenAI互換APIのプロバイダを生成する。
// costは1リクエストあたりの推定コストとして結果に記録される。
func NewRemote(name, model string, cost float64, client *httpclient.Client) *Remote {
	return &Remote{name: name, model: model, cost: cost, client: client}
}

// Name はプロバイダ名を返す。
func (r *Remote) Name() string {
	return r.name
}

// Complete はユーザーメッセージ1件で /chat/completions を呼び出す。
func (r *Remote) Complete(ctx context.Context, text string) (*Result, error) {
	req := chatRequest{
		Model:    r.model,
		Messages: []chatMessage{{Role: "user", Content: text}},
	}

	var resp chatResponse
	if err := r.client.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, fmt.Errorf("%sの呼び出しに失敗: %w", r.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", r.name, errEmptyChoices)
	}

	model := resp.Model
	if model == "" {
		model = r.model
	}
	return &Result{
		Content:       resp.Choices[0].Message.Content,
		Model:         model,
		CostEstimated: r.cost,
	}, nil
}
