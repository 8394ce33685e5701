package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/llmrouter/internal/engine"
	"github.com/nao1215/llmrouter/internal/gateway"
	"github.com/nao1215/llmrouter/pkg/event"
	"github.com/nao1215/llmrouter/pkg/middleware"
	"go.uber.org/zap"
)

const (
	// defaultListLimit は判定イベント一覧の既定件数。
	defaultListLimit = 50
	// maxListLimit は判定イベント一覧の最大件数。
	maxListLimit = 500
	// defaultChannel はchannel省略時の値。
	defaultChannel = "web"
	// defaultProduct はproduct省略時の値。
	defaultProduct = "generic"
	// eventWriteTimeout はイベント記録のタイムアウト。
	eventWriteTimeout = 2 * time.Second
)

// HeaderDecisionID は判定ごとに採番したIDを返すレスポンスヘッダー。
const HeaderDecisionID = "X-Decision-ID"

// routeRequest はルーティング判定リクエストのJSON構造。
type routeRequest struct {
	// Text はルーティング対象のテキスト。
	Text *string `json:"text" binding:"required"`
	// Channel は流入チャネル。省略時はweb。
	Channel string `json:"channel"`
	// Product はリクエスト元のプロダクト。省略時はgeneric。
	Product string `json:"product"`
	// Metadata は付加情報（missing_slots, user_tier など）。
	Metadata map[string]any `json:"metadata"`
	// ExecuteRemote はLLMゲートウェイで実行するかどうか。省略時はtrue。
	ExecuteRemote *bool `json:"execute_remote"`
}

// toEngineRequest は省略された項目を既定値で補ってエンジンのリクエストに変換する。
func (r routeRequest) toEngineRequest() engine.Request {
	req := engine.Request{
		Channel:  r.Channel,
		Product:  r.Product,
		Metadata: r.Metadata,
	}
	if r.Text != nil {
		req.Text = *r.Text
	}
	if req.Channel == "" {
		req.Channel = defaultChannel
	}
	if req.Product == "" {
		req.Product = defaultProduct
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	return req
}

// executeRemote は実行指定を返す。省略時はtrue。
func (r routeRequest) executeRemote() bool {
	return r.ExecuteRemote == nil || *r.ExecuteRemote
}

// bindRouteRequest はリクエストボディを読み込む。失敗時は422を返してfalseを返す。
func bindRouteRequest(c *gin.Context) (routeRequest, bool) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": fmt.Sprintf("リクエストが不正です: %v", err)})
		return req, false
	}
	return req, true
}

// handleRoute はルーティング判定を処理するハンドラを返す。
// execute_remoteがtrueの場合はLLMゲートウェイで実行した結果を返す。
func (a *App) handleRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRouteRequest(c)
		if !ok {
			return
		}

		engineReq := req.toEngineRequest()
		decision := a.engine.Decide(engineReq)
		a.metrics.ObserveDecision(decision)

		// 再送で同じX-Request-IDが届いても判定ごとに別のAggregateとして記録する
		rec := recorder{app: a, decisionID: uuid.New().String(), requestID: middleware.GetRequestID(c)}
		c.Header(HeaderDecisionID, rec.decisionID)
		rec.record(c.Request.Context(), event.TypeRouteDecided, event.RouteDecidedData{
			Channel:         engineReq.Channel,
			Product:         engineReq.Product,
			InputPreview:    decision.InputPreview,
			Intent:          decision.Intent,
			Category:        string(decision.Category),
			ComplexityScore: decision.ComplexityScore,
			RiskScore:       decision.RiskScore,
			Route:           string(decision.RouteSelected),
			EstimatedCost:   decision.EstimatedCost,
			FallbackUsed:    decision.FallbackUsed,
			Note:            decision.Note,
			ClientID:        middleware.GetClientID(c),
		})

		if !req.executeRemote() {
			c.JSON(http.StatusOK, decision)
			return
		}

		resp, err := a.gateway.Execute(c.Request.Context(), decision, engineReq.Text)
		if err != nil {
			a.logger.Error("LLMゲートウェイの実行に失敗",
				zap.String("request_id", rec.requestID),
				zap.String("decision_id", rec.decisionID),
				zap.String("route", string(decision.RouteSelected)),
				zap.Error(err),
			)
			rec.record(c.Request.Context(), event.TypeRouteFailed, event.RouteFailedData{
				Reason: err.Error(),
			})
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		rec.record(c.Request.Context(), event.TypeRouteExecuted, executedData(resp))
		c.JSON(http.StatusOK, resp)
	}
}

// executedData はゲートウェイの応答からRouteExecutedイベントのデータを作る。
func executedData(resp *gateway.Response) event.RouteExecutedData {
	data := event.RouteExecutedData{
		Route:             string(resp.RouteDecision.RouteSelected),
		ProviderLatencyMS: resp.ProviderLatencyMS,
	}
	if resp.ExecutionResult != nil {
		data.Model = resp.ExecutionResult.Model
		data.Source = resp.ExecutionResult.Source
	}
	return data
}

// handleClassify はv0分類器による分類を処理するハンドラを返す。
func (a *App) handleClassify() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRouteRequest(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, a.classifier.Classify(req.toEngineRequest()))
	}
}

// handleListDecisions は新しい順の判定イベント一覧を返すハンドラを返す。
func (a *App) handleListDecisions() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.requireStore(c) {
			return
		}

		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("limitは正の整数で指定してください: %q", raw)})
				return
			}
			limit = min(n, maxListLimit)
		}

		events, err := a.store.ListRecent(c.Request.Context(), limit)
		if err != nil {
			a.logger.Error("判定イベント一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "判定イベントの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
	}
}

// decisionSummary は1回の判定とその結果をまとめたもの。
type decisionSummary struct {
	// DecisionID は判定ごとに採番したID。
	DecisionID string `json:"decision_id"`
	// Decided は判定内容。
	Decided *event.RouteDecidedData `json:"decided,omitempty"`
	// Executed は実行結果。未実行または失敗時はnull。
	Executed *event.RouteExecutedData `json:"executed,omitempty"`
	// Failed は失敗理由。成功時はnull。
	Failed *event.RouteFailedData `json:"failed,omitempty"`
}

// summarize はイベントを判定ごとにまとめる。順序は最初のイベントの記録順。
func summarize(events []event.Event) ([]decisionSummary, error) {
	summaries := make([]decisionSummary, 0)
	index := make(map[string]int)
	for i := range events {
		ev := &events[i]
		pos, ok := index[ev.AggregateID]
		if !ok {
			pos = len(summaries)
			index[ev.AggregateID] = pos
			summaries = append(summaries, decisionSummary{DecisionID: ev.AggregateID})
		}

		payload, err := ev.Payload()
		if err != nil {
			return nil, err
		}
		switch data := payload.(type) {
		case *event.RouteDecidedData:
			summaries[pos].Decided = data
		case *event.RouteExecutedData:
			summaries[pos].Executed = data
		case *event.RouteFailedData:
			summaries[pos].Failed = data
		}
	}
	return summaries, nil
}

// handleGetDecision はリクエストIDに紐づく判定を返すハンドラを返す。
// 同じリクエストIDで再送された場合は、判定ごとに分けてすべて返す。
func (a *App) handleGetDecision() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.requireStore(c) {
			return
		}

		requestID := c.Param("request_id")
		events, err := a.store.ListByCorrelation(c.Request.Context(), requestID)
		if err != nil {
			a.logger.Error("判定イベントの取得に失敗", zap.String("request_id", requestID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "判定イベントの取得に失敗しました"})
			return
		}
		if len(events) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("判定イベントが見つかりません: %s", requestID)})
			return
		}

		decisions, err := summarize(events)
		if err != nil {
			a.logger.Error("判定イベントの復元に失敗", zap.String("request_id", requestID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "判定イベントの復元に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "decisions": decisions, "events": events})
	}
}

// requireStore はイベントストアが無効の場合に503を返してfalseを返す。
func (a *App) requireStore(c *gin.Context) bool {
	if a.store != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "イベントストアが無効です"})
	return false
}

// recorder は1回の判定に属するイベントをバージョン順に記録する。
type recorder struct {
	app        *App
	decisionID string
	requestID  string
	version    int64
}

// record はイベントをイベントストアに記録する。
// 記録の失敗はログに残すのみで、レスポンスには影響させない。
func (r *recorder) record(ctx context.Context, eventType event.Type, data any) {
	a := r.app
	if a.store == nil {
		return
	}
	r.version++

	ev, err := event.New(r.decisionID, event.AggregateTypeRouteRequest, eventType, r.version, data,
		event.WithCorrelationID(r.requestID))
	if err != nil {
		a.logger.Error("イベントの生成に失敗", zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventWriteTimeout)
	defer cancel()
	if err := a.store.Append(ctx, ev); err != nil {
		a.logger.Error("イベントの記録に失敗",
			zap.String("request_id", r.requestID),
			zap.String("decision_id", r.decisionID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
