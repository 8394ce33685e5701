package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/llmrouter/pkg/event"
	"github.com/nao1215/llmrouter/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout はcreated_atの保存形式。文字列の比較で時刻順に並ぶよう桁を固定する。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// eventColumns はscanEventsが読み取る列の並び。
const eventColumns = "id, aggregate_id, aggregate_type, event_type, data, version, correlation_id, created_at"

// ErrVersionConflict は同じAggregateIDとバージョンのイベントが既に存在する場合のエラー。
var ErrVersionConflict = errors.New("イベントのバージョンが競合しています")

// Store はSQLiteに保存するイベントストア。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// logger はログ出力先。
	logger *zap.Logger
}

// Open はDSNのSQLiteデータベースを開き、マイグレーションを適用する。
// DSNの例: "file:/data/router.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", ":memory:"
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは直列化されるため接続は1本に固定する
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	applied, err := migration.Run(ctx, db, migrations, "migrations", logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	logger.Info("イベントストアを開きました", zap.Int("applied_migrations", applied))

	return &Store{db: db, logger: logger}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Append はイベントを追記する。
// 同じAggregateIDとバージョンのイベントが既にある場合はErrVersionConflictを返す。
func (s *Store) Append(ctx context.Context, ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("イベントがnilです")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, correlation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AggregateID, string(ev.AggregateType), string(ev.EventType),
		string(ev.Data), ev.Version, ev.CorrelationID, ev.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("aggregate_id=%s, version=%d: %w", ev.AggregateID, ev.Version, ErrVersionConflict)
		}
		return fmt.Errorf("イベントの追記に失敗: %w", err)
	}
	return nil
}

// ListByAggregate はAggregateIDのイベントをバージョン順に返す。
func (s *Store) ListByAggregate(ctx context.Context, aggregateID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE aggregate_id = ? ORDER BY version ASC`,
		aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	return scanEvents(rows)
}

// ListByCorrelation は呼び出し元のリクエストIDに紐づくイベントを記録順に返す。
// 同じリクエストIDで複数回判定された場合は、すべての判定のイベントが含まれる。
func (s *Store) ListByCorrelation(ctx context.Context, correlationID string) ([]event.Event, error) {
	if correlationID == "" {
		return nil, fmt.Errorf("correlation_idが空です")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE correlation_id = ? ORDER BY created_at ASC, rowid ASC`,
		correlationID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	return scanEvents(rows)
}

// ListRecent は新しい順に最大limit件のイベントを返す。
func (s *Store) ListRecent(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limitは正の値で指定してください: %d", limit)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	return scanEvents(rows)
}

// scanEvents は行をイベントに変換する。rowsは必ず閉じる。
func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()

	events := make([]event.Event, 0)
	for rows.Next() {
		var (
			ev            event.Event
			aggregateType string
			eventType     string
			data          string
			createdAt     string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &aggregateType, &eventType, &data, &ev.Version, &ev.CorrelationID, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("created_atの解析に失敗: %w", err)
		}
		ev.AggregateType = event.AggregateType(aggregateType)
		ev.EventType = event.Type(eventType)
		ev.Data = []byte(data)
		ev.CreatedAt = t
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
	}
	return events, nil
}
