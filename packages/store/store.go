// Package store persists scan runs to Postgres without stalling the scan.
// It is a history sink only: nothing is ever read back into classification.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deadref/packages/domain"
)

const (
	queueCapacity = 64
	flushInterval = 5 * time.Second
	flushBatch    = 16
	writeTimeout  = 30 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          UUID PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    articles    INT NOT NULL DEFAULT 0,
    links       INT NOT NULL DEFAULT 0,
    dead        INT NOT NULL DEFAULT 0,
    blocked     INT NOT NULL DEFAULT 0,
    archived    INT NOT NULL DEFAULT 0,
    alive       INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS link_results (
    id            BIGSERIAL PRIMARY KEY,
    run_id        UUID NOT NULL REFERENCES runs(id),
    article_title TEXT NOT NULL,
    url           TEXT NOT NULL,
    archive_url   TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    status_code   INT NOT NULL DEFAULT 0,
    detail        TEXT NOT NULL DEFAULT '',
    checked_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS link_results_run_idx ON link_results (run_id);
`

// Store owns the connection pool and an asynchronous result writer.
type Store struct {
	db    *pgxpool.Pool
	queue chan domain.ArticleResult
	done  chan struct{}
	runID uuid.UUID
}

// New connects, ensures the schema and starts the background writer. The
// writer outlives context cancellation so queued results still land during
// shutdown.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: unable to create connection pool: %w", err)
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ensure schema: %w", err)
	}

	s := &Store{
		db:    db,
		queue: make(chan domain.ArticleResult, queueCapacity),
		done:  make(chan struct{}),
	}
	go s.resultWriter(context.WithoutCancel(ctx))
	return s, nil
}

// BeginRun records the run row that queued results attach to.
func (s *Store) BeginRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.runID = runID
	if _, err := s.db.Exec(ctx, `INSERT INTO runs (id, started_at) VALUES ($1, $2)`, runID, startedAt); err != nil {
		return fmt.Errorf("store: failed to record run: %w", err)
	}
	return nil
}

// FinishRun stamps the completion time and final article count.
func (s *Store) FinishRun(ctx context.Context, summary domain.RunSummary) error {
	_, err := s.db.Exec(ctx, `UPDATE runs SET finished_at = now(), articles = $2 WHERE id = $1`,
		s.runID, summary.Articles)
	if err != nil {
		return fmt.Errorf("store: failed to finalize run: %w", err)
	}
	return nil
}

// Enqueue hands an article's results to the background writer. Under
// sustained backpressure the queue drops rather than stalling the scan.
func (s *Store) Enqueue(article domain.ArticleResult) {
	select {
	case s.queue <- article:
	default:
		slog.Warn("Result queue is full. Dropping article results.", "article", article.Title, "links", len(article.Results))
	}
}

// Close flushes pending results and releases the pool.
func (s *Store) Close() {
	close(s.queue)
	<-s.done
	s.db.Close()
}

func (s *Store) resultWriter(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []domain.ArticleResult
	for {
		select {
		case article, ok := <-s.queue:
			if !ok {
				s.flush(ctx, pending)
				return
			}
			pending = append(pending, article)
			if len(pending) >= flushBatch {
				s.flush(ctx, pending)
				pending = nil
			}
		case <-ticker.C:
			if len(pending) > 0 {
				s.flush(ctx, pending)
				pending = nil
			}
		}
	}
}

func (s *Store) flush(ctx context.Context, articles []domain.ArticleResult) {
	if len(articles) == 0 {
		return
	}

	rows := make([][]any, 0, len(articles)*8)
	var dead, blocked, archived, alive, total int
	for _, article := range articles {
		for _, r := range article.Results {
			rows = append(rows, []any{
				s.runID, article.Title, r.Target.OriginalURL, r.Target.ArchiveURL,
				string(r.Status), r.StatusCode, r.Detail, r.CheckedAt,
			})
			total++
			switch r.Status {
			case domain.StatusDead:
				dead++
			case domain.StatusBlocked:
				blocked++
			case domain.StatusArchived:
				archived++
			case domain.StatusAlive:
				alive++
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"link_results"},
			[]string{"run_id", "article_title", "url", "archive_url", "status", "status_code", "detail", "checked_at"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("store: failed to copy link results: %w", err)
		}
		_, err := tx.Exec(ctx, `
			UPDATE runs SET links = links + $2, dead = dead + $3, blocked = blocked + $4,
			                archived = archived + $5, alive = alive + $6
			WHERE id = $1`,
			s.runID, total, dead, blocked, archived, alive)
		if err != nil {
			return fmt.Errorf("store: failed to update run counters: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to persist link results", "error", err, "rows", len(rows))
		return
	}
	slog.Debug("Persisted link results", "rows", len(rows), "articles", len(articles))
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}
