// Package postgres provides a Postgres-backed record sink.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
	"github.com/JakeFAU/sitesearch-crawler/internal/metrics"
)

const (
	defaultTable = "search_content"
	sinkName     = "postgres"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ContentStoreConfig controls the Postgres connection pool used for content rows.
type ContentStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ContentStore writes extracted records into Postgres, one row per record,
// tagged with the run that produced them.
type ContentStore struct {
	pool   execCloser
	table  string
	runID  string
	logger *zap.Logger
}

var _ crawler.RecordSink = (*ContentStore)(nil)

// NewContentStore creates a Postgres-backed ContentStore using the provided config.
func NewContentStore(ctx context.Context, cfg ContentStoreConfig, runID string, logger *zap.Logger) (*ContentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newContentStore(pool, table, runID, logger), nil
}

// NewContentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewContentStoreWithPool(pool execCloser, table, runID string, logger *zap.Logger) (*ContentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newContentStore(pool, table, runID, logger), nil
}

func newContentStore(pool execCloser, table, runID string, logger *zap.Logger) *ContentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentStore{pool: pool, table: table, runID: runID, logger: logger}
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ContentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name implements crawler.RecordSink.
func (s *ContentStore) Name() string { return sinkName }

// Migrate creates the content table when it does not exist yet.
func (s *ContentStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	topic       TEXT NOT NULL,
	site        TEXT NOT NULL,
	title       TEXT NOT NULL,
	body        TEXT NOT NULL,
	url         TEXT NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Append inserts each record. A failed insert is logged and the remaining
// records are still attempted; the failures are returned joined.
func (s *ContentStore) Append(ctx context.Context, records []crawler.Content) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("content store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	topic,
	site,
	title,
	body,
	url,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	var errs []error
	for _, rec := range records {
		args := []any{
			s.runID,
			rec.Topic,
			rec.Site,
			rec.Title,
			rec.Body,
			rec.URL,
			rec.FetchedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			metrics.ObserveSinkRow(sinkName, "skipped")
			s.logger.Warn("insert content row failed", zap.String("url", rec.URL), zap.Error(err))
			errs = append(errs, fmt.Errorf("insert %s: %w", rec.URL, err))
			continue
		}
		metrics.ObserveSinkRow(sinkName, "written")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d rows failed: %w", len(errs), len(records), errors.Join(errs...))
	}
	return nil
}
