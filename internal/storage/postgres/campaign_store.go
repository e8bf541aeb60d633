// Package postgres provides the Postgres-backed campaign store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

const defaultTable = "campaigns"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// CampaignStore upserts campaign rows keyed by (source_site, campaign_id).
type CampaignStore struct {
	pool   execCloser
	table  string
	upsert string
}

// NewCampaignStore connects a pool using cfg.
func NewCampaignStore(ctx context.Context, cfg Config) (*CampaignStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	store, err := NewCampaignStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewCampaignStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCampaignStoreWithPool(pool execCloser, table string) (*CampaignStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CampaignStore{pool: pool, table: table, upsert: upsertQuery(table)}, nil
}

// upsertQuery replaces every non-key column on conflict: the latest crawl wins.
func upsertQuery(table string) string {
	cols := []string{
		"source_site", "campaign_id", "title", "description",
		"reward_points", "remaining_days", "deadline", "detail_url",
		"applications_current", "applications_total",
		"extracted_at", "is_hidden", "is_invalid", "updated_at",
	}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	var set []string
	for _, c := range cols[2:] {
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (%s)
ON CONFLICT (source_site, campaign_id) DO UPDATE SET
	%s`, table, strings.Join(cols, ", "), strings.Join(params, ","), strings.Join(set, ",\n\t"))
}

// Close releases the underlying pool resources.
func (s *CampaignStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *CampaignStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Upsert writes one row. Data and constraint violations come back as
// *campaign.RecordError; anything else is a connectivity-level failure.
func (s *CampaignStore) Upsert(ctx context.Context, row campaign.StoredCampaign) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("campaign store is not configured")
	}
	args := []any{
		row.SourceSite,
		row.CampaignID,
		row.Title,
		row.Description,
		row.RewardPoints,
		row.RemainingDays,
		row.Deadline,
		row.DetailURL,
		row.ApplicationsCurrent,
		row.ApplicationsTotal,
		row.ExtractedAt,
		row.IsHidden,
		row.IsInvalid,
		row.ExtractedAt,
	}
	if _, err := s.pool.Exec(ctx, s.upsert, args...); err != nil {
		if recordLevel(err) {
			return &campaign.RecordError{CampaignID: row.CampaignID, Err: err}
		}
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

// recordLevel reports SQLSTATE classes 22 (data exception) and 23
// (integrity constraint violation).
func recordLevel(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
}
