package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for settings rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps settings rows in a Postgres table.
type PostgresStore struct {
	pool  pgxPool
	table string
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects a pool using cfg.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPostgresWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// poolConfig parses the DSN and applies the configured pool limits.
func poolConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	return poolCfg, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily for testing).
func NewPostgresWithPool(pool pgxPool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "settings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// Init creates the table and seeds missing default rows.
func (s *PostgresStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create settings table: %w", err)
	}
	insert := fmt.Sprintf(
		`INSERT INTO %s (key, value, description) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		s.table,
	)
	for _, def := range Defaults {
		if _, err := s.pool.Exec(ctx, insert, def.Key, def.Value, def.Description); err != nil {
			return fmt.Errorf("seed %s: %w", def.Key, err)
		}
	}
	return nil
}

// All returns every row in display order. Tables created before the columns
// were NOT NULL may still hold NULLs, which read as empty strings.
func (s *PostgresStore) All(ctx context.Context) ([]Setting, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT key, COALESCE(value, ''), COALESCE(description, '') FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var row Setting
		if err := rows.Scan(&row.Key, &row.Value, &row.Description); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	sortSettings(out)
	return out, nil
}

// Get returns the value stored under key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(value, '') FROM %s WHERE key = $1`, s.table), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// Update replaces the value of an existing key.
func (s *PostgresStore) Update(ctx context.Context, key, value string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET value = $1 WHERE key = $2`, s.table), value, key)
	if err != nil {
		return fmt.Errorf("update setting %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
