package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers pgx5://
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store/migrations"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool       Pool
	connString string
	closeFn    func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, connString: connString, closeFn: pool.Close}, nil
}

// migrateURL rewrites a postgres:// URL for the pgx/v5 migrate driver.
func migrateURL(connString string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix), nil
		}
	}
	return "", eris.New("postgres: migrate needs a postgres:// URL")
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(_ context.Context) error {
	dbURL, err := migrateURL(s.connString)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations.Files, "postgres")
	if err != nil {
		return eris.Wrap(err, "postgres: load migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return eris.Wrap(err, "postgres: create migrator")
	}
	defer m.Close() //nolint:errcheck

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, m Match, f *model.File) (bool, error) {
	existing, err := s.FindBy(ctx, m)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	var id int64
	err = s.pool.QueryRow(ctx, insertSQL(postgresPlaceholder)+" RETURNING id", insertArgs(f)...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// ON CONFLICT DO NOTHING returned nothing.
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert file %s", f.FileName)
	}
	f.ID = id
	return true, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*model.File, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM files WHERE file_hash = $1 LIMIT 1`, hash)
	return scanOnePG(row, "find by hash")
}

func (s *PostgresStore) FindBy(ctx context.Context, m Match) (*model.File, error) {
	where, args := matchWhere(m, postgresPlaceholder)
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM files WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	return scanOnePG(row, "find by url")
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.File, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM files WHERE id = $1`, id)
	f, err := scanOnePG(row, "get file")
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get file %d", id)
	}
	return f, nil
}

func scanOnePG(row pgx.Row, action string) (*model.File, error) {
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", action)
	}
	return f, nil
}

func (s *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := filterWhere(f, postgresPlaceholder)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files`+where, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count files")
	}
	return n, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]model.File, error) {
	where, args := filterWhere(f, postgresPlaceholder)
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM files`+where+` ORDER BY id`+pageClause(f), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list files")
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan file")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate files")
}

func (s *PostgresStore) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.pool.QueryRow(ctx, summarySQL).Scan(
		&sum.Total, &sum.QDA, &sum.Downloaded, &sum.Restricted, &sum.Sources, &sum.DownloadedBytes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary")
	}
	sum.MetadataOnly = sum.Total - sum.Downloaded - sum.Restricted
	return &sum, nil
}

func (s *PostgresStore) Breakdown(ctx context.Context, dim Dimension, limit int) ([]Bucket, error) {
	q, err := breakdownSQL(dim, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: breakdown by %s", dim)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Value, &b.Total, &b.QDA, &b.Downloaded, &b.Restricted); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate buckets")
}

func (s *PostgresStore) Wipe(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM files`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: wipe files")
	}
	return int(tag.RowsAffected()), nil
}
