package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store/migrations"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return eris.Wrap(err, "sqlite: init migrate driver")
	}
	src, err := iofs.New(migrations.Files, "sqlite")
	if err != nil {
		return eris.Wrap(err, "sqlite: load migrations")
	}
	defer src.Close() //nolint:errcheck

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return eris.Wrap(err, "sqlite: create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, m Match, f *model.File) (bool, error) {
	existing, err := s.FindBy(ctx, m)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, insertSQL(sqlitePlaceholder), insertArgs(f)...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert file %s", f.FileName)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return true, nil
}

func (s *SQLiteStore) FindByHash(ctx context.Context, hash string) (*model.File, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM files WHERE file_hash = ? LIMIT 1`, hash)
	return s.scanOne(row, "find by hash")
}

func (s *SQLiteStore) FindBy(ctx context.Context, m Match) (*model.File, error) {
	where, args := matchWhere(m, sqlitePlaceholder)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM files WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	return s.scanOne(row, "find by url")
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM files WHERE id = ?`, id)
	f, err := s.scanOne(row, "get file")
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get file %d", id)
	}
	return f, nil
}

// scanOne returns nil without error when the row does not exist.
func (s *SQLiteStore) scanOne(row *sql.Row, action string) (*model.File, error) {
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", action)
	}
	return f, nil
}

func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := filterWhere(f, sqlitePlaceholder)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`+where, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count files")
	}
	return n, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.File, error) {
	where, args := filterWhere(f, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM files`+where+` ORDER BY id`+pageClause(f), args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list files")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.File
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan file")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate files")
}

func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, summarySQL).Scan(
		&sum.Total, &sum.QDA, &sum.Downloaded, &sum.Restricted, &sum.Sources, &sum.DownloadedBytes)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary")
	}
	sum.MetadataOnly = sum.Total - sum.Downloaded - sum.Restricted
	return &sum, nil
}

func (s *SQLiteStore) Breakdown(ctx context.Context, dim Dimension, limit int) ([]Bucket, error) {
	q, err := breakdownSQL(dim, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: breakdown by %s", dim)
	}
	defer rows.Close() //nolint:errcheck

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Value, &b.Total, &b.QDA, &b.Downloaded, &b.Restricted); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate buckets")
}

func (s *SQLiteStore) Wipe(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: wipe files")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}
