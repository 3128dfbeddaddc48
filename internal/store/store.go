// Package store is the persistence surface: a query/insert/patch API
// keyed by table name over a pgx pool, plus the atomic balance update
// the ledger needs.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrInvariantViolation = errors.New("invariant violation")
)

// Store wraps a pgx connection pool and the small set of table-keyed
// operations the core needs.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✓ database connection established")

	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
	log.Println("✓ database connection closed")
}

// Row is a loosely-typed record keyed by column name.
type Row map[string]any

// Filter is a single equality filter for SelectWithFilters.
type Filter struct {
	Column string
	Value  any
}

// SelectByID fetches one row by primary key from table.
func (s *Store) SelectByID(ctx context.Context, table, id string) (Row, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", pgx.Identifier{table}.Sanitize())
	rows, err := s.Pool.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("select %s by id: %w", table, err)
	}
	defer rows.Close()

	row, err := scanOne(rows)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return nil, err
	}
	return row, nil
}

// SelectWithFilters fetches every row from table matching all filters.
func (s *Store) SelectWithFilters(ctx context.Context, table string, filters []Filter) ([]Row, error) {
	sql := fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{table}.Sanitize())
	args := make([]any, 0, len(filters))
	for i, f := range filters {
		if i == 0 {
			sql += " WHERE "
		} else {
			sql += " AND "
		}
		args = append(args, f.Value)
		sql += fmt.Sprintf("%s = $%d", pgx.Identifier{f.Column}.Sanitize(), len(args))
	}

	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s with filters: %w", table, err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// Insert writes a new row to table and returns it with any DB-assigned
// defaults applied.
func (s *Store) Insert(ctx context.Context, table string, values Row) (Row, error) {
	cols := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for k, v := range values {
		cols = append(cols, pgx.Identifier{k}.Sanitize())
		args = append(args, v)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pgx.Identifier{table}.Sanitize(), join(cols, ","), join(placeholders, ","))

	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert into %s: %w", table, ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	defer rows.Close()

	return scanOne(rows)
}

// PatchByID updates the given columns of one row, identified by id.
func (s *Store) PatchByID(ctx context.Context, table, id string, patch Row) (Row, error) {
	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+1)
	for k, v := range patch {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), len(args)))
	}
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		pgx.Identifier{table}.Sanitize(), join(sets, ","), len(args))

	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("patch %s %s: %w", table, id, err)
	}
	defer rows.Close()

	row, err := scanOne(rows)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return nil, err
	}
	return row, nil
}

// DeleteByID removes one row by id.
func (s *Store) DeleteByID(ctx context.Context, table, id string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pgx.Identifier{table}.Sanitize())
	tag, err := s.Pool.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func scanOne(rows pgx.Rows) (Row, error) {
	all, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

func scanAll(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
