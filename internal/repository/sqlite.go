package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore backs the local profile and tests.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}

	migrations, err := Migrations(DialectSQLite)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations("sqlite://"+abs, migrations); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", abs+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; sqlite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, owner, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_items WHERE owner = ? AND item_key = ?`, owner, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get item: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetItem(ctx context.Context, owner, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_items (owner, item_key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, item_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveItem(ctx context.Context, owner, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_items WHERE owner = ? AND item_key = ?`, owner, key); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (tbl, owner, id, parent_id, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tbl, owner, id) DO UPDATE SET
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at,
			data = excluded.data`)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.Table, r.Owner, r.ID, r.ParentID,
			toMillis(r.CreatedAt), toMillis(r.UpdatedAt), string(r.Data)); err != nil {
			return fmt.Errorf("put record %s/%s: %w", r.Table, r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, table, owner, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tbl, owner, id, parent_id, created_at, updated_at, data
		FROM records WHERE tbl = ? AND owner = ? AND id = ?`, table, owner, id)
	rec, err := scanSQLRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, table, owner string, q Query) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT tbl, owner, id, parent_id, created_at, updated_at, data
		FROM records WHERE tbl = ? AND owner = ?`)
	args := []any{table, owner}
	if q.ParentID != "" {
		sb.WriteString(" AND parent_id = ?")
		args = append(args, q.ParentID)
	}
	if !q.UpdatedAfter.IsZero() {
		sb.WriteString(" AND updated_at > ?")
		args = append(args, toMillis(q.UpdatedAfter))
	}
	sb.WriteString(orderClause(q.Order))
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSQLRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table, owner string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, table, owner)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE tbl = ? AND owner = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByParent(ctx context.Context, table, owner, parentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE tbl = ? AND owner = ? AND parent_id = ?`, table, owner, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete records by parent: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, table string, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE tbl = ? AND created_at < ?`, table, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PutBlob(ctx context.Context, owner, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (owner, id, data, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, id) DO UPDATE SET data = excluded.data`,
		owner, id, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBlob(ctx context.Context, owner, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE owner = ? AND id = ?`, owner, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) DeleteBlobs(ctx context.Context, owner string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE owner = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete blobs: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, owner string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_items WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear blobs: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear all: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "kv_items", "blobs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLRecord(row sqlScanner) (*Record, error) {
	var (
		rec              Record
		created, updated int64
		data             string
	)
	if err := row.Scan(&rec.Table, &rec.Owner, &rec.ID, &rec.ParentID, &created, &updated, &data); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(updated)
	rec.Data = []byte(data)
	return &rec, nil
}
