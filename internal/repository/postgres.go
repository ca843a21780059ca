package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	migrations, err := Migrations(DialectPostgres)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(databaseURL, migrations); err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetItem(ctx context.Context, owner, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_items WHERE owner = $1 AND item_key = $2`, owner, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get item: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) SetItem(ctx context.Context, owner, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_items (owner, item_key, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, item_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		owner, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set item: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveItem(ctx context.Context, owner, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_items WHERE owner = $1 AND item_key = $2`, owner, key); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(`
			INSERT INTO records (tbl, owner, id, parent_id, created_at, updated_at, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
			ON CONFLICT (tbl, owner, id) DO UPDATE SET
				parent_id = EXCLUDED.parent_id,
				updated_at = EXCLUDED.updated_at,
				data = EXCLUDED.data`,
			r.Table, r.Owner, r.ID, r.ParentID, toMillis(r.CreatedAt), toMillis(r.UpdatedAt), string(r.Data))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("put records: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, table, owner, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tbl, owner, id, parent_id, created_at, updated_at, data::text
		FROM records WHERE tbl = $1 AND owner = $2 AND id = $3`, table, owner, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, table, owner string, q Query) ([]Record, error) {
	sql := `SELECT tbl, owner, id, parent_id, created_at, updated_at, data::text
		FROM records WHERE tbl = $1 AND owner = $2`
	args := []any{table, owner}
	if q.ParentID != "" {
		args = append(args, q.ParentID)
		sql += " AND parent_id = $" + strconv.Itoa(len(args))
	}
	if !q.UpdatedAfter.IsZero() {
		args = append(args, toMillis(q.UpdatedAfter))
		sql += " AND updated_at > $" + strconv.Itoa(len(args))
	}
	sql += orderClause(q.Order)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, table, owner string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND owner = $2 AND id = ANY($3)`, table, owner, ids)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByParent(ctx context.Context, table, owner, parentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND owner = $2 AND parent_id = $3`, table, owner, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete records by parent: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, table string, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND created_at < $2`, table, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PutBlob(ctx context.Context, owner, id string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (owner, id, data, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, id) DO UPDATE SET data = EXCLUDED.data`,
		owner, id, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBlob(ctx context.Context, owner, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM blobs WHERE owner = $1 AND id = $2`, owner, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

func (s *PostgresStore) DeleteBlobs(ctx context.Context, owner string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM blobs WHERE owner = $1 AND id = ANY($2)`, owner, ids); err != nil {
		return fmt.Errorf("delete blobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, owner string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM records WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM kv_items WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM blobs WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("clear blobs: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE records, kv_items, blobs`); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
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
