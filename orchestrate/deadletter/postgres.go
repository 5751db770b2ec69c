package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue stores records in a PostgreSQL table through a connection pool.
type PostgresQueue struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresQueue(ctx context.Context, databaseURL, table string) (*PostgresQueue, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	q := &PostgresQueue{pool: pool, table: table}
	if err := q.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return q, nil
}

func (q *PostgresQueue) initSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT UNIQUE NOT NULL,
			message JSONB NOT NULL,
			error TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`, q.table))
	return err
}

func (q *PostgresQueue) Add(ctx context.Context, record Record) error {
	message, metadata, err := encodeFields(record)
	if err != nil {
		return err
	}

	_, err = q.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, message, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, q.table), record.ID, message, record.Error, metadata, record.Timestamp)
	return err
}

func (q *PostgresQueue) All(ctx context.Context) ([]Record, error) {
	rows, err := q.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, message, error, metadata, created_at
		FROM %s ORDER BY seq
	`, q.table))
	if err != nil {
		return nil, err
	}
	return collectRecords(ctx, rows)
}

func (q *PostgresQueue) Clear(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, q.table))
	return err
}

// Drain locks every row, decodes it, and deletes the decoded rows in one
// transaction. Nothing is deleted unless the commit succeeds.
func (q *PostgresQueue) Drain(ctx context.Context) ([]Record, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT id, message, error, metadata, created_at
		FROM %s ORDER BY seq FOR UPDATE
	`, q.table))
	if err != nil {
		return nil, err
	}
	records, err := collectRecords(ctx, rows)
	if err != nil {
		return nil, err
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, record := range records {
			ids[i] = record.ID
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, q.table), ids); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func collectRecords(ctx context.Context, rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record   Record
			message  []byte
			metadata []byte
			created  time.Time
		)
		if err := rows.Scan(&record.ID, &message, &record.Error, &metadata, &created); err != nil {
			return nil, err
		}
		if err := decodeFields(&record, message, metadata); err != nil {
			skipMalformed(ctx, "postgres", record.ID, err)
			continue
		}
		record.Timestamp = created
		records = append(records, record)
	}

	return records, rows.Err()
}

func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}
