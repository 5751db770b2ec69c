package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteQueue stores records in a SQLite table.
type SQLiteQueue struct {
	db    *sql.DB
	table string
}

// NewSQLiteQueue opens (creating if needed) the database at dbPath and its table.
func NewSQLiteQueue(ctx context.Context, dbPath, table string) (*SQLiteQueue, error) {
	if dbPath == "" {
		dbPath = "./data/deadletters.db"
	}
	if err := validTable(table); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(dbPath, "file:") && dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	q := &SQLiteQueue{db: db, table: table}
	if err := q.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return q, nil
}

func (q *SQLiteQueue) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		message TEXT NOT NULL,
		error TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
	`, q.table)

	_, err := q.db.ExecContext(ctx, schema)
	return err
}

func (q *SQLiteQueue) Add(ctx context.Context, record Record) error {
	message, metadata, err := encodeFields(record)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, message, error, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, q.table), record.ID, string(message), record.Error, string(metadata), record.Timestamp.UTC())
	return err
}

func (q *SQLiteQueue) All(ctx context.Context) ([]Record, error) {
	return q.selectAll(ctx, q.db)
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (q *SQLiteQueue) selectAll(ctx context.Context, db sqlQuerier) ([]Record, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, message, error, metadata, created_at
		FROM %s ORDER BY seq
	`, q.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record   Record
			message  string
			metadata sql.NullString
			created  time.Time
		)
		if err := rows.Scan(&record.ID, &message, &record.Error, &metadata, &created); err != nil {
			return nil, err
		}
		if err := decodeFields(&record, []byte(message), []byte(metadata.String)); err != nil {
			skipMalformed(ctx, "sqlite", record.ID, err)
			continue
		}
		record.Timestamp = created
		records = append(records, record)
	}

	return records, rows.Err()
}

func (q *SQLiteQueue) Clear(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, q.table))
	return err
}

// Drain deletes the rows it could decode in the same transaction that read them.
func (q *SQLiteQueue) Drain(ctx context.Context) ([]Record, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	records, err := q.selectAll(ctx, tx)
	if err != nil {
		return nil, err
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, q.table))
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		for _, record := range records {
			if _, err := stmt.ExecContext(ctx, record.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return records, nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
