package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteEngine stores each document as a JSON row keyed by collection and
// position, so Load returns documents in the order they were committed.
type SQLiteEngine struct {
	db *sql.DB
}

// OpenSQLiteEngine opens or creates the SQLite database at path.
func OpenSQLiteEngine(path string) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite engine: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteEngine{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			seq INTEGER NOT NULL,
			body BLOB NOT NULL,
			PRIMARY KEY (collection, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (e *SQLiteEngine) Load(ctx context.Context, collection string) ([]Document, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("load %s: %w", collection, err)
		}
		doc, err := DeserializeDocument(body)
		if err != nil {
			return nil, corrupt(collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}
	return docs, nil
}

func (e *SQLiteEngine) Commit(ctx context.Context, collection string, docs []Document) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit %s: %w", collection, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("commit %s: %w", collection, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (collection, seq, body) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("commit %s: %w", collection, err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		body, err := doc.Serialize()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, i, body); err != nil {
			return fmt.Errorf("commit %s: %w", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", collection, err)
	}
	return nil
}

func (e *SQLiteEngine) Drop(ctx context.Context, collection string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("drop %s: %w", collection, err)
	}
	return nil
}

func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}
