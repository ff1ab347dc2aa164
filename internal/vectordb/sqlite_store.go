package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteFile = "vectors.sqlite"

// SQLiteStore keeps a collection in a sqlite file inside the vector database
// directory and scores queries in process.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// OpenSQLite is a StoreFactory for SQLiteStore.
func OpenSQLite(dir, collection string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+filepath.Join(dir, sqliteFile)+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
        collection TEXT NOT NULL,
        id TEXT NOT NULL,
        text TEXT NOT NULL,
        source TEXT,
        page INTEGER,
        vector BLOB NOT NULL,
        PRIMARY KEY (collection, id)
    );`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, collection: collection}, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?;`, s.collection); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (collection, id, text, source, page, vector) VALUES (?,?,?,?,?,?);`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, s.collection, r.ID, r.Text, r.Source, r.Page, packVector(r.Vector)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, source, page, vector FROM chunks WHERE collection = ?;`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &m.Source, &m.Page, &blob); err != nil {
			return nil, err
		}
		m.Vector = unpackVector(blob)
		m.Score = cosine(vec, m.Vector)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(matches, k), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func packVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func unpackVector(b []byte) []float32 {
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}
