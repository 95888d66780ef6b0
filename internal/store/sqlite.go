package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/obsidx/obsidx/internal/chunk"
	oerrors "github.com/obsidx/obsidx/internal/errors"
)

// ChunkDBName is the SQLite database file inside the data directory.
const ChunkDBName = "chunks.db"

// queryableFields maps Store.QueryByField names to SQL expressions.
// Fields not listed here are rejected rather than silently matching
// nothing.
var queryableFields = map[string]string{
	"source_file":   "source_file",
	"section_title": "section_title",
	"title":         "json_extract(metadata, '$.title')",
	"author":        "json_extract(metadata, '$.author')",
	"type":          "json_extract(metadata, '$.type')",
}

// SQLiteStore persists chunk records in a single SQLite database.
// A single write connection avoids SQLITE_BUSY churn; WAL mode keeps
// concurrent readers (status commands, a second process) working.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the chunk database at path.
// An empty path opens an in-memory database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, oerrors.New(oerrors.ErrCodeStoreUnavailable,
				fmt.Sprintf("failed to create store directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oerrors.New(oerrors.ErrCodeStoreUnavailable,
			fmt.Sprintf("failed to open chunk database %s", path), err)
	}

	// Single writer; modernc.org/sqlite serializes access anyway and a
	// pool of connections just multiplies lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN pragma parameters are ignored by modernc.org/sqlite, so set
	// them through statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, oerrors.New(oerrors.ErrCodeStoreUnavailable,
				fmt.Sprintf("failed to apply %q", pragma), err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id            TEXT PRIMARY KEY,
		source_file   TEXT NOT NULL,
		chunk_index   INTEGER NOT NULL,
		content       TEXT NOT NULL,
		token_count   INTEGER NOT NULL,
		header_path   TEXT NOT NULL,
		section_title TEXT NOT NULL DEFAULT '',
		span_start    INTEGER NOT NULL DEFAULT 0,
		span_end      INTEGER NOT NULL DEFAULT 0,
		prev_id       TEXT NOT NULL DEFAULT '',
		next_id       TEXT NOT NULL DEFAULT '',
		metadata      TEXT NOT NULL DEFAULT '{}',
		vector        BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_file ON chunks(source_file);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return oerrors.New(oerrors.ErrCodeStoreUnavailable, "failed to create chunk schema", err)
	}
	return nil
}

// Upsert inserts or replaces records by chunk ID.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks
			(id, source_file, chunk_index, content, token_count,
			 header_path, section_title, span_start, span_end,
			 prev_id, next_id, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_file   = excluded.source_file,
			chunk_index   = excluded.chunk_index,
			content       = excluded.content,
			token_count   = excluded.token_count,
			header_path   = excluded.header_path,
			section_title = excluded.section_title,
			span_start    = excluded.span_start,
			span_end      = excluded.span_end,
			prev_id       = excluded.prev_id,
			next_id       = excluded.next_id,
			metadata      = excluded.metadata,
			vector        = excluded.vector`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		c := rec.Chunk
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("record without chunk ID")
		}

		headerPath, err := json.Marshal(c.HeaderPath)
		if err != nil {
			return nil, fmt.Errorf("failed to encode header path for %s: %w", c.ID, err)
		}
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for %s: %w", c.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			c.ID, c.SourceFile, c.ChunkIndex, c.Content, c.TokenCount,
			string(headerPath), c.SectionTitle, c.Span.Start, c.Span.End,
			c.PrevID, c.NextID, string(metadata), encodeVector(rec.Vector))
		if err != nil {
			return nil, fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return ids, nil
}

// DeleteByIDs removes records by chunk ID.
func (s *SQLiteStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM chunks WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// QueryByField returns records whose field matches value exactly,
// ordered by source file and chunk index for stable results.
func (s *SQLiteStore) QueryByField(ctx context.Context, field, value string, limit int) ([]Record, error) {
	expr, ok := queryableFields[field]
	if !ok {
		return nil, oerrors.New(oerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported query field %q", field), nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := fmt.Sprintf(`
		SELECT id, source_file, chunk_index, content, token_count,
		       header_path, section_title, span_start, span_end,
		       prev_id, next_id, metadata, vector
		FROM chunks WHERE %s = ?
		ORDER BY source_file, chunk_index`, expr)
	args := []any{value}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by %s: %w", field, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Paths returns the distinct source files currently indexed.
func (s *SQLiteStore) Paths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT source_file FROM chunks ORDER BY source_file")
	if err != nil {
		return nil, fmt.Errorf("failed to list source files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Close finishes pending WAL work and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		c          chunk.DocumentChunk
		headerPath string
		metadata   string
		vector     []byte
	)
	err := rows.Scan(&c.ID, &c.SourceFile, &c.ChunkIndex, &c.Content,
		&c.TokenCount, &headerPath, &c.SectionTitle,
		&c.Span.Start, &c.Span.End, &c.PrevID, &c.NextID,
		&metadata, &vector)
	if err != nil {
		return Record{}, fmt.Errorf("failed to scan chunk row: %w", err)
	}

	if err := json.Unmarshal([]byte(headerPath), &c.HeaderPath); err != nil {
		return Record{}, fmt.Errorf("corrupt header path for chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
		return Record{}, fmt.Errorf("corrupt metadata for chunk %s: %w", c.ID, err)
	}

	return Record{Chunk: &c, Vector: decodeVector(vector)}, nil
}

// encodeVector packs a float32 slice into a little-endian blob.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
