package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteArchive implements Archive on a local SQLite file. Vector similarity
// is computed in application memory with cosine similarity, which is fine at
// this archive's scale; installations that outgrow it move to
// PostgresArchive.
type SQLiteArchive struct {
	db       *sql.DB
	embedder Embedder
}

// NewSQLiteArchive opens (or creates) the archive at dbPath. Use ":memory:"
// for an ephemeral archive. embedder may be nil; records are then stored
// without vectors and SearchSimilar returns nothing.
func NewSQLiteArchive(ctx context.Context, dbPath string, embedder Embedder) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &SQLiteArchive{db: db, embedder: embedder}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL,
			embedding BLOB,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_records_importance ON memory_records(importance);
	`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Append stores rec, attaching an embedding of its content when an embedder
// is configured. An embedding failure degrades to storing without a vector.
func (a *SQLiteArchive) Append(ctx context.Context, rec Record) error {
	var blob []byte
	if a.embedder != nil {
		if vec, err := a.embedder.Embed(ctx, rec.Content); err == nil {
			blob = encodeVector(vec)
		}
	}

	query := `
		INSERT INTO memory_records (id, kind, content, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := a.db.ExecContext(ctx, query,
		rec.ID, string(rec.Kind), rec.Content, rec.Importance, blob,
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Load returns up to limit archived records, oldest first.
func (a *SQLiteArchive) Load(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, kind, content, importance, created_at
		FROM memory_records
		ORDER BY created_at ASC
		LIMIT ?
	`
	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// Search matches any query word against archived content, case-insensitive,
// ranked by importance then recency.
func (a *SQLiteArchive) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}

	conds := make([]string, len(words))
	args := make([]any, 0, len(words)+1)
	for i, w := range words {
		conds[i] = "lower(content) LIKE ?"
		args = append(args, "%"+w+"%")
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT id, kind, content, importance, created_at
		FROM memory_records
		WHERE %s
		ORDER BY importance DESC, created_at DESC
		LIMIT ?
	`, strings.Join(conds, " OR "))

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// SearchSimilar loads all stored embeddings and ranks them by cosine
// similarity in application memory.
func (a *SQLiteArchive) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]ScoredRecord, error) {
	query := `
		SELECT id, kind, content, importance, embedding, created_at
		FROM memory_records
		WHERE embedding IS NOT NULL
	`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var results []ScoredRecord
	for rows.Next() {
		var rec Record
		var kind string
		var blob []byte
		var createdAt string
		if err := rows.Scan(&rec.ID, &kind, &rec.Content, &rec.Importance, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.CreatedAt, _ = parseTimestamp(createdAt)

		stored := decodeVector(blob)
		if len(stored) == 0 || len(stored) != len(queryVector) {
			continue
		}
		results = append(results, ScoredRecord{
			Record: rec,
			Score:  cosineSimilarity(queryVector, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Close releases the database connection.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(rows rowScanner) (Record, error) {
	var rec Record
	var kind, createdAt string
	if err := rows.Scan(&rec.ID, &kind, &rec.Content, &rec.Importance, &createdAt); err != nil {
		return Record{}, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Kind = Kind(kind)
	rec.CreatedAt, _ = parseTimestamp(createdAt)
	return rec, nil
}

// encodeVector converts a float32 slice to little-endian bytes for storage.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts stored bytes back to a float32 slice.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity is in [-1, 1]; for normalized embedding vectors it equals
// the dot product.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// parseTimestamp handles the formats SQLite emits for TEXT timestamps.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}
