// Package store persists daily summary documents in Postgres with pgvector
// embeddings. It is the durable half of the knowledge store: one live row
// per (user, date, source), replaced wholesale on re-ingestion.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DefaultEmbeddingDimensions is the expected length of stored vectors.
const DefaultEmbeddingDimensions = 1536

// Store wraps the Postgres connection.
type Store struct {
	DB *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// SummaryRecord is one daily summary document keyed by (user, date, source).
type SummaryRecord struct {
	DocID                string
	UserID               string
	Date                 string // yyyy-mm-dd
	Source               string
	Platform             string
	HealthScore          int
	RecommendedIntensity string
	EmbeddingText        string
	Snapshot             []byte // serialized normalized snapshot
	Vector               []float32
	UpdatedAt            time.Time
}

// SummarySearchResult is one similarity-search neighbor.
type SummarySearchResult struct {
	DocID                string
	UserID               string
	Date                 string
	Source               string
	Platform             string
	HealthScore          int
	RecommendedIntensity string
	EmbeddingText        string
	Snapshot             []byte
	Distance             float64
	UpdatedAt            time.Time
}

const upsertSummarySQL = `
INSERT INTO summaries (doc_id, user_id, date, source, platform, health_score, recommended_intensity, embedding_text, snapshot, embedding, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::vector,NOW())
ON CONFLICT (doc_id) DO UPDATE SET
  user_id = EXCLUDED.user_id,
  date = EXCLUDED.date,
  source = EXCLUDED.source,
  platform = EXCLUDED.platform,
  health_score = EXCLUDED.health_score,
  recommended_intensity = EXCLUDED.recommended_intensity,
  embedding_text = EXCLUDED.embedding_text,
  snapshot = EXCLUDED.snapshot,
  embedding = EXCLUDED.embedding,
  updated_at = NOW();
`

// UpsertSummary stores or replaces the summary for the record's doc_id.
func (s *Store) UpsertSummary(ctx context.Context, rec SummaryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	vectorLiteral, err := encodeVectorLiteral(rec.Vector)
	if err != nil {
		return err
	}
	snapshot := rec.Snapshot
	if len(snapshot) == 0 {
		snapshot = []byte("{}")
	}
	_, err = s.DB.ExecContext(ctx, upsertSummarySQL,
		rec.DocID, rec.UserID, rec.Date, rec.Source, rec.Platform,
		rec.HealthScore, rec.RecommendedIntensity, rec.EmbeddingText,
		snapshot, vectorLiteral)
	return err
}

// UpsertSummaries stores a batch of summaries in one transaction. Later
// records win when the batch repeats a doc_id.
func (s *Store) UpsertSummaries(ctx context.Context, recs []SummaryRecord) (err error) {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSummarySQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range recs {
		if err = validateRecord(rec); err != nil {
			return err
		}
		var vectorLiteral string
		vectorLiteral, err = encodeVectorLiteral(rec.Vector)
		if err != nil {
			return err
		}
		snapshot := rec.Snapshot
		if len(snapshot) == 0 {
			snapshot = []byte("{}")
		}
		if _, err = stmt.ExecContext(ctx,
			rec.DocID, rec.UserID, rec.Date, rec.Source, rec.Platform,
			rec.HealthScore, rec.RecommendedIntensity, rec.EmbeddingText,
			snapshot, vectorLiteral); err != nil {
			return err
		}
	}
	return nil
}

const searchSummariesSQL = `
SELECT doc_id, user_id, date, source, platform, health_score, recommended_intensity, embedding_text, snapshot, updated_at, embedding <=> $1::vector AS distance
FROM summaries
WHERE user_id = $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`

// SearchSummaries returns the closest summaries for the vector, restricted
// to the given user, ordered by ascending distance.
func (s *Store) SearchSummaries(ctx context.Context, userID string, vector []float32, topK int) ([]SummarySearchResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id required")
	}
	if topK <= 0 {
		topK = 3
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, searchSummariesSQL, vecLiteral, userID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []SummarySearchResult
	for rows.Next() {
		var res SummarySearchResult
		var date time.Time
		if err := rows.Scan(&res.DocID, &res.UserID, &date, &res.Source, &res.Platform,
			&res.HealthScore, &res.RecommendedIntensity, &res.EmbeddingText,
			&res.Snapshot, &res.UpdatedAt, &res.Distance); err != nil {
			return nil, err
		}
		res.Date = date.Format("2006-01-02")
		results = append(results, res)
	}
	return results, rows.Err()
}

const latestSummarySQL = `
SELECT doc_id, user_id, date, source, platform, health_score, recommended_intensity, embedding_text, snapshot, updated_at
FROM summaries
WHERE user_id = $1
ORDER BY date DESC, updated_at DESC
LIMIT 1
`

// LatestSummary returns the most recent stored summary for the user.
func (s *Store) LatestSummary(ctx context.Context, userID string) (SummarySearchResult, bool, error) {
	if userID == "" {
		return SummarySearchResult{}, false, fmt.Errorf("user_id required")
	}
	var res SummarySearchResult
	var date time.Time
	err := s.DB.QueryRowContext(ctx, latestSummarySQL, userID).Scan(
		&res.DocID, &res.UserID, &date, &res.Source, &res.Platform,
		&res.HealthScore, &res.RecommendedIntensity, &res.EmbeddingText,
		&res.Snapshot, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return SummarySearchResult{}, false, nil
	}
	if err != nil {
		return SummarySearchResult{}, false, err
	}
	res.Date = date.Format("2006-01-02")
	return res, true, nil
}

// CountSummaries reports the number of stored documents for a user.
func (s *Store) CountSummaries(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func validateRecord(rec SummaryRecord) error {
	if rec.DocID == "" {
		return fmt.Errorf("doc_id required")
	}
	if rec.UserID == "" {
		return fmt.Errorf("user_id required")
	}
	if rec.Date == "" {
		return fmt.Errorf("date required")
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("embedding vector required")
	}
	if !json.Valid(rec.Snapshot) && len(rec.Snapshot) > 0 {
		return fmt.Errorf("snapshot must be valid JSON")
	}
	return nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
