// Package knowledge is the content-addressed store of daily health
// summaries: embedding memoization, idempotent per-(user,date,source)
// upsert, and user-scoped similarity retrieval.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/wearcoach/wearcoach/internal/cache"
	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/store"
	"github.com/wearcoach/wearcoach/internal/telemetry"
)

// ErrMissingDate is returned when a single-item ingest lacks a date.
var ErrMissingDate = errors.New("summary date required")

// maxEmbedRunes caps text before embedding; the truncated text is also the
// cache key, so texts differing only beyond the cap collide intentionally.
const maxEmbedRunes = 8000

// emptyText replaces blank input so the embedding call never sees an empty
// string.
const emptyText = "데이터 없음"

// Embedder is the embedding collaborator (order-preserving batch).
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Index is the vector-index collaborator backing the knowledge store.
type Index interface {
	UpsertSummary(ctx context.Context, rec store.SummaryRecord) error
	UpsertSummaries(ctx context.Context, recs []store.SummaryRecord) error
	SearchSummaries(ctx context.Context, userID string, vector []float32, topK int) ([]store.SummarySearchResult, error)
	LatestSummary(ctx context.Context, userID string) (store.SummarySearchResult, bool, error)
}

// IngestResult reports a stored single summary.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Date       string `json:"date"`
	UserID     string `json:"user_id"`
	Source     string `json:"source"`
	Platform   string `json:"platform"`
}

// BatchResult reports a batch ingestion.
type BatchResult struct {
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Count       int    `json:"count"`
	UniqueDates int    `json:"unique_dates"`
	Skipped     int    `json:"skipped"`
	UserID      string `json:"user_id"`
	Source      string `json:"source"`
}

// Batch result statuses.
const (
	StatusSaved      = "saved"
	StatusBatchSaved = "batch_saved"
	StatusSkipped    = "skipped"
)

// Neighbor is one retrieved summary with its similarity distance.
type Neighbor struct {
	DocumentID           string          `json:"document_id"`
	UserID               string          `json:"user_id"`
	Date                 string          `json:"date"`
	Source               string          `json:"source"`
	Platform             string          `json:"platform"`
	HealthScore          int             `json:"health_score"`
	RecommendedIntensity string          `json:"recommended_intensity"`
	SummaryText          string          `json:"summary_text"`
	Snapshot             health.Snapshot `json:"raw"`
	Distance             float64         `json:"similarity_distance"`
}

// RetrievalResult is the outcome of a similarity search. A failed search is
// reported as an empty neighbor list with Err set, never as a hard error.
type RetrievalResult struct {
	Neighbors []Neighbor `json:"similar_days"`
	Query     string     `json:"query"`
	Err       string     `json:"error,omitempty"`
}

// Failed reports whether the retrieval degraded due to a collaborator error.
func (r RetrievalResult) Failed() bool { return r.Err != "" }

// KnowledgeStore coordinates embedding memoization and the vector index.
type KnowledgeStore struct {
	embedder Embedder
	index    Index
	vectors  *cache.VectorCache
	logger   *log.Logger
	tele     *telemetry.Telemetry
}

// Option configures a KnowledgeStore.
type Option func(*KnowledgeStore)

// WithVectorCacheSize bounds the embedding memo (default 2048 entries).
func WithVectorCacheSize(n int) Option {
	return func(k *KnowledgeStore) { k.vectors = cache.NewVectorCache(n) }
}

// WithTelemetry wires metric recording.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(k *KnowledgeStore) { k.tele = t }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(k *KnowledgeStore) { k.logger = l }
}

// New builds a knowledge store over the given collaborators.
func New(embedder Embedder, index Index, opts ...Option) *KnowledgeStore {
	k := &KnowledgeStore{
		embedder: embedder,
		index:    index,
		vectors:  cache.NewVectorCache(2048),
		logger:   log.New(log.Writer(), "[KNOWLEDGE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// DocumentID builds the deterministic composite key for one summary. Time of
// write is deliberately excluded so re-ingesting a day replaces the prior
// document.
func DocumentID(userID, date, source string) string {
	return fmt.Sprintf("%s_%s_%s", userID, date, source)
}

// IngestOne embeds and upserts a single day's snapshot.
func (k *KnowledgeStore) IngestOne(ctx context.Context, snap health.Snapshot, userID, source string) (IngestResult, error) {
	if snap.Date <= 0 {
		return IngestResult{}, ErrMissingDate
	}
	rec, err := k.buildRecord(ctx, snap, userID, source)
	if err != nil {
		return IngestResult{}, err
	}
	if err := k.index.UpsertSummary(ctx, rec); err != nil {
		return IngestResult{}, fmt.Errorf("upsert summary: %w", err)
	}
	k.logger.Printf("stored %s (platform: %s)", rec.DocID, rec.Platform)
	return IngestResult{
		DocumentID: rec.DocID,
		Status:     StatusSaved,
		Date:       rec.Date,
		UserID:     userID,
		Source:     source,
		Platform:   rec.Platform,
	}, nil
}

// IngestBatch ingests many snapshots with one batched embedding call.
// Items lacking a date are skipped individually; an empty or all-skipped
// batch is a no-op reported as skipped.
func (k *KnowledgeStore) IngestBatch(ctx context.Context, snaps []health.Snapshot, userID, source string) (BatchResult, error) {
	if len(snaps) == 0 {
		return BatchResult{Status: StatusSkipped, Reason: "empty summaries", UserID: userID, Source: source}, nil
	}

	type pending struct {
		snap health.Snapshot
		text string
	}
	var items []pending
	skipped := 0
	for _, snap := range snaps {
		if snap.Date <= 0 {
			k.logger.Printf("warn: summary without date skipped")
			skipped++
			continue
		}
		items = append(items, pending{snap: snap, text: truncate(health.NaturalText(snap))})
	}
	if len(items) == 0 {
		return BatchResult{Status: StatusSkipped, Reason: "no valid summaries", Skipped: skipped, UserID: userID, Source: source}, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.text
	}
	vectors, err := k.embedBatchCached(ctx, texts)
	if err != nil {
		return BatchResult{}, fmt.Errorf("batch embed: %w", err)
	}

	recs := make([]store.SummaryRecord, len(items))
	dates := make(map[string]struct{}, len(items))
	for i, it := range items {
		rec, err := k.recordFor(it.snap, userID, source, it.text, vectors[i])
		if err != nil {
			return BatchResult{}, err
		}
		recs[i] = rec
		dates[rec.Date] = struct{}{}
	}
	if err := k.index.UpsertSummaries(ctx, recs); err != nil {
		return BatchResult{}, fmt.Errorf("upsert summaries: %w", err)
	}
	k.logger.Printf("stored %d documents, %d unique dates", len(recs), len(dates))
	return BatchResult{
		Status:      StatusBatchSaved,
		Count:       len(recs),
		UniqueDates: len(dates),
		Skipped:     skipped,
		UserID:      userID,
		Source:      source,
	}, nil
}

// SearchSimilar embeds the query and returns the user's nearest summaries.
// Collaborator failures degrade to an empty annotated result: retrieval must
// never abort the surrounding conversation.
func (k *KnowledgeStore) SearchSimilar(ctx context.Context, queryText, userID string, topK int) RetrievalResult {
	query := truncate(queryText)
	vec, err := k.embedCached(ctx, query)
	if err != nil {
		k.logger.Printf("warn: query embed failed: %v", err)
		k.tele.ObserveRetrievalFailure()
		return RetrievalResult{Query: query, Err: err.Error()}
	}
	rows, err := k.index.SearchSummaries(ctx, userID, vec, topK)
	if err != nil {
		k.logger.Printf("warn: similarity search failed: %v", err)
		k.tele.ObserveRetrievalFailure()
		return RetrievalResult{Query: query, Err: err.Error()}
	}
	neighbors := make([]Neighbor, 0, len(rows))
	for _, row := range rows {
		neighbors = append(neighbors, neighborFrom(row))
	}
	return RetrievalResult{Neighbors: neighbors, Query: query}
}

// Latest returns the most recent summary for a user, if any.
func (k *KnowledgeStore) Latest(ctx context.Context, userID string) (Neighbor, bool, error) {
	row, ok, err := k.index.LatestSummary(ctx, userID)
	if err != nil || !ok {
		return Neighbor{}, false, err
	}
	return neighborFrom(row), true, nil
}

func neighborFrom(row store.SummarySearchResult) Neighbor {
	var snap health.Snapshot
	if len(row.Snapshot) > 0 {
		if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
			snap = health.Snapshot{}
		}
	}
	return Neighbor{
		DocumentID:           row.DocID,
		UserID:               row.UserID,
		Date:                 row.Date,
		Source:               row.Source,
		Platform:             row.Platform,
		HealthScore:          row.HealthScore,
		RecommendedIntensity: row.RecommendedIntensity,
		SummaryText:          row.EmbeddingText,
		Snapshot:             snap,
		Distance:             row.Distance,
	}
}

func (k *KnowledgeStore) buildRecord(ctx context.Context, snap health.Snapshot, userID, source string) (store.SummaryRecord, error) {
	text := truncate(health.NaturalText(snap))
	vec, err := k.embedCached(ctx, text)
	if err != nil {
		return store.SummaryRecord{}, fmt.Errorf("embed summary: %w", err)
	}
	return k.recordFor(snap, userID, source, text, vec)
}

func (k *KnowledgeStore) recordFor(snap health.Snapshot, userID, source, text string, vec []float32) (store.SummaryRecord, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return store.SummaryRecord{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	date := snap.DateString()
	platform := snap.Platform
	if platform == "" {
		platform = "unknown"
	}
	return store.SummaryRecord{
		DocID:                DocumentID(userID, date, source),
		UserID:               userID,
		Date:                 date,
		Source:               source,
		Platform:             platform,
		HealthScore:          health.Score(snap),
		RecommendedIntensity: health.RecommendIntensity(snap),
		EmbeddingText:        text,
		Snapshot:             raw,
		Vector:               vec,
	}, nil
}

// embedCached returns the memoized vector for text, embedding on miss.
func (k *KnowledgeStore) embedCached(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := k.vectors.Get(text); ok {
		return vec, nil
	}
	vecs, err := k.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(vecs))
	}
	k.vectors.Put(text, vecs[0])
	return vecs[0], nil
}

// embedBatchCached resolves vectors for all texts, embedding only the cache
// misses in a single collaborator call. Duplicate texts embed once.
func (k *KnowledgeStore) embedBatchCached(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var unique []string
	pos := make(map[string]int)
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := k.vectors.Get(text); ok {
			out[i] = vec
			continue
		}
		if _, dup := pos[text]; !dup {
			pos[text] = len(unique)
			unique = append(unique, text)
		}
		missingIdx = append(missingIdx, i)
	}
	if len(unique) == 0 {
		return out, nil
	}
	vecs, err := k.embedder.Embed(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(unique) {
		return nil, fmt.Errorf("expected %d vectors, got %d", len(unique), len(vecs))
	}
	for i, text := range unique {
		k.vectors.Put(text, vecs[i])
	}
	for _, idx := range missingIdx {
		out[idx] = vecs[pos[texts[idx]]]
	}
	return out, nil
}

// truncate caps text at the embedding limit and substitutes blank input.
func truncate(text string) string {
	if strings.TrimSpace(text) == "" {
		return emptyText
	}
	runes := []rune(text)
	if len(runes) > maxEmbedRunes {
		return string(runes[:maxEmbedRunes])
	}
	return text
}
