package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/store"
)

type fakeEmbedder struct {
	calls  int
	inputs [][]string
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, input []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{float32(len(input[i])), 0.5}
	}
	return out, nil
}

type fakeIndex struct {
	docs      map[string]store.SummaryRecord
	searchErr error
	results   []store.SummarySearchResult
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]store.SummaryRecord)}
}

func (f *fakeIndex) UpsertSummary(ctx context.Context, rec store.SummaryRecord) error {
	f.docs[rec.DocID] = rec
	return nil
}

func (f *fakeIndex) UpsertSummaries(ctx context.Context, recs []store.SummaryRecord) error {
	for _, rec := range recs {
		f.docs[rec.DocID] = rec
	}
	return nil
}

func (f *fakeIndex) SearchSummaries(ctx context.Context, userID string, vector []float32, topK int) ([]store.SummarySearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []store.SummarySearchResult
	for _, res := range f.results {
		if res.UserID == userID {
			out = append(out, res)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeIndex) LatestSummary(ctx context.Context, userID string) (store.SummarySearchResult, bool, error) {
	for _, res := range f.results {
		if res.UserID == userID {
			return res, true, nil
		}
	}
	return store.SummarySearchResult{}, false, nil
}

func snapshotForDate(date int) health.Snapshot {
	return health.Snapshot{
		Date:     date,
		Platform: "android",
		SleepMin: 420,
		Steps:    8000,
		Weight:   70,
		HeightM:  1.75,
	}
}

func TestIngestOneMissingDate(t *testing.T) {
	ks := New(&fakeEmbedder{}, newFakeIndex())
	_, err := ks.IngestOne(context.Background(), health.Snapshot{}, "u1", "api")
	if !errors.Is(err, ErrMissingDate) {
		t.Fatalf("expected ErrMissingDate, got %v", err)
	}
}

func TestIngestOneStoresDocument(t *testing.T) {
	idx := newFakeIndex()
	ks := New(&fakeEmbedder{}, idx)

	res, err := ks.IngestOne(context.Background(), snapshotForDate(20250601), "u1", "healthkit")
	if err != nil {
		t.Fatalf("IngestOne: %v", err)
	}
	wantID := "u1_2025-06-01_healthkit"
	if res.DocumentID != wantID {
		t.Fatalf("expected doc id %q, got %q", wantID, res.DocumentID)
	}
	if res.Status != StatusSaved {
		t.Fatalf("expected status saved, got %q", res.Status)
	}
	rec, ok := idx.docs[wantID]
	if !ok {
		t.Fatal("document not stored")
	}
	if rec.HealthScore <= 0 || rec.HealthScore > 100 {
		t.Fatalf("implausible health score %d", rec.HealthScore)
	}
	if rec.RecommendedIntensity == "" {
		t.Fatal("recommended intensity not derived")
	}
}

func TestIngestOneUpsertReplaces(t *testing.T) {
	idx := newFakeIndex()
	ks := New(&fakeEmbedder{}, idx)

	first := snapshotForDate(20250601)
	second := snapshotForDate(20250601)
	second.Steps = 15000

	if _, err := ks.IngestOne(context.Background(), first, "u1", "api"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := ks.IngestOne(context.Background(), second, "u1", "api"); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if len(idx.docs) != 1 {
		t.Fatalf("expected 1 live document, got %d", len(idx.docs))
	}
	rec := idx.docs["u1_2025-06-01_api"]
	if !strings.Contains(string(rec.Snapshot), "15000") {
		t.Fatal("second write did not replace the document")
	}
}

func TestIngestBatchSkipsDatelessItems(t *testing.T) {
	idx := newFakeIndex()
	ks := New(&fakeEmbedder{}, idx)

	snaps := []health.Snapshot{
		snapshotForDate(20250601),
		{}, // no date
		snapshotForDate(20250602),
	}
	res, err := ks.IngestBatch(context.Background(), snaps, "u1", "api")
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if res.Status != StatusBatchSaved {
		t.Fatalf("expected batch_saved, got %q", res.Status)
	}
	if res.Count != 2 || res.Skipped != 1 || res.UniqueDates != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestIngestBatchAllSkipped(t *testing.T) {
	ks := New(&fakeEmbedder{}, newFakeIndex())

	res, err := ks.IngestBatch(context.Background(), []health.Snapshot{{}, {}}, "u1", "api")
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if res.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %q", res.Status)
	}

	res, err = ks.IngestBatch(context.Background(), nil, "u1", "api")
	if err != nil {
		t.Fatalf("empty IngestBatch: %v", err)
	}
	if res.Status != StatusSkipped {
		t.Fatalf("empty batch: expected skipped, got %q", res.Status)
	}
}

func TestIngestBatchSingleEmbedCall(t *testing.T) {
	emb := &fakeEmbedder{}
	ks := New(emb, newFakeIndex())

	snaps := []health.Snapshot{
		snapshotForDate(20250601),
		snapshotForDate(20250602),
		snapshotForDate(20250603),
	}
	if _, err := ks.IngestBatch(context.Background(), snaps, "u1", "api"); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("expected 1 batched embed call, got %d", emb.calls)
	}
}

func TestEmbeddingMemoization(t *testing.T) {
	emb := &fakeEmbedder{}
	ks := New(emb, newFakeIndex())

	snap := snapshotForDate(20250601)
	if _, err := ks.IngestOne(context.Background(), snap, "u1", "api"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	// Identical snapshot renders identical text, so the vector comes from
	// the memo.
	if _, err := ks.IngestOne(context.Background(), snap, "u2", "api"); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("expected memoized embedding, got %d embed calls", emb.calls)
	}
}

func TestSearchSimilarDegradesOnFailure(t *testing.T) {
	idx := newFakeIndex()
	idx.searchErr = errors.New("index down")
	ks := New(&fakeEmbedder{}, idx)

	res := ks.SearchSimilar(context.Background(), "query", "u1", 3)
	if !res.Failed() {
		t.Fatal("expected failed retrieval marker")
	}
	if len(res.Neighbors) != 0 {
		t.Fatalf("expected no neighbors, got %d", len(res.Neighbors))
	}

	embErr := &fakeEmbedder{err: errors.New("embedder down")}
	ks = New(embErr, newFakeIndex())
	res = ks.SearchSimilar(context.Background(), "query", "u1", 3)
	if !res.Failed() || len(res.Neighbors) != 0 {
		t.Fatal("embedder failure must degrade to an empty annotated result")
	}
}

func TestSearchSimilarUserScoped(t *testing.T) {
	idx := newFakeIndex()
	idx.results = []store.SummarySearchResult{
		{DocID: "u1_2025-06-01_api", UserID: "u1", Date: "2025-06-01", EmbeddingText: "mine", Distance: 0.1},
		{DocID: "u2_2025-06-01_api", UserID: "u2", Date: "2025-06-01", EmbeddingText: "theirs", Distance: 0.05},
	}
	ks := New(&fakeEmbedder{}, idx)

	res := ks.SearchSimilar(context.Background(), "query", "u1", 3)
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Err)
	}
	if len(res.Neighbors) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(res.Neighbors))
	}
	if res.Neighbors[0].UserID != "u1" {
		t.Fatalf("cross-user leakage: got %q", res.Neighbors[0].UserID)
	}
}

func TestDocumentID(t *testing.T) {
	got := DocumentID("alice@example.com", "2025-06-01", "healthkit")
	want := "alice@example.com_2025-06-01_healthkit"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("   "); got != emptyText {
		t.Fatalf("blank input must map to the placeholder, got %q", got)
	}
	long := strings.Repeat("가", maxEmbedRunes+100)
	got := truncate(long)
	if len([]rune(got)) != maxEmbedRunes {
		t.Fatalf("expected %d runes, got %d", maxEmbedRunes, len([]rune(got)))
	}
	// Two texts differing only past the cap collide on the same key.
	other := strings.Repeat("가", maxEmbedRunes) + "끝"
	if truncate(long) != truncate(other) {
		t.Fatal("texts differing beyond the cap must truncate identically")
	}
}
