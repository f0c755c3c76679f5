package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wearcoach/wearcoach/internal/intent"
	"github.com/wearcoach/wearcoach/internal/knowledge"
	"github.com/wearcoach/wearcoach/internal/provider"
	"github.com/wearcoach/wearcoach/internal/routine"
	"github.com/wearcoach/wearcoach/internal/store"
)

// fakeProvider replays scripted completions and records every request.
type fakeProvider struct {
	responses []string
	requests  []provider.CompletionRequest
	calls     int
}

func (f *fakeProvider) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	i := f.calls
	f.calls++
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "default answer", nil
}

func (f *fakeProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (f *fakeProvider) lastPrompt() string {
	return f.requests[len(f.requests)-1].UserPrompt
}

type fakeIndex struct {
	results []store.SummarySearchResult
}

func (f *fakeIndex) UpsertSummary(ctx context.Context, rec store.SummaryRecord) error { return nil }
func (f *fakeIndex) UpsertSummaries(ctx context.Context, recs []store.SummaryRecord) error {
	return nil
}

func (f *fakeIndex) SearchSummaries(ctx context.Context, userID string, vector []float32, topK int) ([]store.SummarySearchResult, error) {
	return f.results, nil
}

func (f *fakeIndex) LatestSummary(ctx context.Context, userID string) (store.SummarySearchResult, bool, error) {
	if len(f.results) == 0 {
		return store.SummarySearchResult{}, false, nil
	}
	return f.results[0], true, nil
}

const validRoutineJSON = `{
  "analysis": "ok",
  "ai_recommended_routine": {
    "total_time_min": 30, "total_calories": 200,
    "items": [{"exercise_name": "plank", "category": [4], "difficulty": 5,
      "met": 8, "duration_sec": 90, "rest_sec": 30, "set_count": 15, "reps": null}]
  },
  "used_data_ranked": {}
}`

func neighborRow() store.SummarySearchResult {
	return store.SummarySearchResult{
		DocID:                "u1_2025-06-01_api",
		UserID:               "u1",
		Date:                 "2025-06-01",
		Source:               "api",
		HealthScore:          80,
		RecommendedIntensity: "medium",
		EmbeddingText:        "수면 7시간, 걸음 8000보",
		Snapshot:             []byte(`{"date":20250601,"sleep_min":420,"steps":8000}`),
		Distance:             0.1,
	}
}

func newTestGenerator(llm *fakeProvider, idx knowledge.Index, opts ...Option) *Generator {
	classifier := intent.NewClassifier(llm, time.Minute)
	ks := knowledge.New(llm, idx)
	engine := routine.NewEngine(llm)
	return NewGenerator(llm, classifier, ks, engine, opts...)
}

func TestGenerateDefaultChat(t *testing.T) {
	llm := &fakeProvider{responses: []string{`{"intent": "default_chat"}`, "반가워요!"}}
	g := newTestGenerator(llm, &fakeIndex{})

	reply, err := g.Generate(context.Background(), "u1", "그냥 인사하려고", "healing")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Intent != string(intent.DefaultChat) {
		t.Fatalf("expected default_chat, got %s", reply.Intent)
	}
	if reply.Response != "반가워요!" {
		t.Fatalf("unexpected response %q", reply.Response)
	}
	final := llm.lastPrompt()
	if !strings.Contains(final, "[Persona]") || !strings.Contains(final, "일반 대화") {
		t.Fatalf("final prompt not persona-wrapped default body: %q", final)
	}
}

func TestGenerateHealthQueryNoData(t *testing.T) {
	// Health keyword resolves by rule, so the only LLM call is the answer.
	llm := &fakeProvider{responses: []string{"조언입니다"}}
	g := newTestGenerator(llm, &fakeIndex{})

	reply, err := g.Generate(context.Background(), "u1", "요즘 수면이 어때?", "healing")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Intent != string(intent.HealthQuery) {
		t.Fatalf("expected health_query, got %s", reply.Intent)
	}
	final := llm.lastPrompt()
	if !strings.Contains(final, "건강 데이터가 충분히 저장되어 있지 않습니다") {
		t.Fatalf("expected no-data fallback body, got %q", final)
	}
}

func TestGenerateHealthQueryWithNeighbors(t *testing.T) {
	llm := &fakeProvider{responses: []string{"분석 결과입니다"}}
	g := newTestGenerator(llm, &fakeIndex{results: []store.SummarySearchResult{neighborRow()}})

	_, err := g.Generate(context.Background(), "u1", "어제 심박수 어땠어?", "doctor")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	final := llm.lastPrompt()
	if !strings.Contains(final, "오늘과 유사한 건강 데이터") {
		t.Fatalf("expected RAG body, got %q", final)
	}
	if !strings.Contains(final, "2025-06-01") {
		t.Fatalf("neighbor date missing from prompt: %q", final)
	}
}

func TestGenerateRoutineRequest(t *testing.T) {
	// Calls: engine generate, then the persona-wrapped answer. Intent
	// resolves by rule.
	llm := &fakeProvider{responses: []string{validRoutineJSON, "루틴 설명입니다"}}
	g := newTestGenerator(llm, &fakeIndex{results: []store.SummarySearchResult{neighborRow()}})

	reply, err := g.Generate(context.Background(), "u1", "운동 추천 해줘", "trainer")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Intent != string(intent.RoutineRequest) {
		t.Fatalf("expected routine_request, got %s", reply.Intent)
	}
	final := llm.lastPrompt()
	if !strings.Contains(final, "운동 추천 결과(JSON)") || !strings.Contains(final, "plank") {
		t.Fatalf("expected routine body with generated plan, got %q", final)
	}
}

func TestGenerateUsesConfiguredTemperature(t *testing.T) {
	llm := &fakeProvider{responses: []string{`{"intent": "default_chat"}`, "ok"}}
	g := newTestGenerator(llm, &fakeIndex{}, WithTemperature(0.25))

	if _, err := g.Generate(context.Background(), "u1", "안녕", "healing"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	final := llm.requests[len(llm.requests)-1]
	if final.Temperature != 0.25 {
		t.Fatalf("expected configured temperature 0.25, got %v", final.Temperature)
	}
}

func TestGenerateRoutineDefaultsFlowIntoEngine(t *testing.T) {
	llm := &fakeProvider{responses: []string{validRoutineJSON, "설명"}}
	g := newTestGenerator(llm, &fakeIndex{results: []store.SummarySearchResult{neighborRow()}},
		WithRoutineDefaults("상", 20))

	if _, err := g.Generate(context.Background(), "u1", "운동 추천 해줘", "trainer"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	enginePrompt := llm.requests[0].UserPrompt
	if !strings.Contains(enginePrompt, "난이도: 상") {
		t.Fatalf("configured difficulty missing from engine prompt: %q", enginePrompt)
	}
	if !strings.Contains(enginePrompt, "운동 시간: 20분") {
		t.Fatalf("configured duration missing from engine prompt: %q", enginePrompt)
	}
}

func TestGenerateMintsAnonymousUser(t *testing.T) {
	llm := &fakeProvider{responses: []string{`{"intent": "default_chat"}`, "ok"}}
	g := newTestGenerator(llm, &fakeIndex{})

	reply, err := g.Generate(context.Background(), "  ", "안녕", "healing")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(reply.UserID, "anon-") {
		t.Fatalf("expected minted anonymous id, got %q", reply.UserID)
	}
}

func TestFixedResponseNoData(t *testing.T) {
	llm := &fakeProvider{}
	g := newTestGenerator(llm, &fakeIndex{})

	reply, err := g.FixedResponse(context.Background(), "u1", QuestionWeeklyReport, "healing")
	if err != nil {
		t.Fatalf("FixedResponse: %v", err)
	}
	if !strings.Contains(reply.Response, "저장된 건강 데이터가 없습니다") {
		t.Fatalf("expected upload hint, got %q", reply.Response)
	}
	if llm.calls != 0 {
		t.Fatalf("no-data path must not call the LLM, got %d calls", llm.calls)
	}
}

func TestFixedResponseWeeklySteps(t *testing.T) {
	llm := &fakeProvider{responses: []string{"걸음수 설명입니다"}}
	g := newTestGenerator(llm, &fakeIndex{results: []store.SummarySearchResult{neighborRow()}})

	reply, err := g.FixedResponse(context.Background(), "u1", QuestionWeeklySteps, "healing")
	if err != nil {
		t.Fatalf("FixedResponse: %v", err)
	}
	if reply.Response != "걸음수 설명입니다" {
		t.Fatalf("unexpected response %q", reply.Response)
	}
	if !strings.Contains(llm.requests[0].UserPrompt, "8000") {
		t.Fatalf("steps missing from prompt: %q", llm.requests[0].UserPrompt)
	}
}

func TestFixedResponseTodayRecommendation(t *testing.T) {
	// Calls: routine engine, then the narrative answer. The plan must sum to
	// the configured 45 minutes or the engine would try a repair round.
	routine45 := `{
  "analysis": "ok",
  "ai_recommended_routine": {
    "total_time_min": 45, "total_calories": 300,
    "items": [{"exercise_name": "plank", "category": [4], "difficulty": 5,
      "met": 8, "duration_sec": 150, "rest_sec": 30, "set_count": 15, "reps": null}]
  },
  "used_data_ranked": {}
}`
	llm := &fakeProvider{responses: []string{routine45, "오늘의 운동입니다"}}
	g := newTestGenerator(llm, &fakeIndex{results: []store.SummarySearchResult{neighborRow()}},
		WithRoutineDefaults("중", 45))

	reply, err := g.FixedResponse(context.Background(), "u1", QuestionTodayRecommendation, "healing")
	if err != nil {
		t.Fatalf("FixedResponse: %v", err)
	}
	if reply.Response != "오늘의 운동입니다" {
		t.Fatalf("unexpected response %q", reply.Response)
	}
	final := llm.lastPrompt()
	if !strings.Contains(final, "plank") {
		t.Fatalf("generated routine missing from prompt: %q", final)
	}
	if !strings.Contains(final, "45분 운동") {
		t.Fatalf("configured duration missing from narrative prompt: %q", final)
	}
}

func TestFixedResponseUnknownType(t *testing.T) {
	llm := &fakeProvider{}
	g := newTestGenerator(llm, &fakeIndex{results: []store.SummarySearchResult{neighborRow()}})

	_, err := g.FixedResponse(context.Background(), "u1", "horoscope", "healing")
	if !errors.Is(err, ErrUnknownQuestionType) {
		t.Fatalf("expected ErrUnknownQuestionType, got %v", err)
	}
}

func TestNormalizeUserID(t *testing.T) {
	if got := NormalizeUserID("alice"); got != "alice" {
		t.Fatalf("non-blank id must pass through, got %q", got)
	}
	a, b := NormalizeUserID(""), NormalizeUserID("")
	if a == b {
		t.Fatal("minted ids must be unique")
	}
}
