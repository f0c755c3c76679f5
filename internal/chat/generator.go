// Package chat is the conversation orchestrator: it routes a message through
// intent classification, user-scoped retrieval, optional routine generation
// and persona wrapping, then asks the LLM for the final narrative reply.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/intent"
	"github.com/wearcoach/wearcoach/internal/knowledge"
	"github.com/wearcoach/wearcoach/internal/persona"
	"github.com/wearcoach/wearcoach/internal/provider"
	"github.com/wearcoach/wearcoach/internal/routine"
	"github.com/wearcoach/wearcoach/internal/telemetry"
)

// ErrUnknownQuestionType reports a fixed-menu question type outside the
// supported set. Callers distinguish it from upstream LLM failures.
var ErrUnknownQuestionType = errors.New("unknown question type")

// Fixed-menu question types.
const (
	QuestionWeeklyReport        = "weekly_report"
	QuestionTodayRecommendation = "today_recommendation"
	QuestionWeeklySteps         = "weekly_steps"
	QuestionSleepReport         = "sleep_report"
	QuestionHeartRate           = "heart_rate"
	QuestionHealthScore         = "health_score"
)

// Reply is the orchestrator's answer to one request.
type Reply struct {
	Response string `json:"response"`
	Intent   string `json:"intent,omitempty"`
	UserID   string `json:"user_id"`
}

// Generator wires the pipeline components behind the chat surface.
type Generator struct {
	llm         provider.Provider
	classifier  *intent.Classifier
	knowledge   *knowledge.KnowledgeStore
	engine      *routine.Engine
	topK        int
	temperature float64
	difficulty  string
	durationMin int
	logger      *log.Logger
	tele        *telemetry.Telemetry
}

// Option configures a Generator.
type Option func(*Generator)

// WithTopK sets how many neighbors retrieval requests (default 3).
func WithTopK(k int) Option {
	return func(g *Generator) { g.topK = k }
}

// WithTelemetry wires metric recording.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(g *Generator) { g.tele = t }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithTemperature sets the sampling temperature for narrative completions
// (default 0.7).
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		if t > 0 {
			g.temperature = t
		}
	}
}

// WithRoutineDefaults sets the difficulty and session length used when a
// routine is generated without explicit user preferences.
func WithRoutineDefaults(difficulty string, durationMin int) Option {
	return func(g *Generator) {
		if difficulty != "" {
			g.difficulty = difficulty
		}
		if durationMin > 0 {
			g.durationMin = durationMin
		}
	}
}

// NewGenerator builds the orchestrator over its collaborators.
func NewGenerator(llm provider.Provider, classifier *intent.Classifier, ks *knowledge.KnowledgeStore, engine *routine.Engine, opts ...Option) *Generator {
	g := &Generator{
		llm:         llm,
		classifier:  classifier,
		knowledge:   ks,
		engine:      engine,
		topK:        3,
		temperature: 0.7,
		difficulty:  "중",
		durationMin: 30,
		logger:      log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizeUserID substitutes a fresh anonymous id for blank user ids so
// documents always land under a concrete owner.
func NormalizeUserID(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return "anon-" + uuid.NewString()
	}
	return userID
}

// Generate handles a free-form message: classify, retrieve, optionally build
// a routine, then answer in the requested character's voice.
func (g *Generator) Generate(ctx context.Context, userID, message, character string) (Reply, error) {
	start := time.Now()
	defer func() { g.tele.ObserveChatDuration("chat", time.Since(start).Seconds()) }()

	userID = NormalizeUserID(userID)
	label := g.classifier.Classify(ctx, message)
	personaPrompt := persona.Prompt(character)

	var body string
	switch label {
	case intent.HealthQuery:
		body = g.healthBody(ctx, userID, message)
	case intent.RoutineRequest:
		body = g.routineBody(ctx, userID, message)
	default:
		body = defaultBody(message)
	}

	answer, err := g.complete(ctx, persona.Compose(personaPrompt, body))
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	return Reply{Response: answer, Intent: string(label), UserID: userID}, nil
}

// FixedResponse handles one of the fixed menu questions against the user's
// most recent summary, bypassing intent classification.
func (g *Generator) FixedResponse(ctx context.Context, userID, questionType, character string) (Reply, error) {
	start := time.Now()
	defer func() { g.tele.ObserveChatDuration("fixed", time.Since(start).Seconds()) }()

	userID = NormalizeUserID(userID)
	personaPrompt := persona.Prompt(character)

	latest, ok, err := g.knowledge.Latest(ctx, userID)
	if err != nil {
		g.logger.Printf("warn: latest summary lookup failed: %v", err)
		ok = false
	}
	if !ok {
		msg := personaPrompt + "\n\n아직 사용자에게 저장된 건강 데이터가 없습니다.\n헬스 커넥트 ZIP 파일을 업로드 하면 분석을 시작할 수 있어요!"
		return Reply{Response: strings.TrimSpace(msg), UserID: userID}, nil
	}

	prompt, err := fixedPrompt(personaPrompt, questionType, latest)
	if err != nil {
		return Reply{}, err
	}
	if questionType == QuestionTodayRecommendation {
		r := g.engine.Generate(ctx, latest.Snapshot, nil, g.difficulty, g.durationMin)
		prompt = fmt.Sprintf(`%s

사용자의 최근 건강 데이터를 기반으로
오늘 적합한 %d분 운동을 아주 친근하게 설명해줘.

운동 루틴:
%s`, personaPrompt, g.durationMin, routine.MarshalIndent(r))
	}

	answer, err := g.complete(ctx, prompt)
	if err != nil {
		return Reply{}, fmt.Errorf("fixed completion: %w", err)
	}
	return Reply{Response: answer, UserID: userID}, nil
}

// healthBody composes the health_query narrative body, degrading to generic
// advice when no neighbors exist.
func (g *Generator) healthBody(ctx context.Context, userID, message string) string {
	result := g.knowledge.SearchSimilar(ctx, message, userID, g.topK)
	if len(result.Neighbors) == 0 {
		return fmt.Sprintf(`[User Message]
%s

[Health Data]
건강 데이터가 충분히 저장되어 있지 않습니다.
일반적인 건강 조언을 캐릭터 말투를 고려하여 제공하세요.`, message)
	}

	top := result.Neighbors[0]
	raw, err := json.MarshalIndent(top.Snapshot, "", "  ")
	if err != nil {
		raw = []byte("{}")
	}
	return fmt.Sprintf(`[User Message]
%s

[오늘과 유사한 건강 데이터(raw)]
%s

[최근 유사 건강 패턴(RAG 기반)]
%s

이 데이터를 기반으로:
- 오늘의 건강 상태 분석
- 최근 패턴 경향 요약
- 개선이 필요한 생활 습관 또는 관리 포인트

를 캐릭터 말투를 고려하여 설명하세요.`, message, raw, formatNeighbors(result.Neighbors))
}

// routineBody composes the routine_request body, invoking the generation
// engine against the nearest day's snapshot.
func (g *Generator) routineBody(ctx context.Context, userID, message string) string {
	result := g.knowledge.SearchSimilar(ctx, "routine", userID, g.topK)
	if len(result.Neighbors) == 0 {
		return fmt.Sprintf(`[User Message]
%s

[Health Data]
최근 운동 데이터가 충분하지 않습니다.

초보자도 가능한 30분 홈트 루틴을 캐릭터 스타일에 맞게 설명하세요.
구성 예시:
- 준비운동 5분
- 하체/상체/코어 루틴 구성
- 마무리 스트레칭`, message)
	}

	top := result.Neighbors[0]
	r := g.engine.Generate(ctx, top.Snapshot, result.Neighbors, g.difficulty, g.durationMin)
	return fmt.Sprintf(`[User Message]
%s

[운동 추천 결과(JSON)]
%s

위 운동 루틴을 사용자가 이해하기 쉽고,
부담 없이 따라올 수 있게 캐릭터 말투로 설명하세요.`, message, routine.MarshalIndent(r))
}

func defaultBody(message string) string {
	return fmt.Sprintf(`[User Message]
%s

건강 데이터나 루틴 요청이 아닌 일반 대화입니다.
자연스럽고 공감 있게 캐릭터 말투를 고려하여 대화하세요.`, message)
}

// formatNeighbors renders up to three retrieved days for prompt embedding.
func formatNeighbors(neighbors []knowledge.Neighbor) string {
	if len(neighbors) == 0 {
		return "유사한 날짜의 건강 데이터가 없습니다."
	}
	if len(neighbors) > 3 {
		neighbors = neighbors[:3]
	}
	lines := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		lines = append(lines, fmt.Sprintf("- 날짜: %s (유사도: %.4f)\n  요약: %s", n.Date, n.Distance, n.SummaryText))
	}
	return strings.Join(lines, "\n")
}

// fixedPrompt builds the prompt for the non-routine fixed questions.
func fixedPrompt(personaPrompt, questionType string, latest knowledge.Neighbor) (string, error) {
	snap := latest.Snapshot
	switch questionType {
	case QuestionWeeklyReport:
		return fmt.Sprintf(`%s

아래 데이터(summary)를 기반으로
사용자의 "이번 주 건강 리포트"를 작성해줘.

summary:
%s

JSON 아님. 자연스러운 말투로 대답.`, personaPrompt, snapshotJSON(snap)), nil
	case QuestionTodayRecommendation:
		// Replaced by the routine engine path in FixedResponse.
		return "", nil
	case QuestionWeeklySteps:
		return fmt.Sprintf(`%s

다음 데이터를 기반으로
지난주 걸음수 평균을 사용자에게 설명해줘.

steps: %.0f (cadence %.1f, distance %.2fkm)`, personaPrompt, snap.Steps, snap.StepsCadence, snap.DistanceKm), nil
	case QuestionSleepReport:
		return fmt.Sprintf(`%s

아래 수면 데이터를 기반으로
사용자의 최근 수면 패턴 분석을 친절하게 설명해줘.

sleep_min: %.0f (%.1f시간)`, personaPrompt, snap.SleepMin, snap.SleepHours()), nil
	case QuestionHeartRate:
		return fmt.Sprintf(`%s

다음 심박수를 기반으로
최근 심박수 안정성 평가를 해줘.

heart_rate: %.0f, resting: %.0f, walking: %.0f, hrv: %.1f`,
			personaPrompt, snap.HeartRate, snap.RestingHeartRate, snap.WalkingHeartRate, snap.HRV), nil
	case QuestionHealthScore:
		return fmt.Sprintf(`%s

사용자의 최근 summary를 기반으로
0~100점 사이의 건강 점수를 계산하고 설명해줘.
계산된 점수: %d점 (권장 강도: %s)

summary:
%s`, personaPrompt, latest.HealthScore, latest.RecommendedIntensity, snapshotJSON(snap)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownQuestionType, questionType)
	}
}

func snapshotJSON(snap health.Snapshot) string {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// complete asks the provider for the persona-wrapped narrative. Concurrency
// bounding happens inside the provider, which the server wraps with the
// shared worker pool.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	return g.llm.Complete(ctx, provider.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: g.temperature,
		MaxTokens:   1000,
	})
}
