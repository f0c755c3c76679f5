// Package intent maps a free-form user message to one of three closed
// intents: health_query, routine_request or default_chat.
package intent

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wearcoach/wearcoach/internal/cache"
	"github.com/wearcoach/wearcoach/internal/provider"
	"github.com/wearcoach/wearcoach/internal/telemetry"
)

// Label is a classified intent.
type Label string

const (
	HealthQuery    Label = "health_query"
	RoutineRequest Label = "routine_request"
	DefaultChat    Label = "default_chat"
)

func parseLabel(s string) (Label, bool) {
	switch Label(s) {
	case HealthQuery, RoutineRequest, DefaultChat:
		return Label(s), true
	}
	return "", false
}

// Phrases that unambiguously ask for a workout routine.
var routineExplicitKeywords = []string{
	"운동 추천",
	"추천 운동",
	"운동 루틴",
	"루틴",
	"routine",
	"운동 알려줘",
	"30분 운동",
	"20분 운동",
	"40분 운동",
	"하체 루틴",
	"상체 루틴",
	"전신 루틴",
	"유산소 루틴",
	"홈트",
}

// Contextual phrases: ambiguous on their own but treated as a routine request
// when present. Checked before health keywords so a message carrying both
// resolves to routine_request.
var routineContextKeywords = []string{
	"운동 뭐",
	"운동할까",
	"오늘 운동",
	"뭐 운동",
	"workout",
}

// Measured-data vocabulary covering the wearable metric set.
var healthKeywords = []string{
	// sleep
	"수면", "잠", "sleep",
	// body
	"체중", "몸무게", "weight", "키", "신장", "height", "bmi",
	"체지방", "제지방", "lean body",
	// activity
	"걸음", "보폭", "steps", "cadence", "이동거리", "distance",
	"운동시간", "활동시간", "계단", "flights",
	// calories
	"칼로리", "active calorie", "열량", "섭취 칼로리",
	// vitals
	"심박", "맥박", "heart rate", "산소포화", "oxygen", "hrv",
	"혈압", "수축기", "이완기", "glucose",
}

const redisKeyPrefix = "intent:"

// Classifier resolves message intent through a layered strategy: local TTL
// cache, optional shared redis cache, ordered rule tables, then an LLM
// fallback. Classify is total and never returns an error to the caller.
type Classifier struct {
	llm    provider.Provider
	local  *cache.TTLCache
	rdb    *redis.Client // optional shared layer, may be nil
	ttl    time.Duration
	logger *log.Logger
	tele   *telemetry.Telemetry
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock injects the clock used by the local TTL cache.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		c.local = cache.NewTTLCache(c.ttl, now)
	}
}

// WithRedis layers a shared redis cache in front of the LLM fallback.
func WithRedis(rdb *redis.Client) Option {
	return func(c *Classifier) { c.rdb = rdb }
}

// WithTelemetry wires metric recording.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Classifier) { c.tele = t }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier builds a classifier with the given cache TTL.
func NewClassifier(llm provider.Provider, ttl time.Duration, opts ...Option) *Classifier {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	c := &Classifier{
		llm:    llm,
		ttl:    ttl,
		local:  cache.NewTTLCache(ttl, nil),
		logger: log.New(log.Writer(), "[INTENT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves the intent of message. Rule matches and the LLM fallback
// both write through the cache keyed by the literal message.
func (c *Classifier) Classify(ctx context.Context, message string) Label {
	if cached, ok := c.local.Get(message); ok {
		if label, ok := parseLabel(cached); ok {
			c.tele.ObserveIntent(string(label), "cache")
			return label
		}
	}
	if label, ok := c.sharedGet(ctx, message); ok {
		c.local.Set(message, string(label))
		c.tele.ObserveIntent(string(label), "cache")
		return label
	}

	if label, ok := ruleIntent(message); ok {
		c.store(ctx, message, label)
		c.tele.ObserveIntent(string(label), "rule")
		return label
	}

	label := c.llmIntent(ctx, message)
	c.store(ctx, message, label)
	c.tele.ObserveIntent(string(label), "llm")
	return label
}

// ruleIntent runs the ordered rule tables. Explicit routine phrases win over
// everything; contextual routine phrases win over health keywords.
func ruleIntent(message string) (Label, bool) {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, kw := range routineExplicitKeywords {
		if strings.Contains(msg, kw) {
			return RoutineRequest, true
		}
	}
	for _, kw := range routineContextKeywords {
		if strings.Contains(msg, kw) {
			return RoutineRequest, true
		}
	}
	for _, kw := range healthKeywords {
		if strings.Contains(msg, kw) {
			return HealthQuery, true
		}
	}
	return "", false
}

const fallbackPromptFormat = `너는 사용자의 메시지를 아래 세 종류 중 하나로 분류한다.

1) health_query: 건강 데이터 관련 질문(수면/칼로리/걸음수/심박/혈압 등)
2) routine_request: 운동 루틴/운동 추천 요구
3) default_chat: 일반 대화

사용자 메시지:
%s

JSON ONLY:
{"intent": "health_query" 또는 "routine_request" 또는 "default_chat"}`

// llmIntent asks the LLM for a closed three-way classification. Any parse
// failure or unknown label degrades to default_chat.
func (c *Classifier) llmIntent(ctx context.Context, message string) Label {
	if c.llm == nil {
		return DefaultChat
	}
	raw, err := c.llm.Complete(ctx, provider.CompletionRequest{
		UserPrompt:  strings.Replace(fallbackPromptFormat, "%s", message, 1),
		Temperature: 0,
		MaxTokens:   50,
	})
	if err != nil {
		c.logger.Printf("warn: intent fallback failed: %v", err)
		return DefaultChat
	}
	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return DefaultChat
	}
	if label, ok := parseLabel(parsed.Intent); ok {
		return label
	}
	return DefaultChat
}

func (c *Classifier) store(ctx context.Context, message string, label Label) {
	c.local.Set(message, string(label))
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, redisKeyPrefix+message, string(label), c.ttl).Err(); err != nil {
			c.logger.Printf("warn: shared intent cache set failed: %v", err)
		}
	}
}

func (c *Classifier) sharedGet(ctx context.Context, message string) (Label, bool) {
	if c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, redisKeyPrefix+message).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("warn: shared intent cache get failed: %v", err)
		}
		return "", false
	}
	return parseLabel(val)
}

// Sweep purges expired local cache entries; used by the background janitor.
func (c *Classifier) Sweep() int {
	return c.local.Sweep()
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.ReplaceAll(text, "```json", "")
		text = strings.ReplaceAll(text, "```", "")
		text = strings.TrimSpace(text)
	}
	return text
}
