// Package routine generates machine-checkable exercise routines through a
// bounded generate/validate/repair state machine. Generate never fails to
// the caller: irrecoverable errors degrade to a tagged fallback routine.
package routine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/wearcoach/wearcoach/internal/catalog"
	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/knowledge"
	"github.com/wearcoach/wearcoach/internal/provider"
	"github.com/wearcoach/wearcoach/internal/telemetry"
)

// Duration tolerance around the requested routine length.
const durationTolerance = 0.05

// Engine builds constrained generation requests and validates the output.
type Engine struct {
	llm          provider.Provider
	maxNeighbors int
	logger       *log.Logger
	tele         *telemetry.Telemetry
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxNeighbors caps how many retrieved days are embedded in the prompt.
func WithMaxNeighbors(n int) Option {
	return func(e *Engine) { e.maxNeighbors = n }
}

// WithTelemetry wires metric recording.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) { e.tele = t }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds a routine generation engine.
func NewEngine(llm provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		llm:          llm,
		maxNeighbors: 3,
		logger:       log.New(log.Writer(), "[ROUTINE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate produces a routine for the snapshot and retrieved neighbors.
// The flow is COMPOSE -> REQUEST -> VALIDATE, with at most one REPAIR call,
// then FALLBACK. The returned routine is always structurally valid.
func (e *Engine) Generate(ctx context.Context, snap health.Snapshot, neighbors []knowledge.Neighbor, difficulty string, durationMin int) Routine {
	if durationMin <= 0 {
		durationMin = 30
	}

	raw, err := e.llm.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: generateSystemPrompt,
		UserPrompt:   generateUserPrompt(snap, neighbors, e.maxNeighbors, difficulty, durationMin),
		Temperature:  0.1,
		MaxTokens:    1500,
	})
	if err != nil {
		e.logger.Printf("warn: generation request failed: %v", err)
		e.tele.ObserveGeneration("fallback")
		return fallbackRoutine()
	}

	cleaned := cleanJSONText(raw)
	routine, reason := e.validate(cleaned, durationMin)
	if reason == "" {
		e.tele.ObserveGeneration("done")
		return routine
	}
	e.logger.Printf("warn: validation failed (%s), attempting repair", reason)

	repaired, err := e.llm.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: repairSystemPrompt,
		UserPrompt:   repairUserPrompt(cleaned),
		Temperature:  0,
		MaxTokens:    700,
	})
	if err != nil {
		e.logger.Printf("warn: repair request failed: %v", err)
		e.tele.ObserveGeneration("fallback")
		return fallbackRoutine()
	}
	routine, reason = e.validate(cleanJSONText(repaired), durationMin)
	if reason == "" {
		e.tele.ObserveGeneration("repaired")
		return routine
	}
	e.logger.Printf("warn: repair validation failed (%s), falling back", reason)
	e.tele.ObserveGeneration("fallback")
	return fallbackRoutine()
}

// validate parses and checks a candidate response. It returns the parsed
// routine and an empty reason on success; a non-empty reason signals the
// repair transition. Beyond structural checks it enforces the two numeric
// invariants: catalog-only exercises and the ±5% duration window.
func (e *Engine) validate(text string, durationMin int) (Routine, string) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return Routine{}, fmt.Sprintf("json parse: %v", err)
	}
	if _, ok := keys["analysis"]; !ok {
		return Routine{}, "missing key: analysis"
	}
	if _, ok := keys["ai_recommended_routine"]; !ok {
		return Routine{}, "missing key: ai_recommended_routine"
	}

	var routine Routine
	if err := json.Unmarshal([]byte(text), &routine); err != nil {
		return Routine{}, fmt.Sprintf("schema: %v", err)
	}

	for _, item := range routine.Recommended.Items {
		if !catalog.Contains(item.ExerciseName) {
			return Routine{}, fmt.Sprintf("exercise not in catalog: %q", item.ExerciseName)
		}
	}

	total := routine.Recommended.TotalSeconds()
	lo := float64(durationMin) * 60 * (1 - durationTolerance)
	hi := float64(durationMin) * 60 * (1 + durationTolerance)
	if float64(total) < lo || float64(total) > hi {
		return Routine{}, fmt.Sprintf("total time %ds outside [%.0f, %.0f]", total, lo, hi)
	}
	return routine, ""
}

// cleanJSONText strips markdown code fences from an LLM response.
func cleanJSONText(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.ReplaceAll(text, "```json", "")
		text = strings.ReplaceAll(text, "```", "")
		text = strings.TrimSpace(text)
	}
	return text
}
