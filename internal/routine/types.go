package routine

import "encoding/json"

// Routine is the structured generation output returned to callers. The JSON
// field names are the wire contract with both the LLM and API consumers.
type Routine struct {
	Analysis       string                 `json:"analysis"`
	Recommended    RecommendedRoutine     `json:"ai_recommended_routine"`
	UsedDataRanked map[string]interface{} `json:"used_data_ranked"`
}

// RecommendedRoutine is the exercise plan body.
type RecommendedRoutine struct {
	TotalTimeMin  float64 `json:"total_time_min"`
	TotalCalories float64 `json:"total_calories"`
	Items         []Item  `json:"items"`
}

// Item is a single exercise block within a routine.
type Item struct {
	ExerciseName string  `json:"exercise_name"`
	Category     []int   `json:"category"`
	Difficulty   int     `json:"difficulty"`
	MET          float64 `json:"met"`
	DurationSec  int     `json:"duration_sec"`
	RestSec      int     `json:"rest_sec"`
	SetCount     int     `json:"set_count"`
	Reps         *int    `json:"reps"`
}

// TotalSeconds is the effective routine length: work plus rest, per set.
func (r RecommendedRoutine) TotalSeconds() int {
	total := 0
	for _, it := range r.Items {
		total += it.DurationSec*it.SetCount + it.RestSec*it.SetCount
	}
	return total
}

const fallbackErrorTag = "llm output invalid or repair failed"

// fallbackRoutine is the deterministic zero-effort result returned when
// generation and repair both fail. It is distinguishable from a genuine
// empty recommendation by the error tag.
func fallbackRoutine() Routine {
	return Routine{
		Analysis: "",
		Recommended: RecommendedRoutine{
			TotalTimeMin:  0,
			TotalCalories: 0,
			Items:         []Item{},
		},
		UsedDataRanked: map[string]interface{}{
			"error": fallbackErrorTag,
		},
	}
}

// IsFallback reports whether r is the degraded fallback result.
func IsFallback(r Routine) bool {
	_, ok := r.UsedDataRanked["error"]
	return ok
}

// MarshalIndent renders the routine for prompt embedding.
func MarshalIndent(r Routine) string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
