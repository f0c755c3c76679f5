// Package catalog holds the fixed exercise seed set the routine engine is
// allowed to reference. The set is immutable; generation referencing any
// other exercise name is rejected.
package catalog

import (
	"encoding/json"
	"strings"
	"sync"
)

// Exercise is one catalog entry.
type Exercise struct {
	Name       string  `json:"name"`
	Category   []int   `json:"category"`
	Difficulty int     `json:"difficulty"`
	MET        float64 `json:"met"`
}

// Exercises is the fixed 17-entry seed catalog.
var Exercises = []Exercise{
	{Name: "standing side crunch", Category: []int{2, 3}, Difficulty: 3, MET: 4},
	{Name: "standing knee up", Category: []int{1, 3}, Difficulty: 3, MET: 3.8},
	{Name: "burpee test", Category: []int{4}, Difficulty: 5, MET: 8},
	{Name: "step forward dynamic lunge", Category: []int{3}, Difficulty: 4, MET: 4},
	{Name: "step backward dynamic lunge", Category: []int{3}, Difficulty: 4, MET: 4},
	{Name: "side lunge", Category: []int{3}, Difficulty: 5, MET: 5},
	{Name: "cross lunge", Category: []int{3, 2}, Difficulty: 4, MET: 3.8},
	{Name: "good morning exercise", Category: []int{3}, Difficulty: 5, MET: 5},
	{Name: "lying leg raise", Category: []int{3, 2}, Difficulty: 4, MET: 4},
	{Name: "crunch", Category: []int{2}, Difficulty: 4, MET: 4.5},
	{Name: "bicycle crunch", Category: []int{3, 2}, Difficulty: 5, MET: 5},
	{Name: "scissor cross", Category: []int{2, 3}, Difficulty: 4, MET: 4.5},
	{Name: "hip thrust", Category: []int{3, 2}, Difficulty: 3, MET: 3.5},
	{Name: "plank", Category: []int{4}, Difficulty: 5, MET: 8},
	{Name: "push up", Category: []int{1, 2}, Difficulty: 4, MET: 6},
	{Name: "knee push up", Category: []int{1, 2}, Difficulty: 3, MET: 5},
	{Name: "Y-exercise", Category: []int{1, 2}, Difficulty: 3, MET: 4.5},
}

var (
	seedOnce sync.Once
	seedJSON string
	byName   map[string]Exercise
)

func initSeed() {
	b, _ := json.Marshal(Exercises)
	seedJSON = string(b)
	byName = make(map[string]Exercise, len(Exercises))
	for _, e := range Exercises {
		byName[strings.ToLower(e.Name)] = e
	}
}

// SeedJSON returns the catalog serialized once for prompt embedding.
func SeedJSON() string {
	seedOnce.Do(initSeed)
	return seedJSON
}

// Contains reports whether name (case-insensitive) is a catalog exercise.
func Contains(name string) bool {
	seedOnce.Do(initSeed)
	_, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Exercise, bool) {
	seedOnce.Do(initSeed)
	e, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// HighExertion lists entries excluded for users with low blood oxygen.
func HighExertion() []string {
	var names []string
	for _, e := range Exercises {
		if e.MET >= 8 {
			names = append(names, e.Name)
		}
	}
	return names
}
