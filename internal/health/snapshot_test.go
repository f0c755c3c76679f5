package health

import (
	"strings"
	"testing"
)

func TestDateString(t *testing.T) {
	s := Snapshot{Date: 20250601}
	if got := s.DateString(); got != "2025-06-01" {
		t.Fatalf("expected 2025-06-01, got %q", got)
	}
	if got := (Snapshot{}).DateString(); got != "" {
		t.Fatalf("zero date must render empty, got %q", got)
	}
}

func TestBMI(t *testing.T) {
	s := Snapshot{Weight: 70, HeightM: 1.75}
	bmi := s.BMI()
	if bmi < 22.8 || bmi > 22.9 {
		t.Fatalf("expected BMI ~22.86, got %.2f", bmi)
	}
	if (Snapshot{Weight: 70}).BMI() != 0 {
		t.Fatal("missing height must yield 0")
	}
}

func TestScoreRange(t *testing.T) {
	good := Snapshot{SleepMin: 450, Steps: 9000, RestingHeartRate: 60, OxygenSaturation: 98, Weight: 70, HeightM: 1.75}
	bad := Snapshot{SleepMin: 200, Steps: 1000, RestingHeartRate: 90, OxygenSaturation: 92, Systolic: 150, Diastolic: 95, Weight: 100, HeightM: 1.6}

	gs, bs := Score(good), Score(bad)
	if gs <= bs {
		t.Fatalf("good day (%d) must outscore bad day (%d)", gs, bs)
	}
	if gs > 100 || bs < 0 {
		t.Fatalf("scores out of range: %d, %d", gs, bs)
	}
}

func TestRecommendIntensityRecoverySignals(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
	}{
		{"short sleep", Snapshot{SleepMin: 240, Steps: 10000}},
		{"low oxygen", Snapshot{SleepMin: 450, Steps: 10000, OxygenSaturation: 92}},
		{"high resting hr", Snapshot{SleepMin: 450, Steps: 10000, RestingHeartRate: 90}},
	}
	for _, tc := range cases {
		if got := RecommendIntensity(tc.snap); got != IntensityLow {
			t.Fatalf("%s: expected low, got %s", tc.name, got)
		}
	}
}

func TestRecommendIntensityHigh(t *testing.T) {
	s := Snapshot{SleepMin: 450, Steps: 9000, RestingHeartRate: 60, OxygenSaturation: 98}
	if got := RecommendIntensity(s); got != IntensityHigh {
		t.Fatalf("expected high, got %s", got)
	}
}

func TestNaturalTextStable(t *testing.T) {
	s := Snapshot{Date: 20250601, SleepMin: 432, Steps: 8200, Weight: 70, HeightM: 1.75}
	a, b := NaturalText(s), NaturalText(s)
	if a != b {
		t.Fatal("identical snapshots must render identical text")
	}
	if !strings.Contains(a, "2025-06-01") {
		t.Fatalf("text missing date: %q", a)
	}
	if !strings.Contains(a, "건강 점수") {
		t.Fatalf("text missing score clause: %q", a)
	}
}
