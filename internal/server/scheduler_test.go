package server

import (
	"testing"
	"time"
)

func TestIsDueNeverRun(t *testing.T) {
	for _, spec := range []string{"@daily", "@hourly", "", "0 6 * * *", "not-a-cron"} {
		if !isDue(spec, nil) {
			t.Fatalf("%q: never-run schedule must be due", spec)
		}
	}
}

func TestIsDueHourly(t *testing.T) {
	recent := time.Now().Add(-30 * time.Minute)
	if isDue("@hourly", &recent) {
		t.Fatal("ran 30m ago, not due")
	}
	old := time.Now().Add(-2 * time.Hour)
	if !isDue("@hourly", &old) {
		t.Fatal("ran 2h ago, due")
	}
}

func TestIsDueDaily(t *testing.T) {
	recent := time.Now().Add(-23 * time.Hour)
	if isDue("@daily", &recent) {
		t.Fatal("ran 23h ago, not due")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &old) {
		t.Fatal("ran 25h ago, due")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	// Every-minute expression: a run from two minutes ago is due again.
	last := time.Now().Add(-2 * time.Minute)
	if !isDue("* * * * *", &last) {
		t.Fatal("every-minute cron must be due")
	}
	// Yearly expression: a run from a minute ago is not due.
	justRan := time.Now().Add(-time.Minute)
	if isDue("0 0 1 1 *", &justRan) {
		t.Fatal("yearly cron must not be due a minute after running")
	}
}

func TestIsDueInvalidSpecFallsBackToDaily(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	if isDue("garbage spec", &recent) {
		t.Fatal("invalid spec treats as daily; 1h ago is not due")
	}
}
