package health

import (
	"fmt"
	"strings"
)

// Snapshot is one day of normalized health metrics for one user. It is
// produced by the upstream ETL and treated as immutable here.
type Snapshot struct {
	Date     int    `json:"date"` // YYYYMMDD, 0 when unknown
	Platform string `json:"platform,omitempty"`

	SleepMin float64 `json:"sleep_min"`

	Weight   float64 `json:"weight"`
	HeightM  float64 `json:"height_m"`
	BodyFat  float64 `json:"body_fat"`
	LeanBody float64 `json:"lean_body"`

	Steps        float64 `json:"steps"`
	StepsCadence float64 `json:"steps_cadence"`
	DistanceKm   float64 `json:"distance_km"`
	ExerciseMin  float64 `json:"exercise_min"`
	Flights      float64 `json:"flights"`

	TotalCalories  float64 `json:"total_calories"`
	ActiveCalories float64 `json:"active_calories"`
	CaloriesIntake float64 `json:"calories_intake"`

	HeartRate        float64 `json:"heart_rate"`
	RestingHeartRate float64 `json:"resting_heart_rate"`
	WalkingHeartRate float64 `json:"walking_heart_rate"`
	HRV              float64 `json:"hrv"`
	OxygenSaturation float64 `json:"oxygen_saturation"`

	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
	Glucose   float64 `json:"glucose"`
}

// SleepHours returns sleep duration in hours.
func (s Snapshot) SleepHours() float64 {
	return s.SleepMin / 60
}

// BMI derives body mass index from weight and height; 0 when either is missing.
func (s Snapshot) BMI() float64 {
	if s.Weight <= 0 || s.HeightM <= 0 {
		return 0
	}
	return s.Weight / (s.HeightM * s.HeightM)
}

// DateString formats the YYYYMMDD integer date as yyyy-mm-dd.
func (s Snapshot) DateString() string {
	if s.Date <= 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", s.Date/10000, (s.Date/100)%100, s.Date%100)
}

// Score derives a 0-100 health score from the day's metrics. The score
// starts from 100 and loses points for sleep deficit, inactivity, elevated
// vitals and low blood oxygen.
func Score(s Snapshot) int {
	score := 100.0

	switch h := s.SleepHours(); {
	case h <= 0:
		score -= 10 // no sleep data recorded
	case h < 5:
		score -= 25
	case h < 6:
		score -= 15
	case h < 7:
		score -= 5
	}

	switch {
	case s.Steps <= 0:
		score -= 10
	case s.Steps < 3000:
		score -= 15
	case s.Steps < 6000:
		score -= 8
	}

	if s.RestingHeartRate > 80 {
		score -= 10
	} else if s.RestingHeartRate > 70 {
		score -= 5
	}
	if s.OxygenSaturation > 0 && s.OxygenSaturation < 94 {
		score -= 15
	}
	if bmi := s.BMI(); bmi >= 30 {
		score -= 10
	} else if bmi >= 25 {
		score -= 5
	}
	if s.Systolic >= 140 || s.Diastolic >= 90 {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	return int(score)
}

// Exercise intensity levels recommended from a snapshot.
const (
	IntensityLow    = "low"
	IntensityMedium = "medium"
	IntensityHigh   = "high"
)

// RecommendIntensity derives the recommended exercise intensity for the day.
// Poor recovery signals (short sleep, low oxygen, elevated vitals) force low
// intensity regardless of activity level.
func RecommendIntensity(s Snapshot) string {
	if s.SleepHours() > 0 && s.SleepHours() < 5 {
		return IntensityLow
	}
	if s.OxygenSaturation > 0 && s.OxygenSaturation < 94 {
		return IntensityLow
	}
	if s.RestingHeartRate > 85 || s.Systolic >= 140 {
		return IntensityLow
	}

	score := Score(s)
	switch {
	case score >= 80 && s.Steps >= 6000:
		return IntensityHigh
	case score >= 55:
		return IntensityMedium
	default:
		return IntensityLow
	}
}

// NaturalText renders a snapshot as the natural-language summary used for
// embedding. The wording stays stable across runs so identical days produce
// identical embedding cache keys.
func NaturalText(s Snapshot) string {
	var b strings.Builder
	if d := s.DateString(); d != "" {
		fmt.Fprintf(&b, "%s 하루 건강 요약. ", d)
	}
	fmt.Fprintf(&b, "수면 %.0f분(%.1f시간). ", s.SleepMin, s.SleepHours())
	fmt.Fprintf(&b, "걸음수 %.0f보, 이동거리 %.2fkm, 운동시간 %.0f분. ", s.Steps, s.DistanceKm, s.ExerciseMin)
	fmt.Fprintf(&b, "활동 칼로리 %.0fkcal, 총 소모 %.0fkcal, 섭취 %.0fkcal. ",
		s.ActiveCalories, s.TotalCalories, s.CaloriesIntake)
	if s.Weight > 0 {
		fmt.Fprintf(&b, "체중 %.1fkg", s.Weight)
		if bmi := s.BMI(); bmi > 0 {
			fmt.Fprintf(&b, ", BMI %.1f", bmi)
		}
		b.WriteString(". ")
	}
	if s.HeartRate > 0 || s.RestingHeartRate > 0 {
		fmt.Fprintf(&b, "심박수 평균 %.0fbpm, 안정시 %.0fbpm. ", s.HeartRate, s.RestingHeartRate)
	}
	if s.OxygenSaturation > 0 {
		fmt.Fprintf(&b, "산소포화도 %.1f%%. ", s.OxygenSaturation)
	}
	if s.Systolic > 0 && s.Diastolic > 0 {
		fmt.Fprintf(&b, "혈압 %.0f/%.0f. ", s.Systolic, s.Diastolic)
	}
	if s.Glucose > 0 {
		fmt.Fprintf(&b, "혈당 %.0fmg/dL. ", s.Glucose)
	}
	fmt.Fprintf(&b, "건강 점수 %d점, 권장 운동 강도 %s.", Score(s), RecommendIntensity(s))
	return b.String()
}
