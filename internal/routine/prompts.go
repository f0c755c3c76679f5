package routine

import (
	"fmt"
	"strings"

	"github.com/wearcoach/wearcoach/internal/catalog"
	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/knowledge"
)

const generateSystemPrompt = `너는 건강 데이터 분석 + 운동 처방 전문가다.
사용자의 데이터를 기반으로 과학적인 운동 루틴을 생성한다.

[절대 규칙]
- 반드시 JSON ONLY 출력
- 설명문 금지
- 코드블록 금지
- 운동 17종 외 사용 금지
- 스키마 절대 변경 금지`

const repairSystemPrompt = `너는 JSON 복원기다. 출력은 JSON ONLY.`

const schemaBlock = `{
    "analysis": "...",
    "ai_recommended_routine": {
        "total_time_min": number,
        "total_calories": number,
        "items": [
            {
                "exercise_name": "...",
                "category": [...],
                "difficulty": number,
                "met": number,
                "duration_sec": number,
                "rest_sec": number,
                "set_count": number,
                "reps": number | null
            }
        ]
    },
    "used_data_ranked": {
        "summary_text": { "feature": score },
        "raw": { "metric": score },
        "rag_pattern": { "pattern": score }
    }
}`

// metBand maps a requested difficulty level to its allowed MET range.
func metBand(difficulty string) string {
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "low", "하":
		return "MET 2.5-4"
	case "high", "상":
		return "MET 5-8"
	default:
		return "MET 4-5"
	}
}

func rawBlock(s health.Snapshot) string {
	var b strings.Builder
	b.WriteString("[정규화된 건강 수치(raw)]\n운동 추천의 최우선 기준입니다.\n\n")
	fmt.Fprintf(&b, "# 수면\nsleep_min: %.0f\nsleep_hr: %.1f\n\n", s.SleepMin, s.SleepHours())
	fmt.Fprintf(&b, "# 신체\nweight: %.1f\nheight_m: %.2f\nbmi: %.1f\nbody_fat: %.1f\nlean_body: %.1f\n\n",
		s.Weight, s.HeightM, s.BMI(), s.BodyFat, s.LeanBody)
	fmt.Fprintf(&b, "# 활동\ndistance_km: %.2f\nsteps: %.0f\nsteps_cadence: %.1f\nexercise_min: %.0f\nflights: %.0f\n\n",
		s.DistanceKm, s.Steps, s.StepsCadence, s.ExerciseMin, s.Flights)
	fmt.Fprintf(&b, "# 칼로리\ntotal_calories: %.0f\nactive_calories: %.0f\ncalories_intake: %.0f\n\n",
		s.TotalCalories, s.ActiveCalories, s.CaloriesIntake)
	fmt.Fprintf(&b, "# 바이탈\noxygen_saturation: %.1f\nheart_rate: %.0f\nresting_heart_rate: %.0f\nwalking_heart_rate: %.0f\nhrv: %.1f\nsystolic: %.0f\ndiastolic: %.0f\nglucose: %.0f\n",
		s.OxygenSaturation, s.HeartRate, s.RestingHeartRate, s.WalkingHeartRate, s.HRV, s.Systolic, s.Diastolic, s.Glucose)
	return b.String()
}

// ragBlock renders up to maxNeighbors retrieved days with their distances.
func ragBlock(neighbors []knowledge.Neighbor, maxNeighbors int) string {
	if maxNeighbors <= 0 {
		maxNeighbors = 3
	}
	if len(neighbors) > maxNeighbors {
		neighbors = neighbors[:maxNeighbors]
	}
	if len(neighbors) == 0 {
		return "유사 데이터 없음"
	}
	lines := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		lines = append(lines, fmt.Sprintf("- %s | 유사도 거리 %.4f, 요약: %s", n.Date, n.Distance, n.SummaryText))
	}
	return strings.Join(lines, "\n")
}

// generateUserPrompt composes the full constrained-generation request.
func generateUserPrompt(snap health.Snapshot, neighbors []knowledge.Neighbor, maxNeighbors int, difficulty string, durationMin int) string {
	var b strings.Builder
	b.WriteString(rawBlock(snap))
	b.WriteString("\n[summary_text]\n")
	b.WriteString(health.NaturalText(snap))
	b.WriteString("\n\n[RAG 기반 최근 건강 패턴]\n")
	b.WriteString(ragBlock(neighbors, maxNeighbors))
	fmt.Fprintf(&b, "\n\n[입력 정보]\n난이도: %s\n운동 시간: %d분\n", difficulty, durationMin)
	b.WriteString("\n[운동 Seed]\n")
	b.WriteString(catalog.SeedJSON())
	b.WriteString("\n\n■ 난이도 규칙\n하: MET 2.5-4\n중: MET 4-5\n상: MET 5-8\n")
	fmt.Fprintf(&b, "이번 요청의 난이도 제약: %s\n", metBand(difficulty))
	b.WriteString(`
■ 운동 시간 규칙 (절대 준수)
total_time_sec = Σ(ex.duration_sec * ex.set_count) + Σ(ex.rest_sec * ex.set_count)

total_time_sec must be within:
duration_min * 60 * 0.95  ~  duration_min * 60 * 1.05

즉, 전체 운동 시간은 요청된 운동 시간의 ±5% 이내여야 한다.
# 절대 규칙
- total_time_sec 규칙은 가장 중요한 제약 조건이다.
- 이를 위반하는 JSON은 자동으로 실패로 처리된다.

■ 개인화 규칙(summary.raw + RAG)
- sleep_hr < 5 → 고강도 금지(MET ≤ 4.5)
- oxygen_saturation < 94 → plank·burpee 제한
- bmi ≥ 25 → 유산소 비중 ↑
- steps > 10000 → 하체 피로 고려
- heart_rate > 90 → 휴식시간 +30%

■ JSON 스키마
`)
	b.WriteString(schemaBlock)
	b.WriteString("\n\n**JSON만 출력하세요**")
	return b.String()
}

func repairUserPrompt(broken string) string {
	return fmt.Sprintf(`다음 텍스트는 JSON 형식이 잘못되었습니다.
형식을 고쳐 **오직 JSON만 반환하세요.**
설명 금지, 코드블록 금지.

잘못된 JSON:
%s`, broken)
}
