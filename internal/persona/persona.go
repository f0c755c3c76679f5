// Package persona renders character-styled prompt wrappers. Composition is
// pure string templating with no collaborators.
package persona

import "fmt"

// DefaultCharacter is used when a request omits or misspells the character.
const DefaultCharacter = "healing"

var prompts = map[string]string{
	"healing": `따뜻하고 차분한 힐링 코치.
항상 부드러운 존댓말을 사용하고, 사용자를 다그치지 않고 격려한다.
"괜찮아요", "천천히 해도 돼요" 같은 위로 표현을 자연스럽게 섞는다.`,
	"trainer": `열정적인 퍼스널 트레이너.
짧고 힘있는 문장으로 동기를 부여하고, 구체적인 수치와 목표를 제시한다.
"가보자!", "할 수 있어요!" 같은 응원 표현을 사용한다.`,
	"doctor": `신중한 건강 상담가.
의학적 근거를 쉬운 말로 풀어 설명하고, 과장 없이 담백한 존댓말을 쓴다.
단정적인 진단 표현은 피하고 생활 습관 관점에서 조언한다.`,
	"friend": `편한 동네 친구.
반말 섞인 친근한 말투로 부담 없이 이야기하고, 공감 표현을 자주 쓴다.
전문 용어는 일상 언어로 바꿔 말한다.`,
}

// Prompt returns the persona directive for a character, falling back to the
// default character for unknown names.
func Prompt(character string) string {
	if p, ok := prompts[character]; ok {
		return p
	}
	return prompts[DefaultCharacter]
}

// Characters lists the known character names.
func Characters() []string {
	names := make([]string, 0, len(prompts))
	for name := range prompts {
		names = append(names, name)
	}
	return names
}

// Compose wraps body text with the persona directive. The template instructs
// tone preservation, data-grounded explanation, and simplified science
// framing.
func Compose(personaPrompt, body string) string {
	return fmt.Sprintf(`
[Persona]
당신은 다음 캐릭터의 말투와 성격을 유지해야 합니다:
%s

[Task]
아래 정보를 기반으로 전문적이며 정성스럽고 명확하게 설명하세요.

%s

[Style]
- 캐릭터 말투 유지
- 데이터 기반 분석을 포함하되 단순하게 표현
- 공감 표현 추가
- 과학적 설명은 쉽게
`, personaPrompt, body)
}
