package persona

import (
	"strings"
	"testing"
)

func TestPromptFallsBackToDefault(t *testing.T) {
	if Prompt("no-such-character") != Prompt(DefaultCharacter) {
		t.Fatal("unknown character must use the default persona")
	}
	if Prompt("trainer") == Prompt("healing") {
		t.Fatal("characters must have distinct prompts")
	}
}

func TestComposeTemplate(t *testing.T) {
	out := Compose("테스트 페르소나", "본문 내용")
	for _, want := range []string{"[Persona]", "[Task]", "[Style]", "테스트 페르소나", "본문 내용"} {
		if !strings.Contains(out, want) {
			t.Fatalf("composed prompt missing %q", want)
		}
	}
}

func TestComposeIsPure(t *testing.T) {
	a := Compose("p", "b")
	b := Compose("p", "b")
	if a != b {
		t.Fatal("compose must be deterministic")
	}
}
