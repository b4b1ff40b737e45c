package tutor

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

func sampleCompanion() companion.Companion {
	return companion.Companion{
		ID:       "c1",
		Name:     "Countsy",
		Subject:  "maths",
		Topic:    "Derivatives",
		Style:    "formal",
		Duration: 30,
	}
}

func TestBuildSystemPromptIncludesCompanion(t *testing.T) {
	prompt := BuildSystemPrompt(sampleCompanion())

	for _, want := range []string{"You are Countsy", "Derivatives", "maths", "formal", "30 minutes"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptDefaults(t *testing.T) {
	c := sampleCompanion()
	c.Style = " "
	c.Duration = 0

	prompt := BuildSystemPrompt(c)
	if !strings.Contains(prompt, "conversation casual") {
		t.Fatalf("expected casual default style, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "15 minutes") {
		t.Fatalf("expected 15 minute default, got:\n%s", prompt)
	}
}

func TestFirstMessage(t *testing.T) {
	got := FirstMessage(sampleCompanion())
	want := "Hello, let's start the session. Today we'll be talking about Derivatives."
	if got != want {
		t.Fatalf("FirstMessage() = %q, want %q", got, want)
	}
}

func TestBuildChainInput(t *testing.T) {
	turns := []Turn{
		{Role: RoleStudent, Content: "hi"},
		{Role: RoleTutor, Content: "hello"},
		{Role: "system", Content: "ignored"},
	}

	input := BuildChainInput(sampleCompanion(), turns, "what is a limit?")
	if input["query"] != "what is a limit?" {
		t.Fatalf("unexpected query %v", input["query"])
	}

	history, ok := input["history"].([]*schema.Message)
	if !ok {
		t.Fatalf("history has type %T", input["history"])
	}
	if len(history) != 3 {
		t.Fatalf("expected greeting plus two turns, got %d", len(history))
	}
	if history[0].Role != schema.Assistant || history[0].Content != FirstMessage(sampleCompanion()) {
		t.Fatalf("unexpected greeting %+v", history[0])
	}
	if history[1].Role != schema.User || history[2].Role != schema.Assistant {
		t.Fatalf("unexpected roles %s, %s", history[1].Role, history[2].Role)
	}
}

func TestBuildHistoryMessagesKeepsLatestTurns(t *testing.T) {
	turns := make([]Turn, 0, historyLimit+5)
	for i := 0; i < historyLimit+5; i++ {
		turns = append(turns, Turn{Role: RoleStudent, Content: strings.Repeat("x", i+1)})
	}

	history := buildHistoryMessages(sampleCompanion(), turns)
	if len(history) != historyLimit+1 {
		t.Fatalf("expected %d messages, got %d", historyLimit+1, len(history))
	}
	if history[len(history)-1].Content != turns[len(turns)-1].Content {
		t.Fatalf("latest turn not kept")
	}
}
