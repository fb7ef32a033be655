package script_test

import (
	"strings"
	"testing"

	"github.com/stagehandhq/stagehand/internal/conversation"
	"github.com/stagehandhq/stagehand/internal/script"
)

func compile(rec conversation.Record) string {
	return script.Compile(script.CompileInput{
		Definition: script.Parse(sampleScript),
		Record:     rec,
	})
}

func TestCompileFirstTurnNamesFirstStage(t *testing.T) {
	t.Parallel()
	out := compile(conversation.Record{})

	if !strings.Contains(out, `You MUST select the first stage, "Greeting"`) {
		t.Fatalf("first-turn branch missing mandatory first stage:\n%s", out)
	}
	if !strings.Contains(out, "must not skip ahead") {
		t.Fatalf("first-turn branch missing no-skip rule")
	}
	// The early-ask exception is present but left to the model's judgment.
	if !strings.Contains(out, "explicitly and unambiguously") {
		t.Fatalf("early-ask exception missing")
	}
}

func TestCompileContinuationNamesCurrentStage(t *testing.T) {
	t.Parallel()
	out := compile(conversation.Record{Stage: "Needs"})

	if !strings.Contains(out, `currently at stage "Needs"`) {
		t.Fatalf("continuation branch missing current stage:\n%s", out)
	}
	if !strings.Contains(out, "never move backwards") {
		t.Fatalf("continuation branch missing no-backwards rule")
	}
	if strings.Contains(out, "MUST select the first stage") {
		t.Fatalf("continuation turn must not carry the first-turn rule")
	}
}

func TestCompileIncludesHistoryAndDetail(t *testing.T) {
	t.Parallel()
	out := compile(conversation.Record{
		Stage:           "Contact",
		LastInboundText: "two croissants please",
		LastReplyText:   "great choice, what's your name?",
		CapturedDetail:  "order: 2 croissants",
	})

	if !strings.Contains(out, "User: two croissants please") {
		t.Fatalf("last inbound text missing")
	}
	if !strings.Contains(out, "You: great choice, what's your name?") {
		t.Fatalf("last reply text missing")
	}
	if !strings.Contains(out, "order: 2 croissants") {
		t.Fatalf("captured detail missing")
	}
}

func TestCompileListsAllStagesAndContract(t *testing.T) {
	t.Parallel()
	out := compile(conversation.Record{})

	for _, stage := range []string{"Greeting", "Needs", "Contact", "Confirm"} {
		if !strings.Contains(out, stage) {
			t.Fatalf("stage %q missing from instruction", stage)
		}
	}
	if !strings.Contains(out, `"items"`) || !strings.Contains(out, `"detail"`) {
		t.Fatalf("output contract missing")
	}
	// Confirmation stages must restate captured fields in visible content.
	if !strings.Contains(out, "restate those captured fields") {
		t.Fatalf("restatement rule missing")
	}
}

func TestCompileDeterministic(t *testing.T) {
	t.Parallel()
	rec := conversation.Record{Stage: "Needs", LastInboundText: "hi"}
	if compile(rec) != compile(rec) {
		t.Fatalf("compile is not deterministic")
	}
}
