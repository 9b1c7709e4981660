package irtsim

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRouterClassify(t *testing.T) {
	gen := &fakeGenerator{script: []string{"rewriting"}}
	r := NewStageRouter(gen, testPromptStore())
	conv := sampleConversation()
	conv.Stages = []string{"recording"}

	stage, usage, err := r.Classify(context.Background(), conv, "Can we change the ending?")
	if err != nil {
		t.Fatal(err)
	}
	if stage != StageRewriting {
		t.Errorf("expected rewriting, got %s", stage)
	}
	if usage.TotalTokens == 0 {
		t.Error("usage should pass through")
	}
}

func TestRouterTranscriptFormat(t *testing.T) {
	gen := &fakeGenerator{script: []string{"recording"}}
	r := NewStageRouter(gen, testPromptStore())
	conv := NewConversation("s", "en")
	conv.AddMessage("hello", RoleUser, "", "")

	if _, _, err := r.Classify(context.Background(), conv, "new message"); err != nil {
		t.Fatal(err)
	}
	user := gen.calls[0][1].Content
	if !strings.HasPrefix(user, "<transcript>\n") {
		t.Errorf("missing transcript open tag: %q", user)
	}
	if !strings.Contains(user, "User: new message") {
		t.Errorf("pending patient message missing from transcript: %q", user)
	}
	if !strings.HasSuffix(user, "</transcript>\n\nClassification:") {
		t.Errorf("missing classification suffix: %q", user)
	}
}

func TestRouterClassifyAtTemperatureZero(t *testing.T) {
	gen := &fakeGenerator{script: []string{"recording"}}
	r := NewStageRouter(gen, testPromptStore())

	if _, _, err := r.Classify(context.Background(), NewConversation("s", "en"), "hi"); err != nil {
		t.Fatal(err)
	}
	opts := gen.options[0]
	if opts.Temperature == nil || *opts.Temperature != 0 {
		t.Error("classification must run at temperature 0")
	}
}

func TestRouterGuardsPrematureFinal(t *testing.T) {
	gen := &fakeGenerator{script: []string{"final"}}
	r := NewStageRouter(gen, testPromptStore())
	conv := sampleConversation()
	conv.Stages = []string{"recording", "rewriting"}

	stage, _, err := r.Classify(context.Background(), conv, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if stage != StageSummary {
		t.Errorf("premature final should be forced to summary, got %s", stage)
	}
}

func TestRouterGarbageFallsBack(t *testing.T) {
	gen := &fakeGenerator{script: []string{"the session is going well"}}
	r := NewStageRouter(gen, testPromptStore())
	conv := sampleConversation()
	conv.Stages = []string{"recording", "rewriting"}

	stage, _, err := r.Classify(context.Background(), conv, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if stage != StageRewriting {
		t.Errorf("unparseable output should fall back to the last stage, got %s", stage)
	}
}

func TestRouterClassifyAndUpdateAppends(t *testing.T) {
	gen := &fakeGenerator{script: []string{"recording"}}
	r := NewStageRouter(gen, testPromptStore())
	conv := NewConversation("s", "en")

	if _, _, err := r.ClassifyAndUpdate(context.Background(), conv, "hi"); err != nil {
		t.Fatal(err)
	}
	if len(conv.Stages) != 1 || conv.Stages[0] != "recording" {
		t.Errorf("stage log not updated: %v", conv.Stages)
	}
}

func TestRouterErrorSurfaces(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("down")}
	r := NewStageRouter(gen, testPromptStore())
	if _, _, err := r.Classify(context.Background(), NewConversation("s", "en"), "hi"); err == nil {
		t.Error("expected classification error")
	}
}
