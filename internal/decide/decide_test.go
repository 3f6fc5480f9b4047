package decide_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"proxyfarm/internal/config"
	"proxyfarm/internal/decide"
)

func TestPolicyAnswersFromConfig(t *testing.T) {
	ctx := context.Background()
	policy := decide.PolicyFromConfig(config.Reconcile{
		ExistingProxies:    "overwrite",
		OfflineMedia:       "skip",
		RequeueLinkFailure: true,
	})

	tests := []struct {
		q    decide.Question
		want decide.Decision
	}{
		{decide.ExistingProxies([]string{"a"}), decide.DecisionOverwrite},
		{decide.RequeueLinkFailures([]string{"a"}), decide.DecisionYes},
		{decide.OfflineMedia([]string{"a"}), decide.DecisionSkipAll},
		{decide.OfflineItem("a"), decide.DecisionSkip},
		{decide.MixedRoster([]string{"w1"}, []string{"w2"}), decide.DecisionNo},
	}
	for _, tt := range tests {
		got, err := decide.AskValid(ctx, policy, tt.q)
		if err != nil {
			t.Fatalf("%s: %v", tt.q.Kind, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %q want %q", tt.q.Kind, got, tt.want)
		}
	}
}

func TestPolicyDefaults(t *testing.T) {
	got, err := decide.Policy{}.Ask(context.Background(), decide.ExistingProxies(nil))
	if err != nil || got != decide.DecisionLink {
		t.Fatalf("expected default link, got %q %v", got, err)
	}
}

func TestAskValidRejectsUnknownAnswer(t *testing.T) {
	d := decide.Func(func(context.Context, decide.Question) (decide.Decision, error) {
		return decide.DecisionSkipAll, nil
	})
	_, err := decide.AskValid(context.Background(), d, decide.ExistingProxies([]string{"a"}))
	if !errors.Is(err, decide.ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestPromptMatchesAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  decide.Decision
	}{
		{"\n", decide.DecisionRerenderAll},
		{"2\n", decide.DecisionSkipAll},
		{"choose\n", decide.DecisionChoose},
		{"sk\n", decide.DecisionSkipAll},
		{"maybe\nc\n", decide.DecisionChoose},
		{"", decide.DecisionRerenderAll},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := decide.NewPrompt(strings.NewReader(tt.input), &out)
		got, err := p.Ask(context.Background(), decide.OfflineMedia([]string{"A001", "A002"}))
		if err != nil {
			t.Fatalf("input %q: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("input %q: got %q want %q", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "A002") {
			t.Fatalf("expected subjects to be listed, got %q", out.String())
		}
	}
}

func TestPromptGivesUpAfterRepeatedInvalidAnswers(t *testing.T) {
	var out bytes.Buffer
	p := decide.NewPrompt(strings.NewReader("x\nq\nz\n"), &out)
	_, err := p.Ask(context.Background(), decide.RequeueLinkFailures([]string{"a"}))
	if !errors.Is(err, decide.ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}
