// Package decide defines the questions the coordinator asks while reconciling
// a batch and the providers that answer them.
//
// Reconciliation never prompts directly. It builds a Question and hands it to
// an injected Decider: Policy answers from configuration for headless runs,
// Prompt asks on a terminal, and Func adapts a closure for tests.
package decide

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"proxyfarm/internal/config"
)

// Kind identifies which reconciliation point a question belongs to.
type Kind string

const (
	QuestionExistingProxies     Kind = "existing_proxies"
	QuestionRequeueLinkFailures Kind = "requeue_link_failures"
	QuestionOfflineMedia        Kind = "offline_media"
	QuestionOfflineItem         Kind = "offline_item"
	QuestionMixedRoster         Kind = "mixed_roster"
)

// Decision is one answer to a question.
type Decision string

const (
	DecisionLink        Decision = "link"
	DecisionOverwrite   Decision = "overwrite"
	DecisionYes         Decision = "yes"
	DecisionNo          Decision = "no"
	DecisionRerenderAll Decision = "rerender_all"
	DecisionSkipAll     Decision = "skip_all"
	DecisionChoose      Decision = "choose"
	DecisionRerender    Decision = "rerender"
	DecisionSkip        Decision = "skip"
)

// Question is asked on the control goroutine only.
type Question struct {
	Kind     Kind
	Prompt   string
	Subjects []string
	Options  []Decision
	Default  Decision
}

// Decider answers questions.
type Decider interface {
	Ask(ctx context.Context, q Question) (Decision, error)
}

// Func adapts a function to Decider.
type Func func(ctx context.Context, q Question) (Decision, error)

func (f Func) Ask(ctx context.Context, q Question) (Decision, error) { return f(ctx, q) }

// ErrInvalidDecision is returned when an answer is not one of the question's options.
var ErrInvalidDecision = errors.New("invalid decision")

// Validate checks d against q's options.
func Validate(q Question, d Decision) error {
	if slices.Contains(q.Options, d) {
		return nil
	}
	return fmt.Errorf("%w %q for %s (options: %s)", ErrInvalidDecision, d, q.Kind, joinOptions(q.Options))
}

// AskValid asks d and rejects answers outside the question's options.
func AskValid(ctx context.Context, d Decider, q Question) (Decision, error) {
	answer, err := d.Ask(ctx, q)
	if err != nil {
		return "", err
	}
	if err := Validate(q, answer); err != nil {
		return "", err
	}
	return answer, nil
}

func joinOptions(options []Decision) string {
	parts := make([]string, len(options))
	for i, o := range options {
		parts[i] = string(o)
	}
	return strings.Join(parts, ", ")
}

// ExistingProxies builds the link-or-overwrite question for clips whose proxy already exists.
func ExistingProxies(subjects []string) Question {
	return Question{
		Kind:     QuestionExistingProxies,
		Prompt:   fmt.Sprintf("%d clip(s) already have an unlinked proxy on disk. Link them or encode new proxies?", len(subjects)),
		Subjects: subjects,
		Options:  []Decision{DecisionLink, DecisionOverwrite},
		Default:  DecisionLink,
	}
}

// RequeueLinkFailures builds the question asked after existing proxies failed to link.
func RequeueLinkFailures(subjects []string) Question {
	return Question{
		Kind:     QuestionRequeueLinkFailures,
		Prompt:   fmt.Sprintf("%d existing proxy link(s) failed. Queue those clips for encoding?", len(subjects)),
		Subjects: subjects,
		Options:  []Decision{DecisionYes, DecisionNo},
		Default:  DecisionNo,
	}
}

// OfflineMedia builds the batch-wide question for clips whose proxies went offline.
func OfflineMedia(subjects []string) Question {
	return Question{
		Kind:     QuestionOfflineMedia,
		Prompt:   fmt.Sprintf("%d clip(s) have offline proxies. Re-render all, skip all, or choose per clip?", len(subjects)),
		Subjects: subjects,
		Options:  []Decision{DecisionRerenderAll, DecisionSkipAll, DecisionChoose},
		Default:  DecisionRerenderAll,
	}
}

// OfflineItem builds the per-clip question used after DecisionChoose.
func OfflineItem(subject string) Question {
	return Question{
		Kind:     QuestionOfflineItem,
		Prompt:   fmt.Sprintf("Re-render offline proxy for %s?", subject),
		Subjects: []string{subject},
		Options:  []Decision{DecisionRerender, DecisionSkip},
		Default:  DecisionRerender,
	}
}

// MixedRoster builds the confirmation asked when only some workers are compatible.
func MixedRoster(compatible, incompatible []string) Question {
	return Question{
		Kind: QuestionMixedRoster,
		Prompt: fmt.Sprintf("%d of %d online worker(s) run an incompatible version and will not claim tasks. Continue?",
			len(incompatible), len(compatible)+len(incompatible)),
		Subjects: incompatible,
		Options:  []Decision{DecisionYes, DecisionNo},
		Default:  DecisionNo,
	}
}

// Policy answers every question from configuration.
type Policy struct {
	ExistingProxies     Decision
	OfflineMedia        Decision
	RequeueLinkFailures bool
	ProceedMixedRoster  bool
}

// PolicyFromConfig maps the [reconcile] section onto a Policy.
func PolicyFromConfig(cfg config.Reconcile) Policy {
	offline := DecisionRerenderAll
	if cfg.OfflineMedia == "skip" {
		offline = DecisionSkipAll
	}
	return Policy{
		ExistingProxies:     Decision(cfg.ExistingProxies),
		OfflineMedia:        offline,
		RequeueLinkFailures: cfg.RequeueLinkFailure,
		ProceedMixedRoster:  cfg.ProceedMixedRoster,
	}
}

func (p Policy) Ask(_ context.Context, q Question) (Decision, error) {
	switch q.Kind {
	case QuestionExistingProxies:
		if p.ExistingProxies == "" {
			return q.Default, nil
		}
		return p.ExistingProxies, nil
	case QuestionRequeueLinkFailures:
		return yesNo(p.RequeueLinkFailures), nil
	case QuestionOfflineMedia:
		if p.OfflineMedia == "" || p.OfflineMedia == DecisionChoose {
			return q.Default, nil
		}
		return p.OfflineMedia, nil
	case QuestionOfflineItem:
		if p.OfflineMedia == DecisionSkipAll {
			return DecisionSkip, nil
		}
		return DecisionRerender, nil
	case QuestionMixedRoster:
		return yesNo(p.ProceedMixedRoster), nil
	default:
		return q.Default, nil
	}
}

func yesNo(v bool) Decision {
	if v {
		return DecisionYes
	}
	return DecisionNo
}
