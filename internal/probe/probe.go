package probe

import (
	"context"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Spec is everything a checker needs to probe one target.
type Spec struct {
	URL       string
	ValidWord string
	Timeout   time.Duration
}

// SpecFor builds the probe spec of a target.
func SpecFor(t domain.Target) Spec {
	return Spec{URL: t.URL, ValidWord: t.ValidWord, Timeout: t.Timeout()}
}

// Checker performs a single check. Faults are reported in the outcome, never
// as a panic or error return.
type Checker interface {
	Check(ctx context.Context, spec Spec) domain.Outcome
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, spec Spec) domain.Outcome

func (f CheckerFunc) Check(ctx context.Context, spec Spec) domain.Outcome { return f(ctx, spec) }
