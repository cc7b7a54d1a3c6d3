package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// RetryChecker repeats transport-level failures. Offline answers (bad status,
// missing word) come from a reachable server and are returned as is. All
// attempts share the spec timeout.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, spec Spec) domain.Outcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	var last domain.Outcome
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, spec)
		if last.Status != domain.CheckError {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return annotate(last, i+1)
		case <-time.After(r.Backoff):
		}
	}
	return annotate(last, attempts)
}

func annotate(o domain.Outcome, attempts int) domain.Outcome {
	if attempts > 1 {
		o.Error = fmt.Sprintf("%s (attempts=%d)", o.Error, attempts)
	}
	return o
}
