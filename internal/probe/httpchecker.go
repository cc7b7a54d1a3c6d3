package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// maxBody bounds how much of a page is searched for the valid word.
const maxBody = 2 << 20

type HTTPChecker struct {
	Client *http.Client
	Now    func() time.Time
}

// NewHTTPChecker returns a checker whose deadline comes from each Spec. The
// client itself has no timeout; redirects are followed up to the client
// default of 10.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		Now:    time.Now,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, spec Spec) domain.Outcome {
	now := h.Now
	if now == nil {
		now = time.Now
	}
	out := domain.Outcome{Status: domain.CheckError, CheckedAt: now().UTC()}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		out.Error = "Request error: " + err.Error()
		return out
	}
	req.Header.Set("User-Agent", "sitewatch/1.0")

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		out.Error = transportError(err, spec.Timeout)
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		out.Error = transportError(err, spec.Timeout)
		return out
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	code := resp.StatusCode
	out.StatusCode = &code
	out.ResponseTimeMS = &elapsed
	out.Status = domain.CheckOffline

	switch {
	case code >= 400:
		out.Error = "HTTP " + resp.Status
	case !strings.Contains(string(body), spec.ValidWord):
		out.Error = fmt.Sprintf("Valid word '%s' not found", spec.ValidWord)
	default:
		out.Status = domain.CheckOnline
	}
	return out
}

func transportError(err error, timeout time.Duration) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return "Timeout after " + strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64) + "s"
	}
	return "Request error: " + err.Error()
}
