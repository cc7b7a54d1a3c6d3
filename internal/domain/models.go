package domain

import "time"

type (
	TargetID  string
	AccountID string
)

// Status is the health state of a monitored target.
type Status string

const (
	StatusPending Status = "pending"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOnline, StatusOffline, StatusError, StatusStopped:
		return true
	}
	return false
}

// Down reports whether s is one of the failure states that fire alerts.
func (s Status) Down() bool { return s == StatusOffline || s == StatusError }

const (
	DefaultTimeoutSeconds   = 30
	DefaultIntervalSeconds  = 300
	DefaultFailureThreshold = 3
)

type Account struct {
	ID                    AccountID `json:"id"`
	Email                 string    `json:"email"`
	Username              string    `json:"username"`
	PasswordHash          string    `json:"-"`
	DefaultTelegramChatID *string   `json:"default_telegram_chat_id"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
}

// AccountPatch carries the account fields a user may change.
type AccountPatch struct {
	DefaultTelegramChatID *string
}

type Target struct {
	ID                   TargetID   `json:"id"`
	OwnerID              AccountID  `json:"owner_id"`
	URL                  string     `json:"url"`
	Name                 *string    `json:"name"`
	ValidWord            string     `json:"valid_word"`
	TimeoutSeconds       int        `json:"timeout"`
	CheckIntervalSeconds int        `json:"check_interval"`
	IsActive             bool       `json:"is_active"`
	Status               Status     `json:"status"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	FailureThreshold     int        `json:"failure_threshold"`
	LastCheckAt          *time.Time `json:"last_check"`
	LastResponseTimeMS   *float64   `json:"response_time"`
	LastError            *string    `json:"error_message"`
	TotalChecks          int        `json:"total_checks"`
	FailedChecks         int        `json:"failed_checks"`
	AlertChatID          *string    `json:"telegram_chat_id"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at"`
}

func (t Target) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (t Target) Interval() time.Duration {
	return time.Duration(t.CheckIntervalSeconds) * time.Second
}

// NextDue is the time the target should next be probed. Targets never
// checked are due immediately (zero time).
func (t Target) NextDue() time.Time {
	if t.LastCheckAt == nil {
		return time.Time{}
	}
	return t.LastCheckAt.Add(t.Interval())
}

// DisplayName falls back to the URL when no name was given.
func (t Target) DisplayName() string {
	if t.Name != nil && *t.Name != "" {
		return *t.Name
	}
	return t.URL
}

// TargetPatch is a partial update. Nil fields are left untouched.
type TargetPatch struct {
	URL                  *string
	Name                 *string
	ValidWord            *string
	TimeoutSeconds       *int
	CheckIntervalSeconds *int
	FailureThreshold     *int
	AlertChatID          *string
	IsActive             *bool
}

// CheckStatus is the classification of a single probe.
type CheckStatus string

const (
	CheckOnline  CheckStatus = "online"
	CheckOffline CheckStatus = "offline"
	CheckError   CheckStatus = "error"
)

// Outcome is what the probe executor returns for one check.
type Outcome struct {
	Status         CheckStatus
	ResponseTimeMS *float64
	StatusCode     *int
	Error          string
	CheckedAt      time.Time
	Manual         bool
}

func (o Outcome) OK() bool { return o.Status == CheckOnline }

// CheckResult is one history entry. Never mutated after append.
type CheckResult struct {
	ID             int64       `json:"id"`
	TargetID       TargetID    `json:"target_id"`
	CheckedAt      time.Time   `json:"checked_at"`
	Status         CheckStatus `json:"status"`
	ResponseTimeMS *float64    `json:"response_time"`
	StatusCode     *int        `json:"status_code"`
	ErrorMessage   *string     `json:"error_message"`
	Manual         bool        `json:"manual"`
}

// ResultFromOutcome builds the history entry for an outcome.
func ResultFromOutcome(id TargetID, o Outcome) CheckResult {
	r := CheckResult{
		TargetID:       id,
		CheckedAt:      o.CheckedAt,
		Status:         o.Status,
		ResponseTimeMS: o.ResponseTimeMS,
		StatusCode:     o.StatusCode,
		Manual:         o.Manual,
	}
	if o.Error != "" {
		msg := o.Error
		r.ErrorMessage = &msg
	}
	return r
}

// Summary is the raw aggregate a result store computes over a window.
type Summary struct {
	Total         int
	Failed        int
	AvgResponseMS *float64
}

type Stats struct {
	UptimePercentage        float64  `json:"uptime_percentage"`
	AverageResponseTime     *float64 `json:"average_response_time"`
	TotalChecks             int      `json:"total_checks"`
	FailedChecks            int      `json:"failed_checks"`
	Last24hChecks           int      `json:"last_24h_checks"`
	Last24hFailures         int      `json:"last_24h_failures"`
	Last24hUptimePercentage float64  `json:"last_24h_uptime_percentage"`
}
