package domain

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

const (
	MinTimeoutSeconds   = 1
	MaxTimeoutSeconds   = 300
	MinIntervalSeconds  = 60
	MaxIntervalSeconds  = 3600
	MaxFailureThreshold = 100
	MinPasswordLength   = 8
	MaxPasswordLength   = 72 // bcrypt input limit, in bytes
)

// IsValidHTTPURL accepts absolute http(s) URLs with a host.
func IsValidHTTPURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Host != ""
}

// Validate checks a target about to be created. Zero numeric fields must be
// defaulted by the caller first.
func (t Target) Validate() error {
	v := ValidationErrors{}
	if !IsValidHTTPURL(t.URL) {
		v["url"] = "must start with http:// or https:// and include a host"
	}
	if strings.TrimSpace(t.ValidWord) == "" {
		v["valid_word"] = "is required"
	}
	checkRanges(v, t.TimeoutSeconds, t.CheckIntervalSeconds, t.FailureThreshold)
	return v.Err()
}

// WithDefaults fills the numeric settings the client left out.
func (t Target) WithDefaults() Target {
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if t.CheckIntervalSeconds == 0 {
		t.CheckIntervalSeconds = DefaultIntervalSeconds
	}
	if t.FailureThreshold == 0 {
		t.FailureThreshold = DefaultFailureThreshold
	}
	return Normalize(t)
}

func (p TargetPatch) Validate() error {
	v := ValidationErrors{}
	if p.URL != nil && !IsValidHTTPURL(*p.URL) {
		v["url"] = "must start with http:// or https:// and include a host"
	}
	if p.ValidWord != nil && strings.TrimSpace(*p.ValidWord) == "" {
		v["valid_word"] = "must not be empty"
	}
	timeout, interval, threshold := MinTimeoutSeconds, MinIntervalSeconds, 1
	if p.TimeoutSeconds != nil {
		timeout = *p.TimeoutSeconds
	}
	if p.CheckIntervalSeconds != nil {
		interval = *p.CheckIntervalSeconds
	}
	if p.FailureThreshold != nil {
		threshold = *p.FailureThreshold
	}
	checkRanges(v, timeout, interval, threshold)
	return v.Err()
}

// Empty reports whether the patch changes nothing.
func (p TargetPatch) Empty() bool {
	return p == TargetPatch{}
}

// ApplyPatch returns t with the patch applied and the status invariants
// restored.
func ApplyPatch(t Target, p TargetPatch) Target {
	if p.URL != nil {
		t.URL = strings.TrimSpace(*p.URL)
	}
	if p.Name != nil {
		t.Name = emptyToNil(*p.Name)
	}
	if p.ValidWord != nil {
		t.ValidWord = *p.ValidWord
	}
	if p.TimeoutSeconds != nil {
		t.TimeoutSeconds = *p.TimeoutSeconds
	}
	if p.CheckIntervalSeconds != nil {
		t.CheckIntervalSeconds = *p.CheckIntervalSeconds
	}
	if p.FailureThreshold != nil {
		t.FailureThreshold = *p.FailureThreshold
	}
	if p.AlertChatID != nil {
		t.AlertChatID = emptyToNil(*p.AlertChatID)
	}
	if p.IsActive != nil {
		return SetActive(t, *p.IsActive)
	}
	return Normalize(t)
}

func checkRanges(v ValidationErrors, timeout, interval, threshold int) {
	if timeout < MinTimeoutSeconds || timeout > MaxTimeoutSeconds {
		v["timeout"] = fmt.Sprintf("must be between %d and %d seconds", MinTimeoutSeconds, MaxTimeoutSeconds)
	}
	if interval < MinIntervalSeconds || interval > MaxIntervalSeconds {
		v["check_interval"] = fmt.Sprintf("must be between %d and %d seconds", MinIntervalSeconds, MaxIntervalSeconds)
	}
	if threshold < 1 || threshold > MaxFailureThreshold {
		v["failure_threshold"] = fmt.Sprintf("must be between 1 and %d", MaxFailureThreshold)
	}
}

// ValidateRegistration checks sign-up input.
func ValidateRegistration(email, username, password string) error {
	v := ValidationErrors{}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v["email"] = "must be a valid email address"
	}
	if n := len(strings.TrimSpace(username)); n < 3 || n > 50 {
		v["username"] = "must be between 3 and 50 characters"
	}
	switch {
	case len(password) < MinPasswordLength:
		v["password"] = fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	case len(password) > MaxPasswordLength:
		v["password"] = fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)
	}
	return v.Err()
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
