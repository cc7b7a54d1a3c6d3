package domain

import "time"

// AlertKind is the edge a state transition crossed, if any.
type AlertKind string

const (
	AlertNone      AlertKind = ""
	AlertDown      AlertKind = "down"
	AlertRecovered AlertKind = "recovered"
)

// AlertEvent is handed to the dispatcher after a transition.
type AlertEvent struct {
	Kind    AlertKind
	Target  Target
	Outcome Outcome
	At      time.Time
}

// Apply folds one probe outcome into the target state. It is pure: the
// registry calls it under its per-target serialisation and persists the
// returned target.
//
// Alerts fire at most once per edge: online->down on reaching the threshold
// and down->online on the first success afterwards.
func Apply(t Target, o Outcome) (Target, AlertKind) {
	prev := t.Status

	checkedAt := o.CheckedAt
	t.LastCheckAt = &checkedAt
	t.LastResponseTimeMS = o.ResponseTimeMS
	t.TotalChecks++
	if o.Error != "" {
		msg := o.Error
		t.LastError = &msg
	} else {
		t.LastError = nil
	}

	if o.OK() {
		t.ConsecutiveFailures = 0
	} else {
		t.ConsecutiveFailures++
		t.FailedChecks++
	}

	if !t.IsActive {
		t.Status = StatusStopped
		return t, AlertNone
	}

	if o.OK() {
		t.Status = StatusOnline
		if prev.Down() {
			return t, AlertRecovered
		}
		return t, AlertNone
	}

	if t.ConsecutiveFailures < t.threshold() {
		return t, AlertNone
	}

	t.Status = StatusOffline
	if o.Status == CheckError {
		t.Status = StatusError
	}
	if prev.Down() {
		return t, AlertNone
	}
	return t, AlertDown
}

// Normalize restores the status invariants after a configuration change.
func Normalize(t Target) Target {
	switch {
	case !t.IsActive:
		t.Status = StatusStopped
	case t.Status == StatusStopped, !t.Status.Valid():
		t.Status = StatusPending
	case t.Status.Down() && t.ConsecutiveFailures < t.threshold():
		t.Status = StatusOnline
	}
	return t
}

func (t Target) threshold() int {
	if t.FailureThreshold < 1 {
		return DefaultFailureThreshold
	}
	return t.FailureThreshold
}

// SetActive starts or stops monitoring. Starting clears the failure streak so
// a fresh monitoring period begins in pending.
func SetActive(t Target, active bool) Target {
	if active && !t.IsActive {
		t.ConsecutiveFailures = 0
	}
	t.IsActive = active
	return Normalize(t)
}
