package domain

import (
	"testing"
	"time"
)

func activeTarget(threshold int) Target {
	return Target{ID: "t1", URL: "https://example.com", ValidWord: "OK", IsActive: true, Status: StatusPending, FailureThreshold: threshold}
}

func fail(kind CheckStatus) Outcome {
	return Outcome{Status: kind, Error: "boom", CheckedAt: time.Now()}
}

func ok() Outcome {
	ms := 12.5
	return Outcome{Status: CheckOnline, ResponseTimeMS: &ms, CheckedAt: time.Now()}
}

func TestApply_ThresholdThreeFiresOneDownAlert(t *testing.T) {
	tg := activeTarget(3)
	tg.Status = StatusOnline

	var alerts []AlertKind
	for i := 0; i < 5; i++ {
		var k AlertKind
		tg, k = Apply(tg, fail(CheckOffline))
		if k != AlertNone {
			alerts = append(alerts, k)
		}
		if i < 2 && tg.Status != StatusOnline {
			t.Fatalf("failure %d: status %s below threshold", i+1, tg.Status)
		}
		if i == 2 && tg.Status != StatusOffline {
			t.Fatalf("third failure should go offline, got %s", tg.Status)
		}
	}
	if len(alerts) != 1 || alerts[0] != AlertDown {
		t.Fatalf("want one down alert, got %v", alerts)
	}
	if tg.ConsecutiveFailures != 5 || tg.FailedChecks != 5 || tg.TotalChecks != 5 {
		t.Fatalf("counters: %+v", tg)
	}

	tg, k := Apply(tg, ok())
	if k != AlertRecovered || tg.Status != StatusOnline || tg.ConsecutiveFailures != 0 {
		t.Fatalf("recovery: kind=%q status=%s failures=%d", k, tg.Status, tg.ConsecutiveFailures)
	}
	if tg.LastError != nil {
		t.Fatalf("error should clear on success")
	}
	if _, k := Apply(tg, ok()); k != AlertNone {
		t.Fatalf("second success must not alert")
	}
}

func TestApply_FailureCounterProperty(t *testing.T) {
	seq := []bool{false, false, true, false, true, true, false, false, false, false}
	tg := activeTarget(4)
	want := 0
	for i, success := range seq {
		o := fail(CheckError)
		if success {
			o = ok()
			want = 0
		} else {
			want++
		}
		tg, _ = Apply(tg, o)
		if tg.ConsecutiveFailures != want {
			t.Fatalf("step %d: failures %d want %d", i, tg.ConsecutiveFailures, want)
		}
		if tg.Status.Down() && tg.ConsecutiveFailures < tg.FailureThreshold {
			t.Fatalf("step %d: down below threshold", i)
		}
	}
	if tg.Status != StatusError {
		t.Fatalf("status should mirror raw error kind, got %s", tg.Status)
	}
}

func TestApply_StatusFollowsLatestFailureKind(t *testing.T) {
	tg := activeTarget(1)
	tg, k := Apply(tg, fail(CheckOffline))
	if tg.Status != StatusOffline || k != AlertDown {
		t.Fatalf("got %s %q", tg.Status, k)
	}
	tg, k = Apply(tg, fail(CheckError))
	if tg.Status != StatusError || k != AlertNone {
		t.Fatalf("offline->error must not re-alert, got %s %q", tg.Status, k)
	}
}

func TestApply_PendingSuccessDoesNotAlert(t *testing.T) {
	tg, k := Apply(activeTarget(3), ok())
	if tg.Status != StatusOnline || k != AlertNone {
		t.Fatalf("got %s %q", tg.Status, k)
	}
	if tg.LastResponseTimeMS == nil || *tg.LastResponseTimeMS != 12.5 || tg.LastCheckAt == nil {
		t.Fatalf("last check fields not copied: %+v", tg)
	}
}

func TestApply_InactiveStaysStopped(t *testing.T) {
	tg := activeTarget(1)
	tg.IsActive = false
	tg.Status = StatusStopped
	tg, k := Apply(tg, fail(CheckOffline))
	if tg.Status != StatusStopped || k != AlertNone {
		t.Fatalf("got %s %q", tg.Status, k)
	}
	if tg.ConsecutiveFailures != 1 {
		t.Fatalf("counters should still move")
	}
}

func TestNormalize(t *testing.T) {
	tg := activeTarget(2)
	tg.Status = StatusOffline
	tg.ConsecutiveFailures = 2

	tg.FailureThreshold = 5
	if got := Normalize(tg).Status; got != StatusOnline {
		t.Fatalf("raising threshold should normalise to online, got %s", got)
	}

	stopped := SetActive(tg, false)
	if stopped.Status != StatusStopped || stopped.IsActive {
		t.Fatalf("stop: %+v", stopped)
	}
	started := SetActive(stopped, true)
	if started.Status != StatusPending || started.ConsecutiveFailures != 0 {
		t.Fatalf("start: %+v", started)
	}
}

func TestNormalize_UnsetStatusBecomesPending(t *testing.T) {
	fresh := Target{URL: "https://example.com", ValidWord: "OK", IsActive: true}
	if got := Normalize(fresh).Status; got != StatusPending {
		t.Fatalf("active target without status: got %q", got)
	}
	if got := fresh.WithDefaults().Status; got != StatusPending {
		t.Fatalf("WithDefaults: got %q", got)
	}
	fresh.Status = "sleeping"
	if got := Normalize(fresh).Status; got != StatusPending {
		t.Fatalf("unknown status: got %q", got)
	}
	fresh.IsActive = false
	if got := Normalize(fresh).Status; got != StatusStopped {
		t.Fatalf("inactive: got %q", got)
	}
}

func TestApplyPatchAndValidation(t *testing.T) {
	tg := activeTarget(3)
	off := false
	name := "  "
	got := ApplyPatch(tg, TargetPatch{IsActive: &off, Name: &name})
	if got.Status != StatusStopped || got.Name != nil {
		t.Fatalf("patch: %+v", got)
	}

	bad := 10
	err := TargetPatch{CheckIntervalSeconds: &bad}.Validate()
	v, isV := IsValidation(err)
	if !isV || v["check_interval"] == "" {
		t.Fatalf("want check_interval validation error, got %v", err)
	}

	if err := (Target{URL: "ftp://x", ValidWord: ""}).WithDefaults().Validate(); err == nil {
		t.Fatal("want validation error")
	} else if v, _ := IsValidation(err); v["url"] == "" || v["valid_word"] == "" {
		t.Fatalf("missing fields: %v", v)
	}
	if err := (Target{URL: "https://example.com", ValidWord: "OK"}).WithDefaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if err := ValidateRegistration("a@b.co", "bob", "short"); err == nil {
		t.Fatal("short password must fail")
	}
	if err := ValidateRegistration("a@b.co", "bob", "longenough"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}
