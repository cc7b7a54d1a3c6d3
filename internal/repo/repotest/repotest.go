// Package repotest holds the behaviour every repo.Store must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Run exercises s against the store contract. Each subtest creates its own
// account so the suite can share a database with other runs.
func Run(t *testing.T, s repo.Store) {
	t.Helper()
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, s) })
	t.Run("TargetCRUD", func(t *testing.T) { testTargetCRUD(t, s) })
	t.Run("ListFilterSortPage", func(t *testing.T) { testList(t, s) })
	t.Run("RecordCheckOutcome", func(t *testing.T) { testRecord(t, s) })
	t.Run("ConcurrentRecord", func(t *testing.T) { testConcurrentRecord(t, s) })
	t.Run("Results", func(t *testing.T) { testResults(t, s) })
	t.Run("DeleteAccountCascades", func(t *testing.T) { testCascade(t, s) })
}

var seq atomic.Int64

func uniq(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

func newAccount(t *testing.T, s repo.Store) domain.Account {
	t.Helper()
	name := uniq("user")
	a, err := s.CreateAccount(context.Background(), domain.Account{
		Email: name + "@example.com", Username: name, PasswordHash: "x", IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func newTarget(t *testing.T, s repo.Store, owner domain.AccountID, url string) domain.Target {
	t.Helper()
	tg, err := s.Create(context.Background(), domain.Target{
		OwnerID: owner, URL: url, ValidWord: "OK", IsActive: true,
	}.WithDefaults())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tg
}

func testAccounts(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	if a.ID == "" {
		t.Fatal("expected id")
	}

	got, err := s.GetAccountByEmail(ctx, a.Email)
	if err != nil || got.ID != a.ID || !got.IsActive {
		t.Fatalf("GetAccountByEmail: %+v %v", got, err)
	}

	_, err = s.CreateAccount(ctx, domain.Account{Email: a.Email, Username: uniq("other"), PasswordHash: "x"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate email: want ErrConflict, got %v", err)
	}
	_, err = s.CreateAccount(ctx, domain.Account{Email: uniq("e") + "@example.com", Username: a.Username, PasswordHash: "x"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate username: want ErrConflict, got %v", err)
	}

	chat := "123456"
	upd, err := s.UpdateAccount(ctx, a.ID, domain.AccountPatch{DefaultTelegramChatID: &chat})
	if err != nil || upd.DefaultTelegramChatID == nil || *upd.DefaultTelegramChatID != chat {
		t.Fatalf("UpdateAccount: %+v %v", upd, err)
	}
	empty := ""
	upd, err = s.UpdateAccount(ctx, a.ID, domain.AccountPatch{DefaultTelegramChatID: &empty})
	if err != nil || upd.DefaultTelegramChatID != nil {
		t.Fatalf("clearing chat id: %+v %v", upd, err)
	}

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testTargetCRUD(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	tg := newTarget(t, s, a.ID, "https://example.com/crud")
	if tg.ID == "" || tg.Status != domain.StatusPending {
		t.Fatalf("created: %+v", tg)
	}

	got, err := s.Get(ctx, tg.ID)
	if err != nil || got.URL != tg.URL || got.CheckIntervalSeconds != domain.DefaultIntervalSeconds {
		t.Fatalf("Get: %+v %v", got, err)
	}

	name := "Shop"
	interval := 120
	upd, err := s.Update(ctx, tg.ID, domain.TargetPatch{Name: &name, CheckIntervalSeconds: &interval})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Name == nil || *upd.Name != "Shop" || upd.CheckIntervalSeconds != 120 || upd.UpdatedAt == nil {
		t.Fatalf("Update result: %+v", upd)
	}

	stopped, err := s.SetActive(ctx, tg.ID, false)
	if err != nil || stopped.IsActive || stopped.Status != domain.StatusStopped {
		t.Fatalf("stop: %+v %v", stopped, err)
	}
	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	for _, x := range active {
		if x.ID == tg.ID {
			t.Fatal("stopped target listed as active")
		}
	}
	started, err := s.SetActive(ctx, tg.ID, true)
	if err != nil || !started.IsActive || started.Status != domain.StatusPending {
		t.Fatalf("start: %+v %v", started, err)
	}

	if err := s.Delete(ctx, tg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, tg.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("after delete want ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, tg.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete want ErrNotFound, got %v", err)
	}
	if _, err := s.Update(ctx, tg.ID, domain.TargetPatch{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing want ErrNotFound, got %v", err)
	}
}

func testList(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	other := newAccount(t, s)
	newTarget(t, s, other.ID, "https://other.example.com")

	urls := []string{"https://alpha.example.com", "https://beta.example.com", "https://gamma.example.com"}
	ids := make([]domain.TargetID, 0, len(urls))
	for _, u := range urls {
		ids = append(ids, newTarget(t, s, a.ID, u).ID)
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := s.SetActive(ctx, ids[1], false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	all, total, err := s.List(ctx, repo.ListParams{OwnerID: a.ID})
	if err != nil || total != 3 || len(all) != 3 {
		t.Fatalf("List: %d/%d %v", len(all), total, err)
	}
	if all[0].ID != ids[2] {
		t.Fatalf("default order should be newest first, got %s", all[0].URL)
	}

	byURL, _, _ := s.List(ctx, repo.ListParams{OwnerID: a.ID, SortBy: "url", SortOrder: "asc"})
	if byURL[0].URL != urls[0] || byURL[2].URL != urls[2] {
		t.Fatalf("url asc order: %v", byURL)
	}

	page, total, _ := s.List(ctx, repo.ListParams{OwnerID: a.ID, SortBy: "url", SortOrder: "asc", Page: 2, PageSize: 2})
	if total != 3 || len(page) != 1 || page[0].URL != urls[2] {
		t.Fatalf("page 2: %v total=%d", page, total)
	}

	off := false
	inactive, total, _ := s.List(ctx, repo.ListParams{OwnerID: a.ID, IsActive: &off})
	if total != 1 || inactive[0].ID != ids[1] {
		t.Fatalf("is_active filter: %v", inactive)
	}

	stopped := domain.StatusStopped
	if _, total, _ := s.List(ctx, repo.ListParams{OwnerID: a.ID, Status: &stopped}); total != 1 {
		t.Fatalf("status filter total %d", total)
	}

	found, total, _ := s.List(ctx, repo.ListParams{OwnerID: a.ID, Search: "GAMMA"})
	if total != 1 || found[0].ID != ids[2] {
		t.Fatalf("search: %v", found)
	}

	// never-checked targets sort after checked ones in both directions
	if _, _, err := s.RecordCheckOutcome(ctx, ids[0], okOutcome(time.Now())); err != nil {
		t.Fatalf("record: %v", err)
	}
	for _, order := range []string{"asc", "desc"} {
		got, _, _ := s.List(ctx, repo.ListParams{OwnerID: a.ID, SortBy: "last_check", SortOrder: order})
		if got[0].ID != ids[0] {
			t.Fatalf("last_check %s: nulls must sort last, got %s first", order, got[0].URL)
		}
	}
}

func okOutcome(at time.Time) domain.Outcome {
	ms := 42.0
	code := 200
	return domain.Outcome{Status: domain.CheckOnline, ResponseTimeMS: &ms, StatusCode: &code, CheckedAt: at.UTC()}
}

func failOutcome(at time.Time) domain.Outcome {
	return domain.Outcome{Status: domain.CheckOffline, Error: "Valid word 'OK' not found", CheckedAt: at.UTC()}
}

func testRecord(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	tg := newTarget(t, s, a.ID, "https://example.com/record")

	var kinds []domain.AlertKind
	var got domain.Target
	for i := 0; i < 3; i++ {
		var k domain.AlertKind
		var err error
		got, k, err = s.RecordCheckOutcome(ctx, tg.ID, failOutcome(time.Now()))
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		kinds = append(kinds, k)
	}
	if kinds[0] != domain.AlertNone || kinds[1] != domain.AlertNone || kinds[2] != domain.AlertDown {
		t.Fatalf("alert kinds %v", kinds)
	}
	if got.Status != domain.StatusOffline || got.ConsecutiveFailures != 3 || got.LastError == nil {
		t.Fatalf("after failures: %+v", got)
	}

	stored, _ := s.Get(ctx, tg.ID)
	if stored.Status != domain.StatusOffline || stored.FailedChecks != 3 || stored.TotalChecks != 3 {
		t.Fatalf("persisted: %+v", stored)
	}

	got, k, err := s.RecordCheckOutcome(ctx, tg.ID, okOutcome(time.Now()))
	if err != nil || k != domain.AlertRecovered || got.Status != domain.StatusOnline || got.ConsecutiveFailures != 0 {
		t.Fatalf("recovery: %+v %q %v", got, k, err)
	}
	if got.LastResponseTimeMS == nil || *got.LastResponseTimeMS != 42 || got.LastCheckAt == nil {
		t.Fatalf("last check fields: %+v", got)
	}

	if _, _, err := s.RecordCheckOutcome(ctx, "missing", okOutcome(time.Now())); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testConcurrentRecord(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	tg := newTarget(t, s, a.ID, "https://example.com/concurrent")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.RecordCheckOutcome(ctx, tg.ID, failOutcome(time.Now())); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("record: %v", err)
	}

	got, _ := s.Get(ctx, tg.ID)
	if got.ConsecutiveFailures != n || got.TotalChecks != n {
		t.Fatalf("lost updates: failures=%d total=%d", got.ConsecutiveFailures, got.TotalChecks)
	}
}

func testResults(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	tg := newTarget(t, s, a.ID, "https://example.com/results")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		o := okOutcome(base.Add(time.Duration(i) * time.Minute))
		if i == 3 || i == 7 {
			o = failOutcome(base.Add(time.Duration(i) * time.Minute))
		}
		if _, err := s.Append(ctx, domain.ResultFromOutcome(tg.ID, o)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	old := okOutcome(base.Add(-40 * 24 * time.Hour))
	if _, err := s.Append(ctx, domain.ResultFromOutcome(tg.ID, old)); err != nil {
		t.Fatalf("Append old: %v", err)
	}

	recent, err := s.Recent(ctx, tg.ID, 3)
	if err != nil || len(recent) != 3 {
		t.Fatalf("Recent: %d %v", len(recent), err)
	}
	if !recent[0].CheckedAt.After(recent[1].CheckedAt) || recent[0].ID == 0 {
		t.Fatalf("Recent must be newest first: %+v", recent)
	}
	if recent[2].Status != domain.CheckOffline || recent[2].ErrorMessage == nil {
		t.Fatalf("third newest should be the failure at minute 7: %+v", recent[2])
	}

	sum, err := s.Summarize(ctx, tg.ID, base.Add(-time.Second))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Total != 10 || sum.Failed != 2 || sum.AvgResponseMS == nil || *sum.AvgResponseMS != 42 {
		t.Fatalf("window summary: %+v", sum)
	}
	all, _ := s.Summarize(ctx, tg.ID, time.Time{})
	if all.Total != 11 {
		t.Fatalf("all-time total %d", all.Total)
	}

	n, err := s.DeleteBefore(ctx, base.Add(-30*24*time.Hour))
	if err != nil || n < 1 {
		t.Fatalf("DeleteBefore: %d %v", n, err)
	}
	all, _ = s.Summarize(ctx, tg.ID, time.Time{})
	if all.Total != 10 {
		t.Fatalf("after retention total %d", all.Total)
	}

	empty := newTarget(t, s, a.ID, "https://example.com/empty")
	sum, _ = s.Summarize(ctx, empty.ID, time.Time{})
	if sum.Total != 0 || sum.AvgResponseMS != nil {
		t.Fatalf("empty summary: %+v", sum)
	}
}

func testCascade(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := newAccount(t, s)
	tg := newTarget(t, s, a.ID, "https://example.com/cascade")
	if _, err := s.Append(ctx, domain.ResultFromOutcome(tg.ID, okOutcome(time.Now()))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := s.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := s.Get(ctx, tg.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("target should be gone, got %v", err)
	}
	if rs, _ := s.Recent(ctx, tg.ID, 10); len(rs) != 0 {
		t.Fatalf("history should be gone, got %d", len(rs))
	}
	if err := s.DeleteAccount(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
