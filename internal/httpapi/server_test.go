package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/auth"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/scheduler"
	"github.com/hamed0406/sitewatch/internal/stats"
)

// ---- test helpers ----

type fakeMonitor struct {
	mu          sync.Mutex
	scheduled   map[domain.TargetID]bool
	checkNowErr error
	checks      int
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{scheduled: make(map[domain.TargetID]bool)}
}

func (f *fakeMonitor) Schedule(t domain.Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[t.ID] = t.IsActive
}

func (f *fakeMonitor) Unschedule(id domain.TargetID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[id] = false
}

func (f *fakeMonitor) CheckNow(_ context.Context, _ domain.TargetID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.checkNowErr
}

func (f *fakeMonitor) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkNowErr = err
}

func (f *fakeMonitor) isScheduled(id domain.TargetID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled[id]
}

type fakeChats struct{ err error }

func (f fakeChats) ValidateChat(context.Context, string) error { return f.err }

type fixture struct {
	t     *testing.T
	srv   *Server
	store *memory.Store
	mon   *fakeMonitor
	ts    *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := memory.New(0)
	mon := newFakeMonitor()
	srv := NewServer(log, store, mon, stats.New(store, log, 0), auth.NewTokens("test-secret", time.Hour), Options{
		AllowedOrigins: []string{"http://localhost:3000"},
		AuthRPM:        10_000,
		AuthBurst:      10_000,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{t: t, srv: srv, store: store, mon: mon, ts: ts}
}

func (f *fixture) do(method, path, token string, body any) (*http.Response, []byte) {
	f.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, f.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

// user registers and logs in, returning the token and account id.
func (f *fixture) user(name string) (string, domain.AccountID) {
	f.t.Helper()
	resp, body := f.do("POST", "/api/v1/auth/register", "", map[string]string{
		"email": name + "@example.com", "username": name, "password": "secret-pass",
	})
	if resp.StatusCode != http.StatusCreated {
		f.t.Fatalf("register %s: %d %s", name, resp.StatusCode, body)
	}
	var acc domain.Account
	_ = json.Unmarshal(body, &acc)

	resp, body = f.do("POST", "/api/v1/auth/login", "", map[string]string{
		"email": name + "@example.com", "password": "secret-pass",
	})
	if resp.StatusCode != http.StatusOK {
		f.t.Fatalf("login %s: %d %s", name, resp.StatusCode, body)
	}
	var tok tokenResponse
	_ = json.Unmarshal(body, &tok)
	return tok.AccessToken, acc.ID
}

func (f *fixture) addSite(token, u string) domain.Target {
	f.t.Helper()
	resp, body := f.do("POST", "/api/v1/websites", token, map[string]any{"url": u, "valid_word": "OK"})
	if resp.StatusCode != http.StatusCreated {
		f.t.Fatalf("add %s: %d %s", u, resp.StatusCode, body)
	}
	var t domain.Target
	_ = json.Unmarshal(body, &t)
	return t
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	f := setup(t)
	resp, body := f.do("GET", "/healthz", "", nil)
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}
}

func TestRegister_DuplicateAndInvalid(t *testing.T) {
	f := setup(t)
	f.user("alice")

	resp, _ := f.do("POST", "/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice2", "password": "secret-pass",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate email: want 400, got %d", resp.StatusCode)
	}

	resp, body := f.do("POST", "/api/v1/auth/register", "", map[string]string{
		"email": "nope", "username": "x", "password": "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid: want 400, got %d", resp.StatusCode)
	}
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	for _, k := range []string{"email", "username", "password"} {
		if eb.Errors[k] == "" {
			t.Fatalf("missing field error %q in %s", k, body)
		}
	}
	resp, body = f.do("POST", "/api/v1/auth/register", "", map[string]string{
		"email": "long@example.com", "username": "longpass", "password": strings.Repeat("p", 80),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("80-byte password: want 400, got %d %s", resp.StatusCode, body)
	}
	eb = errorBody{}
	_ = json.Unmarshal(body, &eb)
	if eb.Errors["password"] == "" {
		t.Fatalf("missing password error in %s", body)
	}
}

func TestLogin_WrongPasswordAndForm(t *testing.T) {
	f := setup(t)
	f.user("bob")

	resp, _ := f.do("POST", "/api/v1/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": "wrong-pass",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}

	form := url.Values{"username": {"BOB@example.com"}, "password": {"secret-pass"}}
	r, err := http.Post(f.ts.URL+"/api/v1/auth/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("form login: want 200, got %d", r.StatusCode)
	}
	var tok tokenResponse
	_ = json.NewDecoder(r.Body).Decode(&tok)
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("bad token response %+v", tok)
	}
}

func TestMe_RequiresToken(t *testing.T) {
	f := setup(t)
	if resp, _ := f.do("GET", "/api/v1/auth/me", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
	token, id := f.user("carol")
	resp, body := f.do("GET", "/api/v1/auth/me/", token, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("me: %d %s", resp.StatusCode, body)
	}
	var a domain.Account
	_ = json.Unmarshal(body, &a)
	if a.ID != id || strings.Contains(string(body), "password") {
		t.Fatalf("unexpected account body %s", body)
	}
}

func TestUpdateMe_ChatValidation(t *testing.T) {
	f := setup(t)
	token, _ := f.user("dave")

	f.srv.Chats = fakeChats{err: errors.New("chat not found")}
	resp, _ := f.do("PATCH", "/api/v1/auth/me", token, map[string]string{"default_telegram_chat_id": "123"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unreachable chat: want 400, got %d", resp.StatusCode)
	}

	f.srv.Chats = fakeChats{}
	resp, body := f.do("PATCH", "/api/v1/auth/me", token, map[string]string{"default_telegram_chat_id": "1001234"})
	if resp.StatusCode != 200 {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}
	var a domain.Account
	_ = json.Unmarshal(body, &a)
	if a.DefaultTelegramChatID == nil || *a.DefaultTelegramChatID != "-1001234" {
		t.Fatalf("chat id not normalized: %v", a.DefaultTelegramChatID)
	}
}

func TestCreateWebsite_DefaultsAndValidation(t *testing.T) {
	f := setup(t)
	token, id := f.user("erin")

	site := f.addSite(token, "https://example.com")
	if site.OwnerID != id || site.Status != domain.StatusPending || !site.IsActive {
		t.Fatalf("unexpected target %+v", site)
	}
	if site.TimeoutSeconds != 30 || site.CheckIntervalSeconds != 300 || site.FailureThreshold != 3 {
		t.Fatalf("defaults not applied: %+v", site)
	}
	if !f.mon.isScheduled(site.ID) {
		t.Fatal("new target should be scheduled")
	}

	resp, body := f.do("POST", "/api/v1/websites", token, map[string]any{
		"url": "ftp://bad", "valid_word": "OK", "check_interval": 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Errors["url"] == "" || eb.Errors["check_interval"] == "" {
		t.Fatalf("expected url and check_interval errors: %s", body)
	}
}

func TestListWebsites_PagingAndFilters(t *testing.T) {
	f := setup(t)
	token, _ := f.user("frank")
	for i := 0; i < 5; i++ {
		f.addSite(token, fmt.Sprintf("https://site%d.example.com", i))
	}
	other, _ := f.user("grace")
	f.addSite(other, "https://grace.example.com")

	resp, body := f.do("GET", "/api/v1/websites?page=2&page_size=2&sort_by=url&sort_order=asc", token, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	var lr listResponse
	_ = json.Unmarshal(body, &lr)
	if lr.Total != 5 || lr.TotalPages != 3 || len(lr.Items) != 2 {
		t.Fatalf("paging wrong: %+v", lr)
	}
	if lr.Items[0].URL != "https://site2.example.com" {
		t.Fatalf("sort wrong: %s", lr.Items[0].URL)
	}

	resp, body = f.do("GET", "/api/v1/websites?search=SITE3", token, nil)
	_ = json.Unmarshal(body, &lr)
	if resp.StatusCode != 200 || lr.Total != 1 {
		t.Fatalf("search: %d %+v", resp.StatusCode, lr)
	}

	resp, _ = f.do("GET", "/api/v1/websites?status=sleepy", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status filter: want 400, got %d", resp.StatusCode)
	}
}

func TestWebsite_OtherOwnerIsNotFound(t *testing.T) {
	f := setup(t)
	owner, _ := f.user("heidi")
	site := f.addSite(owner, "https://heidi.example.com")
	intruder, _ := f.user("ivan")

	for _, c := range []struct{ method, path string }{
		{"GET", ""},
		{"PATCH", ""},
		{"DELETE", ""},
		{"POST", "/stop"},
		{"POST", "/check-now"},
		{"GET", "/stats"},
		{"GET", "/history"},
	} {
		resp, _ := f.do(c.method, "/api/v1/websites/"+string(site.ID)+c.path, intruder, map[string]any{})
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s %s: want 404, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestUpdateWebsite(t *testing.T) {
	f := setup(t)
	token, _ := f.user("judy")
	site := f.addSite(token, "https://judy.example.com")

	resp, body := f.do("PATCH", "/api/v1/websites/"+string(site.ID), token, map[string]any{
		"name": "Judy", "check_interval": 120,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("patch: %d %s", resp.StatusCode, body)
	}
	var got domain.Target
	_ = json.Unmarshal(body, &got)
	if got.Name == nil || *got.Name != "Judy" || got.CheckIntervalSeconds != 120 {
		t.Fatalf("patch not applied: %+v", got)
	}

	resp, _ = f.do("PATCH", "/api/v1/websites/"+string(site.ID), token, map[string]any{"timeout": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("timeout 0: want 400, got %d", resp.StatusCode)
	}
}

func TestStartStopAndCheckNow(t *testing.T) {
	f := setup(t)
	token, _ := f.user("kate")
	site := f.addSite(token, "https://kate.example.com")
	base := "/api/v1/websites/" + string(site.ID)

	resp, body := f.do("POST", base+"/check-now", token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("check-now: %d %s", resp.StatusCode, body)
	}

	f.mon.failWith(scheduler.ErrAlreadyRunning)
	if resp, _ := f.do("POST", base+"/check-now", token, nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("overlapping check-now: want 202, got %d", resp.StatusCode)
	}

	resp, body = f.do("POST", base+"/stop", token, nil)
	var stopped domain.Target
	_ = json.Unmarshal(body, &stopped)
	if resp.StatusCode != 200 || stopped.Status != domain.StatusStopped || stopped.IsActive {
		t.Fatalf("stop: %d %+v", resp.StatusCode, stopped)
	}
	if f.mon.isScheduled(site.ID) {
		t.Fatal("stopped target still scheduled")
	}

	f.mon.failWith(scheduler.ErrInactive)
	if resp, _ := f.do("POST", base+"/check-now", token, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("check-now on stopped: want 409, got %d", resp.StatusCode)
	}

	resp, body = f.do("POST", base+"/start", token, nil)
	var started domain.Target
	_ = json.Unmarshal(body, &started)
	if resp.StatusCode != 200 || started.Status != domain.StatusPending || !f.mon.isScheduled(site.ID) {
		t.Fatalf("start: %d %+v", resp.StatusCode, started)
	}
}

func TestStatsAndHistory(t *testing.T) {
	f := setup(t)
	token, _ := f.user("leo")
	site := f.addSite(token, "https://leo.example.com")

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		status := domain.CheckOnline
		if i < 2 {
			status = domain.CheckOffline
		}
		rt := 100.0
		_, err := f.store.Append(context.Background(), domain.CheckResult{
			TargetID:       site.ID,
			CheckedAt:      now.Add(time.Duration(i-10) * time.Minute),
			Status:         status,
			ResponseTimeMS: &rt,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	resp, body := f.do("GET", "/api/v1/websites/"+string(site.ID)+"/stats", token, nil)
	var st domain.Stats
	_ = json.Unmarshal(body, &st)
	if resp.StatusCode != 200 || st.UptimePercentage != 80 || st.TotalChecks != 10 || st.Last24hChecks != 10 {
		t.Fatalf("stats: %d %s", resp.StatusCode, body)
	}

	resp, body = f.do("GET", "/api/v1/websites/"+string(site.ID)+"/history?limit=3", token, nil)
	var hist []domain.CheckResult
	_ = json.Unmarshal(body, &hist)
	if resp.StatusCode != 200 || len(hist) != 3 || !hist[0].CheckedAt.After(hist[1].CheckedAt) {
		t.Fatalf("history: %d %s", resp.StatusCode, body)
	}

	resp, _ = f.do("GET", "/api/v1/websites/"+string(site.ID)+"/history?limit=-1", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative limit: want 400, got %d", resp.StatusCode)
	}
}

func TestDeleteWebsiteAndAccount(t *testing.T) {
	f := setup(t)
	token, _ := f.user("mia")
	a := f.addSite(token, "https://a.example.com")
	b := f.addSite(token, "https://b.example.com")

	if resp, _ := f.do("DELETE", "/api/v1/websites/"+string(a.ID), token, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete site: %d", resp.StatusCode)
	}
	if resp, _ := f.do("GET", "/api/v1/websites/"+string(a.ID), token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted site still visible: %d", resp.StatusCode)
	}

	if resp, _ := f.do("DELETE", "/api/v1/auth/me", token, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete account: %d", resp.StatusCode)
	}
	if f.mon.isScheduled(b.ID) {
		t.Fatal("targets of deleted account still scheduled")
	}
	if resp, _ := f.do("GET", "/api/v1/auth/me", token, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deleted account: want 401, got %d", resp.StatusCode)
	}
	if _, err := f.store.Get(context.Background(), b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("targets should cascade, got %v", err)
	}
}

func TestEvents_StreamsOwnTargets(t *testing.T) {
	f := setup(t)
	token, id := f.user("nina")

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/v1/websites/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.srv.Events.Subscribers(id) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.srv.Events.Publish(domain.Target{ID: "other", OwnerID: "someone-else"})
	f.srv.Events.Publish(domain.Target{ID: "mine", OwnerID: id, Status: domain.StatusOnline})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev targetEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "target_updated" || ev.Target.ID != "mine" || ev.Target.Status != domain.StatusOnline {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestEvents_RejectsMissingToken(t *testing.T) {
	f := setup(t)
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/v1/websites/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 handshake, got %v", resp)
	}
}
