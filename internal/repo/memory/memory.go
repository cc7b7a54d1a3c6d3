package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// DefaultHistoryCap bounds the results kept per target.
const DefaultHistoryCap = 10000

// Store keeps everything in process memory. One mutex serialises all writes,
// which also makes RecordCheckOutcome atomic per target.
type Store struct {
	mu         sync.RWMutex
	accounts   map[domain.AccountID]domain.Account
	targets    map[domain.TargetID]domain.Target
	results    map[domain.TargetID][]domain.CheckResult
	nextResult int64
	historyCap int
	now        func() time.Time
}

func New(historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Store{
		accounts:   make(map[domain.AccountID]domain.Account),
		targets:    make(map[domain.TargetID]domain.Target),
		results:    make(map[domain.TargetID][]domain.CheckResult),
		historyCap: historyCap,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Store) Close() error { return nil }

func (m *Store) CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.accounts {
		if ex.Email == a.Email {
			return domain.Account{}, fmt.Errorf("email %q: %w", a.Email, domain.ErrConflict)
		}
		if ex.Username == a.Username {
			return domain.Account{}, fmt.Errorf("username %q: %w", a.Username, domain.ErrConflict)
		}
	}
	if a.ID == "" {
		a.ID = domain.AccountID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *Store) GetAccount(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (m *Store) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return domain.Account{}, fmt.Errorf("account %q: %w", email, domain.ErrNotFound)
}

func (m *Store) UpdateAccount(ctx context.Context, id domain.AccountID, p domain.AccountPatch) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if p.DefaultTelegramChatID != nil {
		a.DefaultTelegramChatID = nilIfEmpty(*p.DefaultTelegramChatID)
	}
	m.accounts[id] = a
	return a, nil
}

func (m *Store) DeleteAccount(ctx context.Context, id domain.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	delete(m.accounts, id)
	for tid, t := range m.targets {
		if t.OwnerID == id {
			delete(m.targets, tid)
			delete(m.results, tid)
		}
	}
	return nil
}

func (m *Store) Create(ctx context.Context, t domain.Target) (domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[t.OwnerID]; !ok {
		return domain.Target{}, fmt.Errorf("owner %s: %w", t.OwnerID, domain.ErrNotFound)
	}
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	t = domain.Normalize(t)
	m.targets[t.ID] = t
	return t, nil
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return domain.Target{}, fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (m *Store) List(ctx context.Context, p repo.ListParams) ([]domain.Target, int, error) {
	p = p.Normalized()
	search := strings.ToLower(p.Search)

	m.mu.RLock()
	matched := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.OwnerID != p.OwnerID {
			continue
		}
		if p.Status != nil && t.Status != *p.Status {
			continue
		}
		if p.IsActive != nil && t.IsActive != *p.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.URL), search) &&
			(t.Name == nil || !strings.Contains(strings.ToLower(*t.Name), search)) {
			continue
		}
		matched = append(matched, t)
	}
	m.mu.RUnlock()

	sortTargets(matched, p.SortBy, p.SortOrder == "desc")

	total := len(matched)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *Store) ListActive(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Store) Update(ctx context.Context, id domain.TargetID, p domain.TargetPatch) (domain.Target, error) {
	return m.mutate(id, func(t domain.Target) domain.Target { return domain.ApplyPatch(t, p) })
}

func (m *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) (domain.Target, error) {
	return m.mutate(id, func(t domain.Target) domain.Target { return domain.SetActive(t, active) })
}

func (m *Store) mutate(id domain.TargetID, fn func(domain.Target) domain.Target) (domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return domain.Target{}, fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	t = fn(t)
	now := m.now()
	t.UpdatedAt = &now
	m.targets[id] = t
	return t, nil
}

func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	delete(m.targets, id)
	delete(m.results, id)
	return nil
}

func (m *Store) RecordCheckOutcome(ctx context.Context, id domain.TargetID, o domain.Outcome) (domain.Target, domain.AlertKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return domain.Target{}, domain.AlertNone, fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	t, kind := domain.Apply(t, o)
	m.targets[id] = t
	return t, kind, nil
}

func (m *Store) Append(ctx context.Context, r domain.CheckResult) (domain.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[r.TargetID]; !ok {
		return domain.CheckResult{}, fmt.Errorf("target %s: %w", r.TargetID, domain.ErrNotFound)
	}
	m.nextResult++
	r.ID = m.nextResult
	// keep each history ordered by checked_at; late arrivals are inserted
	list := m.results[r.TargetID]
	i := sort.Search(len(list), func(i int) bool { return list[i].CheckedAt.After(r.CheckedAt) })
	list = append(list, domain.CheckResult{})
	copy(list[i+1:], list[i:])
	list[i] = r
	if over := len(list) - m.historyCap; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	m.results[r.TargetID] = list
	return r, nil
}

func (m *Store) Recent(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.results[id]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]domain.CheckResult, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (m *Store) Summarize(ctx context.Context, id domain.TargetID, since time.Time) (domain.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s domain.Summary
	var sum float64
	var n int
	for _, r := range m.results[id] {
		if r.CheckedAt.Before(since) {
			continue
		}
		s.Total++
		if r.Status != domain.CheckOnline {
			s.Failed++
			continue
		}
		if r.ResponseTimeMS != nil {
			sum += *r.ResponseTimeMS
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		s.AvgResponseMS = &avg
	}
	return s, nil
}

func (m *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, list := range m.results {
		kept := list[:0]
		for _, r := range list {
			if r.CheckedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		m.results[id] = kept
	}
	return removed, nil
}

// sortTargets orders like the SQL stores: nulls last in both directions and
// id as the tie breaker.
func sortTargets(ts []domain.Target, by string, desc bool) {
	sort.SliceStable(ts, func(i, j int) bool {
		c := compareBy(ts[i], ts[j], by)
		if c == 0 {
			return ts[i].ID < ts[j].ID
		}
		if c == nullLast || c == -nullLast {
			return c < 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// nullLast marks a comparison decided by one side being null; it is not
// flipped by the sort direction.
const nullLast = 2

func compareBy(a, b domain.Target, by string) int {
	switch by {
	case "name":
		return cmpNullable(a.Name, b.Name, strings.Compare)
	case "url":
		return strings.Compare(a.URL, b.URL)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "last_check":
		return cmpNullable(a.LastCheckAt, b.LastCheckAt, func(x, y time.Time) int { return x.Compare(y) })
	case "response_time":
		return cmpNullable(a.LastResponseTimeMS, b.LastResponseTimeMS, cmpOrdered[float64])
	case "check_interval":
		return cmpOrdered(a.CheckIntervalSeconds, b.CheckIntervalSeconds)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpNullable[T any](a, b *T, cmp func(T, T) int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return nullLast
	case b == nil:
		return -nullLast
	}
	return sign(cmp(*a, *b))
}

func cmpOrdered[T int | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
