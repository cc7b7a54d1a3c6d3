package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/scheduler"
)

type targetPayload struct {
	URL              *string `json:"url"`
	Name             *string `json:"name"`
	ValidWord        *string `json:"valid_word"`
	Timeout          *int    `json:"timeout"`
	CheckInterval    *int    `json:"check_interval"`
	FailureThreshold *int    `json:"failure_threshold"`
	TelegramChatID   *string `json:"telegram_chat_id"`
	IsActive         *bool   `json:"is_active"`
}

func (p targetPayload) patch() domain.TargetPatch {
	tp := domain.TargetPatch{
		URL:                  p.URL,
		Name:                 p.Name,
		ValidWord:            p.ValidWord,
		TimeoutSeconds:       p.Timeout,
		CheckIntervalSeconds: p.CheckInterval,
		FailureThreshold:     p.FailureThreshold,
		IsActive:             p.IsActive,
	}
	if p.TelegramChatID != nil {
		id := ""
		if c := chatID(*p.TelegramChatID); c != nil {
			id = *c
		}
		tp.AlertChatID = &id
	}
	return tp
}

type listResponse struct {
	Items      []domain.Target `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// ownedTarget loads id and hides targets of other accounts behind 404.
func (s *Server) ownedTarget(r *http.Request) (domain.Target, error) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	t, err := s.Targets.Get(r.Context(), id)
	if err != nil {
		return domain.Target{}, err
	}
	if t.OwnerID != caller(r) {
		return domain.Target{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := domain.ValidationErrors{}
	p := repo.ListParams{
		OwnerID:   caller(r),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	p.Page = queryInt(q.Get("page"), "page", v)
	p.PageSize = queryInt(q.Get("page_size"), "page_size", v)
	if raw := q.Get("status"); raw != "" {
		st := domain.Status(strings.ToLower(raw))
		if !st.Valid() {
			v["status"] = "unknown status"
		}
		p.Status = &st
	}
	if raw := q.Get("is_active"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			v["is_active"] = "must be true or false"
		}
		p.IsActive = &b
	}
	if err := v.Err(); err != nil {
		s.writeErr(w, r, err)
		return
	}

	p = p.Normalized()
	items, total, err := s.Targets.List(r.Context(), p)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Target{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: (total + p.PageSize - 1) / p.PageSize,
	})
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var p targetPayload
	if err := decode(r, &p); err != nil {
		s.writeErr(w, r, err)
		return
	}
	t := domain.Target{
		OwnerID:  caller(r),
		IsActive: true,
		Status:   domain.StatusPending,
	}
	t = domain.ApplyPatch(t, p.patch()).WithDefaults()
	if err := t.Validate(); err != nil {
		s.writeErr(w, r, err)
		return
	}

	t, err := s.Targets.Create(r.Context(), t)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Monitor.Schedule(t)
	s.Logger.Info("target_added",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.Int("interval_s", t.CheckIntervalSeconds),
	)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var p targetPayload
	if err := decode(r, &p); err != nil {
		s.writeErr(w, r, err)
		return
	}
	patch := p.patch()
	if err := patch.Validate(); err != nil {
		s.writeErr(w, r, err)
		return
	}
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if patch.Empty() {
		writeJSON(w, http.StatusOK, t)
		return
	}
	t, err = s.Targets.Update(r.Context(), t.ID, patch)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Monitor.Schedule(t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Monitor.Unschedule(t.ID)
	if err := s.Targets.Delete(r.Context(), t.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Logger.Info("target_deleted", zap.String("target_id", string(t.ID)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, true)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, false)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	t, err = s.Targets.SetActive(r.Context(), t.ID, active)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if active {
		s.Monitor.Schedule(t)
	} else {
		s.Monitor.Unschedule(t.ID)
	}
	s.Logger.Info("monitoring_toggled",
		zap.String("target_id", string(t.ID)),
		zap.Bool("active", active),
	)
	writeJSON(w, http.StatusOK, t)
}

// handleCheckNow queues an immediate probe and answers before it completes.
// A probe already in flight counts as the requested one.
func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	err = s.Monitor.CheckNow(r.Context(), t.ID)
	switch {
	case err == nil, errors.Is(err, scheduler.ErrAlreadyRunning):
	case errors.Is(err, scheduler.ErrInactive):
		writeDetail(w, http.StatusConflict, "Monitoring is stopped for this website")
		return
	case errors.Is(err, scheduler.ErrNotStarted):
		writeDetail(w, http.StatusServiceUnavailable, "Scheduler is not running")
		return
	default:
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	st, err := s.History.Stats(r.Context(), t.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	v := domain.ValidationErrors{}
	limit := queryInt(r.URL.Query().Get("limit"), "limit", v)
	if err := v.Err(); err != nil {
		s.writeErr(w, r, err)
		return
	}
	t, err := s.ownedTarget(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	rs, err := s.History.History(r.Context(), t.ID, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if rs == nil {
		rs = []domain.CheckResult{}
	}
	writeJSON(w, http.StatusOK, rs)
}

// queryInt parses an optional non-negative integer; empty yields 0.
func queryInt(raw, field string, v domain.ValidationErrors) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		v[field] = "must be a non-negative integer"
		return 0
	}
	return n
}
