package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/auth"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/repo"
)

type registerPayload struct {
	Email                 string  `json:"email"`
	Username              string  `json:"username"`
	Password              string  `json:"password"`
	DefaultTelegramChatID *string `json:"default_telegram_chat_id"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p registerPayload
	if err := decode(r, &p); err != nil {
		s.writeErr(w, r, err)
		return
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Username = strings.TrimSpace(p.Username)
	if err := domain.ValidateRegistration(p.Email, p.Username, p.Password); err != nil {
		s.writeErr(w, r, err)
		return
	}
	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	a := domain.Account{
		Email:        p.Email,
		Username:     p.Username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if p.DefaultTelegramChatID != nil {
		a.DefaultTelegramChatID = chatID(*p.DefaultTelegramChatID)
	}
	a, err = s.Accounts.CreateAccount(r.Context(), a)
	if errors.Is(err, domain.ErrConflict) {
		writeDetail(w, http.StatusBadRequest, "Email or username already registered")
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Logger.Info("account_registered", zap.String("account_id", string(a.ID)))
	writeJSON(w, http.StatusCreated, a)
}

// handleLogin accepts JSON {email, password} or an OAuth2 password form
// where username carries the email.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var email, password string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid form")
			return
		}
		email, password = r.PostForm.Get("username"), r.PostForm.Get("password")
	} else {
		var p struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decode(r, &p); err != nil {
			s.writeErr(w, r, err)
			return
		}
		email, password = p.Email, p.Password
	}
	email = strings.ToLower(strings.TrimSpace(email))

	a, err := s.Accounts.GetAccountByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.writeErr(w, r, err)
		return
	}
	if err != nil || !auth.CheckPassword(a.PasswordHash, password) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if !a.IsActive {
		writeDetail(w, http.StatusForbidden, "Inactive account")
		return
	}

	tok, exp, err := s.Tokens.Issue(a.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok, TokenType: "bearer", ExpiresAt: exp})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a, err := s.Accounts.GetAccount(r.Context(), caller(r))
	if errors.Is(err, domain.ErrNotFound) {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var p struct {
		DefaultTelegramChatID *string `json:"default_telegram_chat_id"`
	}
	if err := decode(r, &p); err != nil {
		s.writeErr(w, r, err)
		return
	}
	var patch domain.AccountPatch
	if p.DefaultTelegramChatID != nil {
		id := ""
		if c := chatID(*p.DefaultTelegramChatID); c != nil {
			id = *c
		}
		if id != "" && s.Chats != nil {
			if err := s.Chats.ValidateChat(r.Context(), id); err != nil {
				s.writeErr(w, r, domain.ValidationErrors{
					"default_telegram_chat_id": "chat is not reachable by the bot",
				})
				return
			}
		}
		patch.DefaultTelegramChatID = &id
	}
	a, err := s.Accounts.UpdateAccount(r.Context(), caller(r), patch)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	if err := s.unscheduleAll(r, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.Accounts.DeleteAccount(r.Context(), id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Logger.Info("account_deleted", zap.String("account_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

// unscheduleAll takes every target of the account off the scheduler before
// the rows disappear.
func (s *Server) unscheduleAll(r *http.Request, owner domain.AccountID) error {
	p := repo.ListParams{OwnerID: owner, PageSize: repo.MaxPageSize}.Normalized()
	for {
		page, total, err := s.Targets.List(r.Context(), p)
		if err != nil {
			return err
		}
		for _, t := range page {
			s.Monitor.Unschedule(t.ID)
		}
		if p.Offset()+len(page) >= total || len(page) == 0 {
			return nil
		}
		p.Page++
	}
}

func chatID(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n := notify.NormalizeChatID(raw)
	return &n
}
