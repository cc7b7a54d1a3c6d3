package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram delivers alerts through the Bot API.
type Telegram struct {
	Token   string
	BaseURL string
	Client  *http.Client
}

func NewTelegram(token, baseURL string) *Telegram {
	if token == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &Telegram{
		Token:   token,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NormalizeChatID restores the minus sign users drop when copying
// supergroup ids ("100..." becomes "-100...").
func NormalizeChatID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "100") {
		return "-" + id
	}
	return id
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, m Message) error {
	if t == nil || t.Token == "" {
		return errors.New("telegram disabled")
	}
	if strings.TrimSpace(m.ChatID) == "" {
		return fmt.Errorf("telegram: %w", ErrNoDestination)
	}
	body, _ := json.Marshal(telegramMessage{
		ChatID:                NormalizeChatID(m.ChatID),
		Text:                  m.Text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

// ValidateChat asks the Bot API whether the bot can see the chat.
func (t *Telegram) ValidateChat(ctx context.Context, chatID string) error {
	if t == nil || t.Token == "" {
		return errors.New("telegram disabled")
	}
	q := url.Values{"chat_id": {NormalizeChatID(chatID)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("getChat")+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	return t.do(req)
}

func (t *Telegram) endpoint(method string) string {
	return t.BaseURL + "/bot" + t.Token + "/" + method
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.Client.Do(req)
	if err != nil {
		// the URL carries the bot token
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	var reply telegramReply
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply)
	if resp.StatusCode/100 != 2 || !reply.OK {
		return fmt.Errorf("telegram %d: %s", resp.StatusCode, reply.Description)
	}
	return nil
}
