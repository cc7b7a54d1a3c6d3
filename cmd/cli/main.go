package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hamed0406/sitewatch/internal/domain"
)

var client = &http.Client{Timeout: 15 * time.Second}

func main() {
	_ = godotenv.Load()
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	api = strings.TrimRight(api, "/") + "/api/v1"

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	email := os.Getenv("SITEWATCH_EMAIL")
	if email == "" {
		email = prompt("Email: ")
	}
	password := os.Getenv("SITEWATCH_PASSWORD")
	if password == "" {
		password = prompt("Password: ")
	}
	token, err := login(api, email, password)
	if err != nil {
		fmt.Println("Login failed:", err)
		os.Exit(1)
	}

	raw := prompt("Enter a site URL to monitor (e.g., https://example.com): ")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil || !domain.IsValidHTTPURL(raw) {
		fmt.Println("Invalid URL.")
		os.Exit(1)
	}
	word := prompt("Word that must appear on the page: ")

	var t domain.Target
	status, err := call(http.MethodPost, api+"/websites", token, map[string]string{"url": raw, "valid_word": word}, &t)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	if status != http.StatusCreated {
		fmt.Println("API returned status:", status)
		os.Exit(1)
	}
	fmt.Printf("Added %s (id %s), checked every %ds. Follow it with GET /api/v1/websites/%s\n",
		t.URL, t.ID, t.CheckIntervalSeconds, t.ID)
}

func login(api, email, password string) (string, error) {
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	status, err := call(http.MethodPost, api+"/auth/login", "", map[string]string{"email": email, "password": password}, &tok)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || tok.AccessToken == "" {
		return "", fmt.Errorf("status %d", status)
	}
	return tok.AccessToken, nil
}

func call(method, u, token string, body, out any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(method, u, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
