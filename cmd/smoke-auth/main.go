package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Smoke test for a running authcore-api: logs in, refreshes, then replays
// the consumed refresh token and expects rejection.
func main() {
	base := os.Getenv("AUTHCORE_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := envOr("AUTHCORE_SMOKE_EMAIL", "alice@example.com")
	secret := envOr("AUTHCORE_SMOKE_SECRET", "password")
	clientID := envOr("AUTHCORE_SMOKE_CLIENT", "app1")

	client := &http.Client{Timeout: 5 * time.Second}

	login := postJSON(client, base+"/token", map[string]any{
		"email":     email,
		"secret":    secret,
		"client_id": clientID,
	})
	if login.status != http.StatusOK {
		log.Fatalf("login: unexpected status %d: %s", login.status, login.body)
	}
	firstRefresh := login.field("refresh_token")
	log.Printf("login ok, session %s", login.field("sid"))

	refresh := postJSON(client, base+"/token/refresh", map[string]any{
		"refresh_token": firstRefresh,
		"client_id":     clientID,
	})
	if refresh.status != http.StatusOK {
		log.Fatalf("refresh: unexpected status %d: %s", refresh.status, refresh.body)
	}
	log.Println("refresh ok")

	replay := postJSON(client, base+"/token/refresh", map[string]any{
		"refresh_token": firstRefresh,
		"client_id":     clientID,
	})
	if replay.status != http.StatusUnauthorized {
		log.Fatalf("replay: expected 401, got %d: %s", replay.status, replay.body)
	}
	log.Println("replayed refresh token rejected")

	fmt.Println("smoke ok")
}

type result struct {
	status int
	body   string
	parsed map[string]any
}

func (r result) field(name string) string {
	v, _ := r.parsed[name].(string)
	return v
}

func postJSON(client *http.Client, url string, body map[string]any) result {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		log.Fatalf("read response: %v", err)
	}
	parsed := map[string]any{}
	_ = json.Unmarshal(buf.Bytes(), &parsed)
	return result{status: resp.StatusCode, body: buf.String(), parsed: parsed}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
