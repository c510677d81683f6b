package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"caucion-alerts/internal/config"
)

func testConfig(t *testing.T, iolURL, telegramURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.IOL.BaseURL = iolURL
	cfg.IOL.Username = "user"
	cfg.IOL.Password = "pass"
	cfg.IOL.RequestTimeout = 2 * time.Second
	cfg.Telegram = config.TelegramConfig{
		Enabled:  true,
		BotToken: "test-token",
		ChatID:   "42",
		APIBase:  telegramURL,
	}
	cfg.State.Path = filepath.Join(t.TempDir(), "alert_state.json")
	cfg.State.LockTimeout = time.Second
	cfg.Alerts = []config.AlertConfig{
		{Days: 1, Type: "colocador", Condition: ">=", TargetRate: 30},
	}
	return cfg
}

func TestCheckSendsErrorNotification(t *testing.T) {
	var texts []string
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode telegram payload: %v", err)
		}
		texts = append(texts, payload["text"])
		w.Write([]byte(`{"ok":true}`))
	}))
	defer tg.Close()

	iol := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer iol.Close()

	a := NewApp(testConfig(t, iol.URL, tg.URL), zerolog.Nop())
	if err := a.Check(context.Background()); err == nil {
		t.Fatal("expected check to fail while the quote service is down")
	}

	if len(texts) != 1 {
		t.Fatalf("expected 1 error notification, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "Error") {
		t.Fatalf("unexpected notification body: %q", texts[0])
	}
}

func TestCheckFailureWithTelegramDisabled(t *testing.T) {
	iol := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer iol.Close()

	cfg := testConfig(t, iol.URL, "")
	cfg.Telegram.Enabled = false

	a := NewApp(cfg, zerolog.Nop())
	if err := a.Check(context.Background()); err == nil {
		t.Fatal("expected check to fail while the quote service is down")
	}
}

func TestPruneRequiresCutoff(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())
	if err := a.Prune(context.Background(), PruneOptions{}); err == nil {
		t.Fatal("expected an error when no cutoff is given")
	}
}

func TestPruneRequiresDatabase(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())
	err := a.Prune(context.Background(), PruneOptions{Before: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "database") {
		t.Fatalf("expected a database-not-configured error, got %v", err)
	}
}
