package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultRelay()) {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.SeedItems, []string{"lorem"}) {
		t.Fatalf("unexpected seed items: %+v", cfg.SeedItems)
	}
}

func TestLoadRelayOverrides(t *testing.T) {
	path := writeConfig(t, `
addr = "0.0.0.0:9090"
seed_items = ["one", "  ", " two "]
journal_path = "relay.sqlite3"
render_history = true
log_level = "DEBUG"
`)
	cfg, err := LoadRelay(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9090" {
		t.Fatalf("unexpected addr: %q", cfg.Addr)
	}
	if !reflect.DeepEqual(cfg.SeedItems, []string{"one", "two"}) {
		t.Fatalf("unexpected seed items: %+v", cfg.SeedItems)
	}
	if cfg.JournalPath != "relay.sqlite3" || !cfg.RenderHistory {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected level: %v", cfg.LogLevel)
	}
	if cfg.SendQueue != 32 || cfg.DumpDir != "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRelayEmptySeed(t *testing.T) {
	cfg, err := LoadRelay(writeConfig(t, `seed_items = []`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.SeedItems) != 0 {
		t.Fatalf("unexpected seed items: %+v", cfg.SeedItems)
	}
}

func TestLoadRelayRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key": `adress = "x"`,
		"bad level":   `log_level = "loud"`,
		"zero queue":  `send_queue = 0`,
		"empty addr":  `addr = ""`,
		"bad toml":    `addr = `,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadRelay(writeConfig(t, body)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	path := writeConfig(t, `
relay_url = "wss://relay.example:443/sync"
actor_id = "0a0b"
reconnect_interval = "250ms"
`)
	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RelayURL != "wss://relay.example:443/sync" || cfg.ActorID != "0a0b" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ReconnectInterval != 250*time.Millisecond {
		t.Fatalf("unexpected interval: %v", cfg.ReconnectInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected level: %v", cfg.LogLevel)
	}
}

func TestLoadClientRejects(t *testing.T) {
	for name, body := range map[string]string{
		"http url":      `relay_url = "http://127.0.0.1:8080/sync"`,
		"bad interval":  `reconnect_interval = "soon"`,
		"zero interval": `reconnect_interval = "0s"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadClient(writeConfig(t, body))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if strings.TrimSpace(err.Error()) == "" {
				t.Fatalf("empty error message")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" Warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", raw, got, err)
		}
	}
}
