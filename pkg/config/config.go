// Package config loads relay and client settings from TOML files. Keys that are absent keep their defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Relay struct {
	Addr          string
	SeedItems     []string
	JournalPath   string
	DumpDir       string
	RenderHistory bool
	LogLevel      slog.Level
	SendQueue     int
}

type Client struct {
	RelayURL          string
	ActorID           string
	ReconnectInterval time.Duration
	SendQueue         int
	LogLevel          slog.Level
}

func DefaultRelay() Relay {
	return Relay{
		Addr:      "localhost:8080",
		SeedItems: []string{"lorem"},
		LogLevel:  slog.LevelInfo,
		SendQueue: 32,
	}
}

func DefaultClient() Client {
	return Client{
		RelayURL:          "ws://127.0.0.1:8080/sync",
		ReconnectInterval: time.Second,
		SendQueue:         32,
		LogLevel:          slog.LevelInfo,
	}
}

type relayFile struct {
	Addr          string   `toml:"addr"`
	SeedItems     []string `toml:"seed_items"`
	JournalPath   string   `toml:"journal_path"`
	DumpDir       string   `toml:"dump_dir"`
	RenderHistory bool     `toml:"render_history"`
	LogLevel      string   `toml:"log_level"`
	SendQueue     int      `toml:"send_queue"`
}

type clientFile struct {
	RelayURL          string `toml:"relay_url"`
	ActorID           string `toml:"actor_id"`
	ReconnectInterval string `toml:"reconnect_interval"`
	SendQueue         int    `toml:"send_queue"`
	LogLevel          string `toml:"log_level"`
}

// LoadRelay reads path over the defaults. An empty path returns the defaults.
func LoadRelay(path string) (Relay, error) {
	cfg := DefaultRelay()
	if path == "" {
		return cfg, nil
	}

	var raw relayFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Relay{}, fmt.Errorf("failed to load relay config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Relay{}, fmt.Errorf("unknown relay config keys: %v", undecoded)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("seed_items") {
		cfg.SeedItems = normalizeItems(raw.SeedItems)
	}
	if meta.IsDefined("journal_path") {
		cfg.JournalPath = strings.TrimSpace(raw.JournalPath)
	}
	if meta.IsDefined("dump_dir") {
		cfg.DumpDir = strings.TrimSpace(raw.DumpDir)
	}
	if meta.IsDefined("render_history") {
		cfg.RenderHistory = raw.RenderHistory
	}
	if meta.IsDefined("log_level") {
		if cfg.LogLevel, err = ParseLevel(raw.LogLevel); err != nil {
			return Relay{}, err
		}
	}
	if meta.IsDefined("send_queue") {
		cfg.SendQueue = raw.SendQueue
	}
	return cfg, cfg.Validate()
}

func (c Relay) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.SendQueue < 1 {
		return fmt.Errorf("send_queue must be positive, got %d", c.SendQueue)
	}
	return nil
}

// LoadClient reads path over the defaults. An empty path returns the defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("failed to load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Client{}, fmt.Errorf("unknown client config keys: %v", undecoded)
	}

	if meta.IsDefined("relay_url") {
		cfg.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("actor_id") {
		cfg.ActorID = strings.TrimSpace(raw.ActorID)
	}
	if meta.IsDefined("reconnect_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReconnectInterval))
		if err != nil {
			return Client{}, fmt.Errorf("parse reconnect_interval: %w", err)
		}
		cfg.ReconnectInterval = d
	}
	if meta.IsDefined("send_queue") {
		cfg.SendQueue = raw.SendQueue
	}
	if meta.IsDefined("log_level") {
		if cfg.LogLevel, err = ParseLevel(raw.LogLevel); err != nil {
			return Client{}, err
		}
	}
	return cfg, cfg.Validate()
}

func (c Client) Validate() error {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return fmt.Errorf("parse relay_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay_url must be a ws or wss url, got %q", c.RelayURL)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect_interval must be positive, got %s", c.ReconnectInterval)
	}
	if c.SendQueue < 1 {
		return fmt.Errorf("send_queue must be positive, got %d", c.SendQueue)
	}
	return nil
}

// ParseLevel accepts debug, info, warn or error in any case.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

func normalizeItems(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
