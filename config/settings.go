package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings     `json:"server"`
	Gateway   GatewaySettings    `json:"gateway"`
	Providers []ProviderSettings `json:"providers"`
	Monitor   MonitorSettings    `json:"monitor"`
	Log       LogConfig          `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// PIN protects the HTTP API. Empty means a fresh one is generated at
	// startup and printed to the log.
	PIN string `json:"pin"`
}

// GatewaySettings tunes the shared outbound HTTP layer.
type GatewaySettings struct {
	MaxAttempts       int `json:"maxAttempts"`
	AttemptTimeoutSec int `json:"attemptTimeoutSec"`
	RequestTimeoutSec int `json:"requestTimeoutSec"`
	MaxInFlight       int `json:"maxInFlight"`
	BaseDelayMs       int `json:"baseDelayMs"`
	MaxJitterMs       int `json:"maxJitterMs"`
}

// ProviderSettings seeds cookies for one provider at startup. Cookies set via
// the API afterwards take precedence; this block exists so a container restart
// does not lose credentials.
type ProviderSettings struct {
	Name      string            `json:"name"` // "douyin" | "weibo"
	Cookies   map[string]string `json:"cookies,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt,omitempty"`
	Enabled   bool              `json:"enabled"`
}

// MonitorSettings configures the feed polling loop.
type MonitorSettings struct {
	Enabled             bool               `json:"enabled"`
	PollIntervalSeconds int                `json:"pollIntervalSeconds"`
	Subscriptions       []SubscriptionSeed `json:"subscriptions,omitempty"`
}

// SubscriptionSeed restores watched feeds at startup.
type SubscriptionSeed struct {
	Provider string `json:"provider"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// ProviderByName returns the seed block for a provider, or nil.
func (s *Settings) ProviderByName(name string) *ProviderSettings {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range s.Providers {
		if strings.ToLower(s.Providers[i].Name) == name {
			return &s.Providers[i]
		}
	}
	return nil
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7777},
		Gateway: GatewaySettings{
			MaxAttempts:       3,
			AttemptTimeoutSec: 15,
			RequestTimeoutSec: 60,
			MaxInFlight:       4,
			BaseDelayMs:       500,
			MaxJitterMs:       250,
		},
		Providers: []ProviderSettings{
			{Name: "douyin", Cookies: map[string]string{}, Enabled: true},
			{Name: "weibo", Cookies: map[string]string{}, Enabled: true},
		},
		Monitor: MonitorSettings{
			Enabled:             true,
			PollIntervalSeconds: 300,
			Subscriptions:       []SubscriptionSeed{},
		},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
// Fields absent from an existing file keep their default values so upgrades
// never require hand-editing the config.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	// Backfill values a hand-edited file may have zeroed out.
	d := DefaultSettings()
	if s.Gateway.MaxAttempts <= 0 {
		s.Gateway.MaxAttempts = d.Gateway.MaxAttempts
	}
	if s.Gateway.AttemptTimeoutSec <= 0 {
		s.Gateway.AttemptTimeoutSec = d.Gateway.AttemptTimeoutSec
	}
	if s.Gateway.RequestTimeoutSec <= 0 {
		s.Gateway.RequestTimeoutSec = d.Gateway.RequestTimeoutSec
	}
	if s.Gateway.MaxInFlight <= 0 {
		s.Gateway.MaxInFlight = d.Gateway.MaxInFlight
	}
	if s.Gateway.BaseDelayMs <= 0 {
		s.Gateway.BaseDelayMs = d.Gateway.BaseDelayMs
	}
	if s.Monitor.PollIntervalSeconds <= 0 {
		s.Monitor.PollIntervalSeconds = d.Monitor.PollIntervalSeconds
	}
	if s.Log.File == "" {
		s.Log = d.Log
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
