package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"findash/internal/finance"
	"findash/internal/model"
)

// SourceConfig describes a single calendar source.
type SourceConfig struct {
	// ID is an internal identifier used for logging and diagnostics.
	ID string `yaml:"id" json:"id"`
	// Name is the label shown next to each event.
	Name string `yaml:"name" json:"name"`
	// Color is a CSS color used for the event marker.
	Color string `yaml:"color" json:"color"`
	// Kind is "remote-api" or "feed-url".
	Kind model.SourceKind `yaml:"kind" json:"kind"`
	// CalendarID addresses a remote-api calendar directly.
	CalendarID string `yaml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
	// URL is the iCal feed for feed-url sources, or an embed/subscription
	// URL carrying the calendar ID for remote-api sources.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Timezone overrides the default zone for this source's events.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled reports whether the source should be fetched.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ChatConfig tunes the chat relay.
type ChatConfig struct {
	Model string `yaml:"model" json:"model"`
	// BaseURL points at an OpenAI-compatible API. Empty uses the default.
	BaseURL        string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	// Temperature defaults to 0.7 when omitted; an explicit 0 is kept.
	Temperature    *float32 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens      int      `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SamplingTemperature resolves Temperature, falling back to the default.
func (c ChatConfig) SamplingTemperature() float32 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for the week window and day keys.
	Timezone string `yaml:"timezone" json:"timezone"`

	// FetchTimeoutSeconds bounds each source fetch.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	// ProbeCron schedules the background source health probe. "off"
	// disables it.
	ProbeCron string `yaml:"probe_cron" json:"probe_cron"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Sources is the list of calendars to aggregate.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	Chat ChatConfig `yaml:"chat" json:"chat"`

	// Finance holds the figures for the finance sections. Nil renders the
	// zeroed placeholder.
	Finance *finance.Snapshot `yaml:"finance,omitempty" json:"finance,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "America/New_York"
	defaultFetchTimeout = 15
	defaultProbeCron    = "*/30 * * * *"
	defaultChatModel    = "gpt-4-turbo-preview"
	defaultTemperature  = 0.7
	maxTemperature      = 2
	defaultMaxTokens    = 500
	defaultChatTimeout  = 30

	// ProbeOff disables the background probe.
	ProbeOff = "off"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              defaultListen,
		Timezone:            defaultTimezone,
		FetchTimeoutSeconds: defaultFetchTimeout,
		ProbeCron:           defaultProbeCron,
		LogLevel:            "info",
		LogFormat:           "text",
		Sources:             []SourceConfig{},
		Chat: ChatConfig{
			Model:          defaultChatModel,
			Temperature:    ptr(float32(defaultTemperature)),
			MaxTokens:      defaultMaxTokens,
			TimeoutSeconds: defaultChatTimeout,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = defaultFetchTimeout
	}
	if c.ProbeCron == "" {
		c.ProbeCron = defaultProbeCron
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = model.SourceKind(strings.ToLower(strings.TrimSpace(string(s.Kind))))
		if s.ID == "" {
			s.ID = fmt.Sprintf("source-%d", i+1)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Color == "" {
			s.Color = "#4285f4"
		}
	}
	if c.Chat.Model == "" {
		c.Chat.Model = defaultChatModel
	}
	if c.Chat.Temperature == nil {
		c.Chat.Temperature = ptr(float32(defaultTemperature))
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = defaultMaxTokens
	}
	if c.Chat.TimeoutSeconds <= 0 {
		c.Chat.TimeoutSeconds = defaultChatTimeout
	}
}

// Validate checks values that cannot be defaulted. Individual source
// problems are not reported here; they surface as per-source fetch
// failures so one bad entry cannot take down the dashboard.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	if t := c.Chat.SamplingTemperature(); t < 0 || t > maxTemperature {
		return fmt.Errorf("config: chat temperature %v out of range [0, %v]", t, maxTemperature)
	}
	if c.ProbeCron != ProbeOff {
		if _, err := cron.ParseStandard(c.ProbeCron); err != nil {
			return fmt.Errorf("config: invalid probe_cron %q: %w", c.ProbeCron, err)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// Location resolves Timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) ChatTimeout() time.Duration {
	return time.Duration(c.Chat.TimeoutSeconds) * time.Second
}

// FinanceSnapshot returns the configured figures or the placeholder.
func (c *Config) FinanceSnapshot() finance.Snapshot {
	if c.Finance == nil {
		return finance.Placeholder()
	}
	return *c.Finance
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes, normalizes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".findash-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
