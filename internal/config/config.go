package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"gebetskalender/internal/atomicfile"
)

// Fetcher kinds for SourceConfig.Fetcher.
const (
	FetcherHTTP     = "http"
	FetcherChromium = "chromium"
)

// envPrefix is prepended to every environment override key.
const envPrefix = "GEBETSKALENDER_"

// SourceConfig describes where the prayer times come from and how the
// embedded JSON payload is located inside the page.
type SourceConfig struct {
	// URL is the upstream page containing the embedded JSON blob.
	URL string `yaml:"url" validate:"required,url"`
	// MarkerID is the id attribute of the script element holding the JSON.
	MarkerID string `yaml:"marker_id" validate:"required"`
	// TimingsPath is the key path from the JSON root to the multi-day list.
	TimingsPath []string `yaml:"timings_path" validate:"required,min=1,dive,required"`
	// Provenance is cited in every event description.
	Provenance string `yaml:"provenance" validate:"required"`
	// Fetcher selects the transport: "http" (default) or "chromium".
	Fetcher string `yaml:"fetcher" validate:"oneof=http chromium"`
	// TimeoutSeconds bounds the fetch. Zero means no timeout.
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
	UserAgent      string `yaml:"user_agent"`
}

// Config is the top-level application configuration. It is built once at
// startup and handed to the extractor and the synthesizer.
type Config struct {
	// Timezone is the IANA zone in which "today" and all prayer times are
	// interpreted (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" validate:"required"`

	// ObligatoryPrayers are matched exactly (case-sensitive) against
	// upstream prayer names.
	ObligatoryPrayers []string `yaml:"obligatory_prayers" validate:"required,min=1,dive,required"`

	EventDurationMinutes int `yaml:"event_duration_minutes" validate:"gt=0"`

	OutputDir  string `yaml:"output_dir" validate:"required"`
	OutputFile string `yaml:"output_file" validate:"required"`

	CalendarName string `yaml:"calendar_name" validate:"required"`
	ProductID    string `yaml:"product_id" validate:"required"`

	Source SourceConfig `yaml:"source"`

	// StableUIDs derives event UIDs from prayer name and date only, so a
	// regenerated calendar keeps its identities. Off by default: every run
	// gets fresh random UIDs.
	StableUIDs bool `yaml:"stable_uids"`

	// Refresh is a cron-style schedule (e.g. "5 0 * * *") used in daemon
	// mode. Empty means one-shot.
	Refresh string `yaml:"refresh"`

	// Listen, if set, serves the generated calendar over HTTP in daemon mode.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:             "Europe/Berlin",
		ObligatoryPrayers:    []string{"Fajr", "Zuhr", "Asr", "Maghrib", "Isha"},
		EventDurationMinutes: 10,
		OutputDir:            "docs",
		OutputFile:           "gebetszeiten.ics",
		CalendarName:         "Muslimische Gebetszeiten",
		ProductID:            "//alislam.org//Gebetszeiten//DE",
		Source: SourceConfig{
			URL:         "https://www.alislam.org/adhan",
			MarkerID:    "__NEXT_DATA__",
			TimingsPath: []string{"props", "pageProps", "defaultSalatInfo", "multiDayTimings"},
			Provenance:  "alislam.org",
			Fetcher:     FetcherHTTP,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = def.Timezone
	}
	if len(c.ObligatoryPrayers) == 0 {
		c.ObligatoryPrayers = def.ObligatoryPrayers
	}
	if c.EventDurationMinutes <= 0 {
		c.EventDurationMinutes = def.EventDurationMinutes
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.OutputFile == "" {
		c.OutputFile = def.OutputFile
	}
	if c.CalendarName == "" {
		c.CalendarName = def.CalendarName
	}
	if c.ProductID == "" {
		c.ProductID = def.ProductID
	}
	if c.Source.URL == "" {
		c.Source.URL = def.Source.URL
	}
	if c.Source.MarkerID == "" {
		c.Source.MarkerID = def.Source.MarkerID
	}
	if len(c.Source.TimingsPath) == 0 {
		c.Source.TimingsPath = def.Source.TimingsPath
	}
	if c.Source.Provenance == "" {
		c.Source.Provenance = def.Source.Provenance
	}
	c.Source.Fetcher = strings.ToLower(strings.TrimSpace(c.Source.Fetcher))
	if c.Source.Fetcher == "" {
		c.Source.Fetcher = FetcherHTTP
	}
	if c.Source.TimeoutSeconds < 0 {
		c.Source.TimeoutSeconds = 0
	}
	c.Refresh = strings.TrimSpace(c.Refresh)
}

// Validate checks struct constraints, the time zone and the refresh schedule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	if c.Refresh != "" {
		if _, err := cron.ParseStandard(c.Refresh); err != nil {
			return fmt.Errorf("invalid config: refresh %q: %w", c.Refresh, err)
		}
	}
	if filepath.Base(c.OutputFile) != c.OutputFile {
		return fmt.Errorf("invalid config: output_file %q must be a bare file name", c.OutputFile)
	}
	return nil
}

// Location resolves Timezone. Validate should have been called first.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// EventDuration returns the fixed event length.
func (c *Config) EventDuration() time.Duration {
	return time.Duration(c.EventDurationMinutes) * time.Minute
}

// FetchTimeout returns the upstream timeout; zero means none.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// OutputPath is the full path of the calendar file.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// Load loads configuration from the given YAML path.
//
// An empty path or a missing file yields the defaults. Values are
// normalized but not validated; callers apply env overrides first and
// then call Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from GEBETSKALENDER_* environment variables.
// List values are comma separated.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("TIMEZONE", &c.Timezone)
	list("OBLIGATORY_PRAYERS", &c.ObligatoryPrayers)
	if err := num("EVENT_DURATION_MINUTES", &c.EventDurationMinutes); err != nil {
		return err
	}
	str("OUTPUT_DIR", &c.OutputDir)
	str("OUTPUT_FILE", &c.OutputFile)
	str("CALENDAR_NAME", &c.CalendarName)
	str("PRODUCT_ID", &c.ProductID)
	str("SOURCE_URL", &c.Source.URL)
	str("SOURCE_MARKER_ID", &c.Source.MarkerID)
	list("SOURCE_TIMINGS_PATH", &c.Source.TimingsPath)
	str("SOURCE_PROVENANCE", &c.Source.Provenance)
	str("SOURCE_FETCHER", &c.Source.Fetcher)
	if err := num("SOURCE_TIMEOUT_SECONDS", &c.Source.TimeoutSeconds); err != nil {
		return err
	}
	str("SOURCE_USER_AGENT", &c.Source.UserAgent)
	if v, ok := os.LookupEnv(envPrefix + "STABLE_UIDS"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %sSTABLE_UIDS: %w", envPrefix, err)
		}
		c.StableUIDs = b
	}
	str("REFRESH", &c.Refresh)
	str("LISTEN", &c.Listen)

	c.Normalize()
	return nil
}

// Save normalizes cfg and writes it to path as YAML, replacing any
// existing file atomically.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return atomicfile.Write(path, data, 0o644)
}
