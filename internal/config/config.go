package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // configured zones must resolve on minimal images

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"weekcal/internal/model"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// EventConfig is an event defined inline in the config file. Start and
// End use "2006-01-02 15:04" for timed events and "2006-01-02" for
// all-day ones, in the configured timezone.
type EventConfig struct {
	ID      string `yaml:"id" json:"id"`
	Summary string `yaml:"summary" json:"summary"`
	Start   string `yaml:"start" json:"start"`
	End     string `yaml:"end" json:"end"`
	AllDay  bool   `yaml:"all_day" json:"all_day"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as display zone (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday". It anchors week periods
	// and the default visible range.
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Period is the fetch unit: "month" (default) or "week".
	Period string `yaml:"period" json:"period"`

	// MinHour is the earliest displayed hour (0-23). Chip tops and bottoms
	// are minutes after it.
	MinHour int `yaml:"min_hour" json:"min_hour"`

	// RefreshCron is a cron-style schedule on which cached events are
	// dropped and refetched.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// VisibleDays is the default number of days in a layout request.
	VisibleDays int `yaml:"visible_days" json:"visible_days"`

	// CacheDir stores downloaded ICS bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	ICS    []ICSConfig   `yaml:"ics" json:"ics"`
	Events []EventConfig `yaml:"events" json:"events"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultRefreshCron = "*/15 * * * *"
	defaultVisibleDays = 7
	defaultCacheDir    = "/var/lib/weekcal/ics-cache"
)

// maxVisibleDaysByPeriod is the longest range that never spans more than
// two consecutive periods: the last day of one period plus the shortest
// next period.
var maxVisibleDaysByPeriod = map[string]int{
	"month": 29,
	"week":  8,
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   "monday",
		Period:      "month",
		MinHour:     0,
		RefreshCron: defaultRefreshCron,
		VisibleDays: defaultVisibleDays,
		CacheDir:    defaultCacheDir,
		LogLevel:    "info",
		ICS:         []ICSConfig{},
		Events:      []EventConfig{},
	}
}

// Normalize fills in missing values and clamps out-of-range ones so that
// partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	switch c.Period {
	case "month", "week":
	default:
		c.Period = "month"
	}
	if c.MinHour < 0 {
		c.MinHour = 0
	}
	if c.MinHour > 23 {
		c.MinHour = 23
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.VisibleDays <= 0 {
		c.VisibleDays = defaultVisibleDays
	}
	if limit := maxVisibleDaysByPeriod[c.Period]; c.VisibleDays > limit {
		c.VisibleDays = limit
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Events == nil {
		c.Events = []EventConfig{}
	}
}

// Validate reports settings that cannot be repaired by Normalize.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
	}
	for i, ev := range c.Events {
		if _, err := ev.toEvent(time.UTC); err != nil {
			return fmt.Errorf("config: events[%d]: %w", i, err)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday maps WeekStart to a time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// InlineEvents converts the configured events into model events in loc.
func (c *Config) InlineEvents(loc *time.Location) ([]model.Event, error) {
	out := make([]model.Event, 0, len(c.Events))
	for i, ec := range c.Events {
		ev, err := ec.toEvent(loc)
		if err != nil {
			return nil, fmt.Errorf("config: events[%d]: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (ec EventConfig) toEvent(loc *time.Location) (model.Event, error) {
	layout := "2006-01-02 15:04"
	if ec.AllDay {
		layout = time.DateOnly
	}
	start, err := time.ParseInLocation(layout, ec.Start, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	var end time.Time
	switch {
	case ec.End != "":
		if end, err = time.ParseInLocation(layout, ec.End, loc); err != nil {
			return model.Event{}, fmt.Errorf("end: %w", err)
		}
	case ec.AllDay:
		end = start.AddDate(0, 0, 1)
	default:
		end = start.Add(time.Hour)
	}

	uid := ec.ID
	if uid == "" {
		uid = "inline:" + ec.Start + ":" + ec.Summary
	}
	return model.Event{
		SourceID: "config",
		UID:      uid,
		Summary:  ec.Summary,
		AllDay:   ec.AllDay,
		Start:    start,
		End:      end,
	}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".weekcal-config-*.tmp")
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

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
