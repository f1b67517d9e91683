package config

import (
	"fmt"
	"time"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

// Defaults applied to fields left unset by the file and environment.
const (
	DefaultPDS          = "https://bsky.social"
	DefaultJetstreamURL = "wss://jetstream1.us-east.bsky.network/subscribe"
	DefaultMaxAgeDays   = 30
	DefaultPageLimit    = 50
	DefaultMaxAttempts  = 4
	DefaultBaseBackoff  = time.Second
	DefaultMaxBackoff   = 10 * time.Second
	DefaultBackupFile   = "deleted_posts_backup.jsonl"
)

const dateLayout = "2006-01-02"

// Config holds all configuration for the sweep tool.
type Config struct {
	// Handle is the account to sweep, e.g. "alice.bsky.social".
	Handle string `yaml:"handle"`

	// Password is an app password for the account. Prefer the
	// BSKYSWEEP_PASSWORD environment variable over writing it here.
	Password string `yaml:"password"`

	// PDS is the XRPC endpoint posts are listed from and deleted at.
	PDS string `yaml:"pds"`

	// JetstreamURL is the WebSocket endpoint the watch command tails.
	JetstreamURL string `yaml:"jetstream_url"`

	// Schedule is an optional cron expression for repeated sweeps.
	Schedule string `yaml:"schedule"`

	Sweep  SweepConfig  `yaml:"sweep"`
	Output OutputConfig `yaml:"output"`
	Retry  RetryConfig  `yaml:"retry"`
}

// SweepConfig selects which posts a sweep touches.
type SweepConfig struct {
	// MaxAgeDays matches posts older than this many days. Zero
	// disables the age filter entirely.
	MaxAgeDays int `yaml:"max_age_days"`

	// After and Before bound the creation time, inclusive. Either a
	// bare YYYY-MM-DD date or a full RFC 3339 timestamp.
	After  string `yaml:"after"`
	Before string `yaml:"before"`

	// Match lists keywords a post must contain. With Regex set the
	// entries are regular expressions instead of literal substrings.
	Match []string `yaml:"match"`
	Regex bool     `yaml:"regex"`

	IncludeReplies bool `yaml:"include_replies"`
	IncludeReposts bool `yaml:"include_reposts"`

	// PageLimit is the number of posts requested per feed page, 1-100.
	PageLimit int `yaml:"page_limit"`
}

// OutputConfig names the files a sweep writes.
type OutputConfig struct {
	// BackupFile is the JSONL file posts are appended to before
	// deletion.
	BackupFile string `yaml:"backup_file"`

	// RecordLog is a human-readable log of matched posts. Empty picks
	// preview_log.txt or deleted_posts_log.txt depending on the mode.
	RecordLog string `yaml:"record_log"`

	// ArchiveDB is the SQLite file recording run history. Empty
	// disables the archive.
	ArchiveDB string `yaml:"archive_db"`
}

// RetryConfig tunes the per-post deletion retry loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with every tunable at its default value.
func Default() *Config {
	return &Config{
		PDS:          DefaultPDS,
		JetstreamURL: DefaultJetstreamURL,
		Sweep: SweepConfig{
			MaxAgeDays: DefaultMaxAgeDays,
			PageLimit:  DefaultPageLimit,
		},
		Output: OutputConfig{
			BackupFile: DefaultBackupFile,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseBackoff: DefaultBaseBackoff,
			MaxBackoff:  DefaultMaxBackoff,
		},
	}
}

// Validate checks the configuration after all sources are merged.
func (c *Config) Validate() error {
	if c.PDS == "" {
		return fmt.Errorf("pds endpoint is required")
	}
	if c.JetstreamURL == "" {
		return fmt.Errorf("jetstream url is required")
	}
	if c.Sweep.PageLimit < 1 || c.Sweep.PageLimit > 100 {
		return fmt.Errorf("page limit must be between 1 and 100, got %d", c.Sweep.PageLimit)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseBackoff <= 0 || c.Retry.MaxBackoff <= 0 {
		return fmt.Errorf("retry backoffs must be positive")
	}
	if c.Retry.BaseBackoff > c.Retry.MaxBackoff {
		return fmt.Errorf("retry base backoff %s exceeds max backoff %s", c.Retry.BaseBackoff, c.Retry.MaxBackoff)
	}
	if c.Sweep.After != "" {
		if _, err := ParseTime(c.Sweep.After); err != nil {
			return fmt.Errorf("invalid after date: %w", err)
		}
	}
	if c.Sweep.Before != "" {
		if _, err := ParseTimeEnd(c.Sweep.Before); err != nil {
			return fmt.Errorf("invalid before date: %w", err)
		}
	}
	return nil
}

// SweepCriteria converts the sweep section into filter criteria.
func (c *Config) SweepCriteria() (domain.CriteriaConfig, error) {
	cfg := domain.CriteriaConfig{
		Patterns:       c.Sweep.Match,
		UseRegex:       c.Sweep.Regex,
		IncludeReplies: c.Sweep.IncludeReplies,
		IncludeReposts: c.Sweep.IncludeReposts,
	}
	if c.Sweep.MaxAgeDays > 0 {
		cfg.MaxAge = time.Duration(c.Sweep.MaxAgeDays) * 24 * time.Hour
	}
	if c.Sweep.After != "" {
		t, err := ParseTime(c.Sweep.After)
		if err != nil {
			return domain.CriteriaConfig{}, fmt.Errorf("invalid after date: %w", err)
		}
		cfg.After = t
	}
	if c.Sweep.Before != "" {
		t, err := ParseTimeEnd(c.Sweep.Before)
		if err != nil {
			return domain.CriteriaConfig{}, fmt.Errorf("invalid before date: %w", err)
		}
		cfg.Before = t
	}
	return cfg, nil
}

// ParseTime accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date.
// Bare dates resolve to the start of the day in UTC.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD date or RFC 3339 timestamp", value)
	}
	return t, nil
}

// ParseTimeEnd is ParseTime with bare dates resolving to the last
// instant of the day, so an inclusive upper bound covers the whole day.
func ParseTimeEnd(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD date or RFC 3339 timestamp", value)
	}
	return t.Add(24*time.Hour - time.Nanosecond), nil
}
