package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Limits    LimitsConfig    `yaml:"limits"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Discover  DiscoverConfig  `yaml:"discover"`
	AI        AIConfig        `yaml:"ai"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Boards    []BoardSeed     `yaml:"boards"`
}

// ServerConfig holds listener and storage settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Engine selects the HTTP engine: "nethttp" (default) or "fasthttp".
	Engine string `yaml:"engine"`
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SecurityConfig holds operator keys and transport throttling.
type SecurityConfig struct {
	// AdminKeys authorize moderation endpoints via X-Admin-Key.
	AdminKeys []string `yaml:"admin_keys"`
	// IdentitySalt feeds the daily pseudonymous id hash.
	IdentitySalt string `yaml:"identity_salt"`
	RateLimit    struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// ActionLimit is one fixed-window budget for a client action.
type ActionLimit struct {
	Limit  int      `yaml:"limit"`
	Window Duration `yaml:"window"`
}

// LimitsConfig holds the persisted fixed-window budgets per action type.
type LimitsConfig struct {
	Post         ActionLimit `yaml:"post"`
	Thread       ActionLimit `yaml:"thread"`
	Report       ActionLimit `yaml:"report"`
	Generate     ActionLimit `yaml:"generate"`
	MaxPostBytes SizeBytes   `yaml:"max_post_bytes"`
	MaxTitleLen  int         `yaml:"max_title_len"`
}

// LifecycleConfig tunes the cull rules.
type LifecycleConfig struct {
	StillbornAge      Duration `yaml:"stillborn_age"`
	StillbornMinPosts int      `yaml:"stillborn_min_posts"`
	IdleCutoff        Duration `yaml:"idle_cutoff"`
}

// DiscoverConfig tunes the recommendation scorer.
type DiscoverConfig struct {
	HistoryCap int     `yaml:"history_cap"`
	ResultSize int     `yaml:"result_size"`
	Jitter     float64 `yaml:"jitter"`
}

// AIConfig controls the text-generation client and the reply scheduler.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	// APIKey may also come from ANONBOARD_AI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Models is the ordered fallback list; each is tried until one yields
	// non-empty output.
	Models []string `yaml:"models"`

	ReplyProbability   float64  `yaml:"reply_probability"`
	MaxRepliesPerThread int     `yaml:"max_replies_per_thread"`
	MaxRepliesPerBatch  int     `yaml:"max_replies_per_batch"`
	InitialRepliesMin   int     `yaml:"initial_replies_min"`
	InitialRepliesMax   int     `yaml:"initial_replies_max"`
	ContextPosts        int     `yaml:"context_posts"`
	AnonymousName       string  `yaml:"anonymous_name"`
	RequestTimeout      Duration `yaml:"request_timeout"`
	TaskTimeout         Duration `yaml:"task_timeout"`
}

// IngestTopic is one RSS feed polled by the scheduled runner.
type IngestTopic struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// IngestConfig controls scheduled thread generation from news feeds.
type IngestConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Cron             string        `yaml:"cron"`
	Topics           []IngestTopic `yaml:"topics"`
	MaxThreadsPerRun int           `yaml:"max_threads_per_run"`
	FetchTimeout     Duration      `yaml:"fetch_timeout"`
}

// BoardSeed describes a board created at startup if missing.
type BoardSeed struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64KB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration supporting YAML strings like "5s" or plain
// numbers interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
