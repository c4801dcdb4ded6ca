package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseConfigFlags parses command-line flags.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// EffectiveConfigResult is the merged view of file, env and flags that the
// rest of the app consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "defaults"
}

// LoadEffective merges the config file (if present), env overrides and
// flags, applying defaults last. Flags win over file; env wins over file
// for secrets.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfgPath := flags.Config
	if env := os.Getenv("ANONBOARD_CONFIG"); env != "" && !flags.Set["config"] {
		cfgPath = env
	}

	cfg := &Config{}
	source := "defaults"
	if b, err := os.ReadFile(cfgPath); err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return EffectiveConfigResult{}, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
		source = "config"
	} else if !os.IsNotExist(err) {
		return EffectiveConfigResult{}, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	addr := cfg.Addr()
	if flags.Set["addr"] {
		addr = flags.Addr
		source = "flags"
	}
	dbPath := cfg.Server.DBPath
	if dbPath == "" || flags.Set["db"] {
		dbPath = flags.DB
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}

// Addr joins the configured address and port into a listen string.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANONBOARD_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("ANONBOARD_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("ANONBOARD_IDENTITY_SALT"); v != "" {
		cfg.Security.IdentitySalt = v
	}
	if v := os.Getenv("ANONBOARD_LOG_LEVEL"); v != "" && cfg.Logging.Level == "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Engine == "" {
		cfg.Server.Engine = "nethttp"
	}
	if cfg.Security.IdentitySalt == "" {
		cfg.Security.IdentitySalt = "anonboard-dev-salt"
	}
	if cfg.Security.RateLimit.RPS <= 0 {
		cfg.Security.RateLimit.RPS = 5
	}
	if cfg.Security.RateLimit.Burst <= 0 {
		cfg.Security.RateLimit.Burst = 10
	}

	defLimit := func(l *ActionLimit, limit int, window time.Duration) {
		if l.Limit <= 0 {
			l.Limit = limit
		}
		if l.Window.Duration() <= 0 {
			l.Window = Duration(window)
		}
	}
	defLimit(&cfg.Limits.Post, 1, 5*time.Second)
	defLimit(&cfg.Limits.Thread, 1, 60*time.Second)
	defLimit(&cfg.Limits.Report, 1, 10*time.Second)
	defLimit(&cfg.Limits.Generate, 1, 60*time.Second)
	if cfg.Limits.MaxPostBytes <= 0 {
		cfg.Limits.MaxPostBytes = 16 * 1024
	}
	if cfg.Limits.MaxTitleLen <= 0 {
		cfg.Limits.MaxTitleLen = 120
	}

	if cfg.Lifecycle.StillbornAge.Duration() <= 0 {
		cfg.Lifecycle.StillbornAge = Duration(24 * time.Hour)
	}
	if cfg.Lifecycle.StillbornMinPosts <= 0 {
		cfg.Lifecycle.StillbornMinPosts = 5
	}
	if cfg.Lifecycle.IdleCutoff.Duration() <= 0 {
		cfg.Lifecycle.IdleCutoff = Duration(7 * 24 * time.Hour)
	}

	if cfg.Discover.HistoryCap <= 0 {
		cfg.Discover.HistoryCap = 20
	}
	if cfg.Discover.ResultSize <= 0 {
		cfg.Discover.ResultSize = 12
	}
	if cfg.Discover.Jitter <= 0 {
		cfg.Discover.Jitter = 0.3
	}

	if len(cfg.AI.Models) == 0 {
		cfg.AI.Models = []string{"gpt-4o-mini", "gpt-4o"}
	}
	if cfg.AI.ReplyProbability <= 0 {
		cfg.AI.ReplyProbability = 0.7
	}
	if cfg.AI.MaxRepliesPerThread <= 0 {
		cfg.AI.MaxRepliesPerThread = 25
	}
	if cfg.AI.MaxRepliesPerBatch <= 0 {
		cfg.AI.MaxRepliesPerBatch = 3
	}
	if cfg.AI.InitialRepliesMin <= 0 {
		cfg.AI.InitialRepliesMin = 5
	}
	if cfg.AI.InitialRepliesMax < cfg.AI.InitialRepliesMin {
		cfg.AI.InitialRepliesMax = 7
	}
	if cfg.AI.ContextPosts <= 0 {
		cfg.AI.ContextPosts = 10
	}
	if cfg.AI.AnonymousName == "" {
		cfg.AI.AnonymousName = "Anonymous"
	}
	if cfg.AI.RequestTimeout.Duration() <= 0 {
		cfg.AI.RequestTimeout = Duration(8 * time.Second)
	}
	if cfg.AI.TaskTimeout.Duration() <= 0 {
		cfg.AI.TaskTimeout = Duration(2 * time.Minute)
	}

	if cfg.Ingest.Cron == "" {
		cfg.Ingest.Cron = "0 * * * *"
	}
	if cfg.Ingest.MaxThreadsPerRun <= 0 {
		cfg.Ingest.MaxThreadsPerRun = 3
	}
	if cfg.Ingest.FetchTimeout.Duration() <= 0 {
		cfg.Ingest.FetchTimeout = Duration(8 * time.Second)
	}
}
