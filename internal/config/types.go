package config

import "time"

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the top-level foliocache configuration, corresponding to .foliocache.yml.
type Config struct {
	Origin           string        `yaml:"origin" koanf:"origin"`
	Port             int           `yaml:"port" koanf:"port"`
	DataDir          string        `yaml:"data_dir" koanf:"data_dir"`
	CacheName        string        `yaml:"cache_name" koanf:"cache_name"`
	IgnoreSearch     bool          `yaml:"ignore_search" koanf:"ignore_search"`
	ImageExtensions  []string      `yaml:"image_extensions" koanf:"image_extensions"`
	ManifestPath     string        `yaml:"manifest_path" koanf:"manifest_path"`
	HomePaths        []string      `yaml:"home_paths" koanf:"home_paths"`
	PrefetchDelay    time.Duration `yaml:"prefetch_delay" koanf:"prefetch_delay"`
	PrefetchOnStart  bool          `yaml:"prefetch_on_start" koanf:"prefetch_on_start"`
	SkipWaiting      bool          `yaml:"skip_waiting" koanf:"skip_waiting"`
	// ClaimClients hands connected pages to a newly activated worker. It
	// decides which worker a page reports as its controller and whether a
	// waiting worker must wait for those pages to close. Proxied requests
	// carry no page identity, so they always go to the active worker.
	ClaimClients     bool          `yaml:"claim_clients" koanf:"claim_clients"`
	PruneStaleCaches bool          `yaml:"prune_stale_caches" koanf:"prune_stale_caches"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" koanf:"max_body_bytes"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" koanf:"fetch_timeout"`
	CORSAllowAll     bool          `yaml:"cors_allow_all" koanf:"cors_allow_all"`
	Log              LogConfig     `yaml:"log" koanf:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string    `yaml:"level" koanf:"level"`
	Format LogFormat `yaml:"format" koanf:"format"`
}
