package config

import (
	"path/filepath"
	"time"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = ".foliocache.yml"

// DefaultImageExtensions are the extensions classified as images.
var DefaultImageExtensions = []string{"png", "jpg", "jpeg", "gif", "webp", "svg"}

// DefaultHomePaths are path suffixes treated as the home page besides
// "/" and "/index.html".
var DefaultHomePaths = []string{"/my-portfolio"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Origin:           "http://localhost:8000",
		Port:             8080,
		DataDir:          ".foliocache",
		CacheName:        "work-images-v1",
		ImageExtensions:  DefaultImageExtensions,
		ManifestPath:     "work.json",
		HomePaths:        DefaultHomePaths,
		PrefetchDelay:    300 * time.Millisecond,
		SkipWaiting:      true,
		ClaimClients:     true,
		PruneStaleCaches: true,
		MaxBodyBytes:     32 << 20,
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}

// DatabasePath is where the cache database lives inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "foliocache.db")
}
