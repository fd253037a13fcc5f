package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// wizardAnswers holds what the user typed into the wizard.
type wizardAnswers struct {
	Origin          string
	Port            string
	CacheName       string
	ManifestPath    string
	ImageExtensions string
	PrefetchOnStart bool
}

// config applies the answers on top of DefaultConfig.
func (a wizardAnswers) config() (*Config, error) {
	cfg := DefaultConfig()
	cfg.Origin = strings.TrimSpace(a.Origin)
	if a.Port != "" {
		port, err := strconv.Atoi(strings.TrimSpace(a.Port))
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", a.Port, err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(a.CacheName); v != "" {
		cfg.CacheName = v
	}
	if v := strings.TrimSpace(a.ManifestPath); v != "" {
		cfg.ManifestPath = v
	}
	if exts := splitAndTrim(a.ImageExtensions); len(exts) > 0 {
		cfg.ImageExtensions = exts
	}
	cfg.PrefetchOnStart = a.PrefetchOnStart
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to foliocache! Let's configure your site.")
	fmt.Println()

	defaults := DefaultConfig()
	var (
		a   wizardAnswers
		err error
	)

	// 1. Origin.
	originPrompt := promptui.Prompt{
		Label:   "Portfolio origin URL",
		Default: defaults.Origin,
		Validate: func(s string) error {
			u, err := url.Parse(strings.TrimSpace(s))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("enter an http(s) URL")
			}
			return nil
		},
	}
	if a.Origin, err = originPrompt.Run(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	// 2. Listen port.
	portPrompt := promptui.Prompt{
		Label:   "Proxy listen port",
		Default: strconv.Itoa(defaults.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < 0 || n > 65535 {
				return fmt.Errorf("enter a port between 0 and 65535")
			}
			return nil
		},
	}
	if a.Port, err = portPrompt.Run(); err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}

	// 3. Cache name.
	cachePrompt := promptui.Prompt{
		Label:   "Image cache name (change it to invalidate old images)",
		Default: defaults.CacheName,
	}
	if a.CacheName, err = cachePrompt.Run(); err != nil {
		return nil, fmt.Errorf("cache name: %w", err)
	}

	// 4. Manifest.
	manifestPrompt := promptui.Prompt{
		Label:   "Work manifest path",
		Default: defaults.ManifestPath,
	}
	if a.ManifestPath, err = manifestPrompt.Run(); err != nil {
		return nil, fmt.Errorf("manifest path: %w", err)
	}

	// 5. Extensions.
	extPrompt := promptui.Prompt{
		Label:   "Image extensions (comma-separated)",
		Default: strings.Join(defaults.ImageExtensions, ","),
	}
	if a.ImageExtensions, err = extPrompt.Run(); err != nil {
		return nil, fmt.Errorf("image extensions: %w", err)
	}

	// 6. Warm on start.
	warmPrompt := promptui.Select{
		Label: "Prefetch manifest images when the proxy starts?",
		Items: []string{"no", "yes"},
	}
	idx, _, err := warmPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("prefetch on start: %w", err)
	}
	a.PrefetchOnStart = idx == 1

	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
