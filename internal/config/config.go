// Package config loads the workflow configuration from YAML and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	navigator "github.com/CbIPOKGIT/turnstile-navigator"
	"github.com/CbIPOKGIT/turnstile-navigator/orchestrator"
	"github.com/CbIPOKGIT/turnstile-navigator/solver"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_WAIT_FOR   = "js:() => document.querySelectorAll('h1').length === 0"
	DEFAULT_CACHE_MODE = "bypass"
)

// Environment variables
const (
	ENV_API_KEY            = "CAPTCHA_API_KEY"
	ENV_ANTICAPTCHA_KEY    = "ANTICAPTCHA_KEY"
	ENV_PROVIDER           = "CAPTCHA_PROVIDER"
	ENV_CHALLENGE_TYPE     = "CHALLENGE_TYPE"
	ENV_SITE_KEY           = "CHALLENGE_SITE_KEY"
	ENV_URL                = "CHALLENGE_URL"
	ENV_PROFILE_DIR        = "BROWSER_PROFILE_DIR"
	ENV_PROXY              = "BROWSER_PROXY"
	ENV_CHALLENGE_SELECTOR = "CLOUDFLARE_CHALLENGE_SELECTOR"
)

type Config struct {
	Solver    SolverConfig     `yaml:"solver"`
	Challenge solver.Challenge `yaml:"challenge"`
	Browser   navigator.Model  `yaml:"browser"`
	Crawl     CrawlConfig      `yaml:"crawl"`
	Extension ExtensionConfig  `yaml:"extension"`
	Log       LogConfig        `yaml:"log"`
}

type SolverConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`

	// Overrides provider URL
	BaseURL string `yaml:"base_url"`

	// Proxy for solver API requests
	APIProxy string `yaml:"api_proxy"`

	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxAttempts        int           `yaml:"max_attempts"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	AntiCaptchaTimeout time.Duration `yaml:"anticaptcha_timeout"`
}

type CrawlConfig struct {
	URL       string `yaml:"url"`
	SessionID string `yaml:"session_id"`
	CacheMode string `yaml:"cache_mode"`

	// js:<code> or css:<selector>
	WaitFor     string        `yaml:"wait_for"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	ResponseSelector  string `yaml:"response_selector"`
	SubmitSelector    string `yaml:"submit_selector"`
	Callback          string `yaml:"callback"`
	DiscoverSiteKey   bool   `yaml:"discover_site_key"`
	ChallengeSelector string `yaml:"challenge_selector"`
}

type ExtensionConfig struct {
	ProfileDir string        `yaml:"profile_dir"`
	Delay      time.Duration `yaml:"delay"`

	// Optional completion predicate, js:<code> or css:<selector>
	Until string `yaml:"until"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Verbose bool   `yaml:"verbose"`
}

func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Provider:     solver.ProviderCapSolver.Name,
			PollInterval: solver.DEFAULT_POLL_INTERVAL,
			MaxAttempts:  solver.DEFAULT_MAX_ATTEMPTS,
		},
		Challenge: solver.Challenge{
			Type: solver.AntiTurnstileTaskProxyLess,
		},
		Browser: navigator.Model{
			Engine:            navigator.ENGINE_ROD,
			NavigationTimeout: navigator.DEFAULT_BROWSER_NAVIGATION_TIMEOUT,
		},
		Crawl: CrawlConfig{
			SessionID:   orchestrator.DEFAULT_SESSION_ID,
			CacheMode:   DEFAULT_CACHE_MODE,
			WaitFor:     DEFAULT_WAIT_FOR,
			WaitTimeout: orchestrator.DEFAULT_WAIT_TIMEOUT,
		},
		Extension: ExtensionConfig{
			Delay: orchestrator.DEFAULT_EXTENSION_DELAY,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load defaults, then YAML file (if path is set), then environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Solver.APIKey, ENV_ANTICAPTCHA_KEY)
	setFromEnv(&c.Solver.APIKey, ENV_API_KEY)
	setFromEnv(&c.Solver.Provider, ENV_PROVIDER)
	setFromEnv(&c.Challenge.Type, ENV_CHALLENGE_TYPE)
	setFromEnv(&c.Challenge.WebsiteKey, ENV_SITE_KEY)
	setFromEnv(&c.Crawl.URL, ENV_URL)
	setFromEnv(&c.Extension.ProfileDir, ENV_PROFILE_DIR)
	setFromEnv(&c.Browser.Proxy, ENV_PROXY)
	setFromEnv(&c.Crawl.ChallengeSelector, ENV_CHALLENGE_SELECTOR)
}

func setFromEnv(field *string, name string) {
	if value := os.Getenv(name); value != "" {
		*field = value
	}
}

// Resolve relative paths against working directory
func (c *Config) normalize() error {
	var err error

	if c.Extension.ProfileDir != "" {
		if c.Extension.ProfileDir, err = filepath.Abs(c.Extension.ProfileDir); err != nil {
			return fmt.Errorf("profile dir: %w", err)
		}
	}

	if c.Browser.UserDataDir != "" {
		if c.Browser.UserDataDir, err = filepath.Abs(c.Browser.UserDataDir); err != nil {
			return fmt.Errorf("user data dir: %w", err)
		}
	}

	for i, dir := range c.Browser.Extensions {
		if c.Browser.Extensions[i], err = filepath.Abs(dir); err != nil {
			return fmt.Errorf("extension dir: %w", err)
		}
	}

	if c.Challenge.WebsiteURL == "" {
		c.Challenge.WebsiteURL = c.Crawl.URL
	}
	return nil
}

// Check values required by the API flow
func (c *Config) ValidateAPI() error {
	var errs []error

	if c.Solver.APIKey == "" {
		errs = append(errs, fmt.Errorf("solver api key is required (%s)", ENV_API_KEY))
	}
	if _, err := solver.ProviderByName(c.Solver.Provider); err != nil {
		errs = append(errs, err)
	}
	if c.Crawl.URL == "" {
		errs = append(errs, fmt.Errorf("crawl url is required (%s)", ENV_URL))
	}
	if c.Challenge.Type == "" {
		errs = append(errs, errors.New("challenge type is required"))
	}
	if c.Challenge.WebsiteKey == "" && !c.Crawl.DiscoverSiteKey {
		errs = append(errs, fmt.Errorf("challenge site key is required (%s) or enable crawl.discover_site_key", ENV_SITE_KEY))
	}
	if _, err := navigator.ParseCacheMode(c.Crawl.CacheMode); err != nil {
		errs = append(errs, err)
	}
	if c.Crawl.WaitFor != "" {
		if _, err := navigator.ParseWaitFor(c.Crawl.WaitFor); err != nil {
			errs = append(errs, fmt.Errorf("crawl.wait_for: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Check values required by the extension flow
func (c *Config) ValidateExtension() error {
	var errs []error

	if c.Crawl.URL == "" {
		errs = append(errs, fmt.Errorf("crawl url is required (%s)", ENV_URL))
	}
	if c.Extension.ProfileDir == "" {
		errs = append(errs, fmt.Errorf("extension profile dir is required (%s)", ENV_PROFILE_DIR))
	} else if info, err := os.Stat(c.Extension.ProfileDir); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("extension profile dir %s does not exist", c.Extension.ProfileDir))
	}
	if _, err := navigator.ParseCacheMode(c.Crawl.CacheMode); err != nil {
		errs = append(errs, err)
	}
	if c.Extension.Until != "" {
		if _, err := navigator.ParseWaitFor(c.Extension.Until); err != nil {
			errs = append(errs, fmt.Errorf("extension.until: %w", err))
		}
	}

	return errors.Join(errs...)
}
