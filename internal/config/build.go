package config

import (
	"fmt"

	navigator "github.com/CbIPOKGIT/turnstile-navigator"
	"github.com/CbIPOKGIT/turnstile-navigator/orchestrator"
	"github.com/CbIPOKGIT/turnstile-navigator/solver"
	"go.uber.org/zap"
)

// Solver for the configured provider. API key goes to the client, nothing is global.
// With anti-captcha provider reCAPTCHA challenges are routed to the anti-captcha client
func (c *Config) NewSolver(logger *zap.Logger) (solver.Solver, error) {
	provider, err := solver.ProviderByName(c.Solver.Provider)
	if err != nil {
		return nil, err
	}

	opts := []solver.TaskOption{
		solver.WithProvider(provider),
		solver.WithPollInterval(c.Solver.PollInterval),
		solver.WithMaxAttempts(c.Solver.MaxAttempts),
		solver.WithRequestTimeout(c.Solver.RequestTimeout),
		solver.WithLogger(logger),
	}
	if c.Solver.BaseURL != "" {
		opts = append(opts, solver.WithBaseURL(c.Solver.BaseURL))
	}
	if c.Solver.APIProxy != "" {
		opts = append(opts, solver.WithAPIProxy(c.Solver.APIProxy))
	}

	mux := solver.NewMux().Default(solver.NewTaskClient(c.Solver.APIKey, opts...))

	if provider == solver.ProviderAntiCaptcha && c.Solver.BaseURL == "" {
		recaptcha := solver.NewAntiCaptcha(c.Solver.APIKey, c.Solver.AntiCaptchaTimeout)
		mux.Handle(solver.ReCaptchaV2TaskProxyLess, recaptcha).
			Handle(solver.NoCaptchaTaskProxyless, recaptcha)
	}

	return mux, nil
}

func (c *Config) OrchestratorConfig() (orchestrator.Config, error) {
	cacheMode, err := navigator.ParseCacheMode(c.Crawl.CacheMode)
	if err != nil {
		return orchestrator.Config{}, err
	}

	model := c.Browser
	cfg := orchestrator.Config{
		Model:             &model,
		SessionID:         c.Crawl.SessionID,
		CacheMode:         cacheMode,
		WaitTimeout:       c.Crawl.WaitTimeout,
		ResponseSelector:  c.Crawl.ResponseSelector,
		SubmitSelector:    c.Crawl.SubmitSelector,
		Callback:          c.Crawl.Callback,
		DiscoverSiteKey:   c.Crawl.DiscoverSiteKey,
		ChallengeSelector: c.Crawl.ChallengeSelector,
		ExtensionDelay:    c.Extension.Delay,
	}

	if c.Crawl.WaitFor != "" {
		if cfg.WaitFor, err = navigator.ParseWaitFor(c.Crawl.WaitFor); err != nil {
			return orchestrator.Config{}, fmt.Errorf("crawl.wait_for: %w", err)
		}
	}

	if c.Extension.Until != "" {
		until, err := navigator.ParseWaitFor(c.Extension.Until)
		if err != nil {
			return orchestrator.Config{}, fmt.Errorf("extension.until: %w", err)
		}
		cfg.ExtensionUntil = &until
	}

	return cfg, nil
}
