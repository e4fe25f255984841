// Package orchestrator sequences navigation, challenge resolution and
// confirmation of a captcha-assisted crawl.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	navigator "github.com/CbIPOKGIT/turnstile-navigator"
	"github.com/CbIPOKGIT/turnstile-navigator/solver"
	"go.uber.org/zap"
)

const (
	DEFAULT_SESSION_ID      = "session_captcha_test"
	DEFAULT_WAIT_TIMEOUT    = 60 * time.Second
	DEFAULT_EXTENSION_DELAY = 30 * time.Second
)

var ErrNoProfile = errors.New("browser profile directory is required")

type NavigatorFactory func(model *navigator.Model) (navigator.Navigator, error)

type Config struct {
	// Browser model of the API flow and base model of the extension flow
	Model *navigator.Model

	SessionID string
	CacheMode navigator.CacheMode

	// API flow confirmation
	WaitFor     navigator.WaitPredicate
	WaitTimeout time.Duration

	// Token injection. Callback wins over the form selectors
	ResponseSelector string
	SubmitSelector   string
	Callback         string

	DiscoverSiteKey bool

	// Selector that marks a challenge page, only logged
	ChallengeSelector string

	ExtensionDelay time.Duration
	ExtensionUntil *navigator.WaitPredicate
}

type Orchestrator struct {
	config  Config
	solver  solver.Solver
	factory NavigatorFactory
	logger  *zap.Logger

	// Shared by navigators of the default factory
	cache     *navigator.ResultCache
	prxGetter navigator.ProxyGetter

	mu  sync.Mutex
	nav navigator.Navigator
}

type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithNavigatorFactory(factory NavigatorFactory) Option {
	return func(o *Orchestrator) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// Proxy source for browsers of the default factory when model has no proxy
func WithProxyGetter(getter navigator.ProxyGetter) Option {
	return func(o *Orchestrator) {
		o.prxGetter = getter
	}
}

// Solver may be nil when only the extension flow is used
func New(config Config, s solver.Solver, opts ...Option) *Orchestrator {
	if config.Model == nil {
		config.Model = new(navigator.Model)
	}
	if config.SessionID == "" {
		config.SessionID = DEFAULT_SESSION_ID
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DEFAULT_WAIT_TIMEOUT
	}
	if config.ExtensionDelay <= 0 {
		config.ExtensionDelay = DEFAULT_EXTENSION_DELAY
	}

	o := &Orchestrator{
		config: config,
		solver: s,
		logger: zap.NewNop(),
		cache:  navigator.NewResultCache(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.factory == nil {
		logger := o.logger.Named("navigator")
		o.factory = func(model *navigator.Model) (navigator.Navigator, error) {
			return navigator.NewNavigator(model,
				navigator.WithLogger(logger),
				navigator.WithResultCache(o.cache),
				navigator.WithProxyGetter(o.prxGetter),
			)
		}
	}
	return o
}

// Navigate to targetURL in the reusable session, solve challenge through the
// solver, inject the token and wait for confirmation. Returns page content
func (o *Orchestrator) RunAPIFlow(ctx context.Context, challenge solver.Challenge, targetURL string) (*navigator.Result, error) {
	if o.solver == nil {
		return nil, failure(SolveFailure, "solve", o.config.SessionID, errors.New("no solver configured"))
	}

	nav, err := o.navigator()
	if err != nil {
		return nil, failure(NavigationFailure, "open browser", o.config.SessionID, err)
	}

	if challenge.WebsiteURL == "" {
		challenge.WebsiteURL = targetURL
	}

	resolution := &APIResolution{
		Solver:          o.solver,
		Challenge:       challenge,
		Script:          o.tokenScript(),
		WaitFor:         o.config.WaitFor,
		WaitTimeout:     o.config.WaitTimeout,
		DiscoverSiteKey: o.config.DiscoverSiteKey,
	}

	return o.Resolve(ctx, nav, resolution, targetURL, o.config.SessionID)
}

// Browser opened by the extension flow. Caller keeps interacting with the
// page and must Close it
type Run struct {
	Navigator navigator.Navigator
	SessionID string
	Result    *navigator.Result
}

func (r *Run) Close() error {
	return r.Navigator.Close()
}

// Open browser with profile containing solver extension, navigate and wait
// for the extension. Challenge solver is never called
func (o *Orchestrator) RunExtensionFlow(ctx context.Context, targetURL, profileDir string) (*Run, error) {
	if profileDir == "" {
		return nil, ErrNoProfile
	}

	nav, err := o.factory(o.config.Model.WithProfile(profileDir))
	if err != nil {
		return nil, failure(NavigationFailure, "open browser", o.config.SessionID, err)
	}

	resolution := &ExtensionResolution{
		Delay: o.config.ExtensionDelay,
		Until: o.config.ExtensionUntil,
	}

	result, err := o.Resolve(ctx, nav, resolution, targetURL, o.config.SessionID)
	if err != nil {
		if errClose := nav.Close(); errClose != nil {
			o.logger.Warn("close browser", zap.Error(errClose))
		}
		return nil, err
	}

	return &Run{Navigator: nav, SessionID: result.SessionID, Result: result}, nil
}

// Shared sequence of both flows: navigate, resolve challenge, read content
func (o *Orchestrator) Resolve(ctx context.Context, nav navigator.Navigator, resolution ChallengeResolution, targetURL, sessionID string) (*navigator.Result, error) {
	logger := o.logger.With(zap.String("session", sessionID), zap.String("url", targetURL))

	logger.Info("navigating")
	result, err := nav.Navigate(ctx, targetURL, navigator.NavigateOptions{
		SessionID: sessionID,
		CacheMode: o.config.CacheMode,
	})
	if err != nil {
		return nil, failure(NavigationFailure, "navigate", sessionID, err)
	}

	if result.FromCache {
		logger.Info("served from cache")
		return result, nil
	}

	page := PageHandle{Navigator: nav, SessionID: result.SessionID, Result: result}
	if page.SessionID != sessionID {
		logger = o.logger.With(zap.String("session", page.SessionID), zap.String("url", targetURL))
	}
	logger = logger.With(zap.Int("status", result.StatusCode))

	if solver.HasChallenge(result.Document, o.config.ChallengeSelector) {
		logger.Info("challenge detected")
	}

	logger.Info("waiting for solve")
	if err := resolution.Resolve(ctx, page); err != nil {
		logger.Error("challenge not resolved", zap.Error(err))
		return nil, err
	}

	content, err := nav.Content(ctx, page.SessionID)
	if err != nil {
		return nil, failure(NavigationFailure, "read content", page.SessionID, err)
	}

	o.storeConfirmed(targetURL, content)

	logger.Info("confirmed", zap.String("final_url", content.URL))
	return content, nil
}

// Only confirmed pages are cached, keyed by the requested URL the navigator looks up
func (o *Orchestrator) storeConfirmed(targetURL string, content *navigator.Result) {
	pageURL, err := navigator.FormatURL(targetURL)
	if err != nil {
		return
	}
	o.cache.Store(pageURL, content, o.config.CacheMode)
}

// Release the browser of the API flow
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.nav == nil {
		return nil
	}
	err := o.nav.Close()
	o.nav = nil
	return err
}

// Navigator of the API flow, created once and reused between runs
func (o *Orchestrator) navigator() (navigator.Navigator, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.nav != nil {
		return o.nav, nil
	}

	nav, err := o.factory(o.config.Model)
	if err != nil {
		return nil, err
	}
	o.nav = nav
	return nav, nil
}

func (o *Orchestrator) tokenScript() TokenScript {
	if o.config.Callback != "" {
		return CallbackScript(o.config.Callback)
	}
	return FormSubmitScript(o.config.ResponseSelector, o.config.SubmitSelector)
}
