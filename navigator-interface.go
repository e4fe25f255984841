package navigator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Navigator interface {
	// Open URL in the session tab. Empty session id opens an ephemeral session
	Navigate(ctx context.Context, url string, opts NavigateOptions) (*Result, error)

	// Execute script in the session tab. Returns stringified result
	ExecuteScript(ctx context.Context, sessionID, code string) (string, error)

	// Block until predicate is true or timeout elapsed
	WaitFor(ctx context.Context, sessionID string, predicate WaitPredicate, timeout time.Duration) error

	// Current DOM of the session tab without navigation
	Content(ctx context.Context, sessionID string) (*Result, error)

	// Opened sessions
	Sessions() []Session

	// Close session tab
	CloseSession(sessionID string) error

	// Close browser and all sessions
	Close() error
}

type NavigateOptions struct {
	SessionID string
	CacheMode CacheMode
}

type Option func(*CommonNavigator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *CommonNavigator) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func WithProxyGetter(getter ProxyGetter) Option {
	return func(c *CommonNavigator) {
		c.PrxGetter = getter
	}
}

func WithResultCache(cache *ResultCache) Option {
	return func(c *CommonNavigator) {
		c.Cache = cache
	}
}

// Create navigator for model engine. Browser itself is started lazily on first navigation
func NewNavigator(model *Model, opts ...Option) (Navigator, error) {
	if model == nil {
		model = new(Model)
	}

	common := newCommonNavigator(model, opts...)

	switch model.engine() {
	case ENGINE_ROD:
		return &ChromeNavigator{CommonNavigator: common}, nil
	case ENGINE_CHROMEDP:
		return &ChromedpNavigator{CommonNavigator: common}, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", model.Engine)
	}
}
