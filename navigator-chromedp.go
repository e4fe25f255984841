package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Navigator on top of chromedp
type ChromedpNavigator struct {
	CommonNavigator

	mu sync.Mutex

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabs   sessionRegistry[*chromedpTab]
	closed bool
}

type chromedpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Interface implementation
func (navigator *ChromedpNavigator) Navigate(ctx context.Context, href string, opts NavigateOptions) (*Result, error) {
	pageURL, err := navigator.formatURL(href)
	if err != nil {
		return nil, &NavigationError{URL: href, Err: err}
	}

	if navigator.isClosed() {
		return nil, &NavigationError{URL: pageURL, Err: ErrClosed}
	}

	if result, ok := navigator.cachedResult(pageURL, opts); ok {
		return result, nil
	}

	if err := navigator.createClientIfNeed(); err != nil {
		return nil, &NavigationError{URL: pageURL, Err: err}
	}

	sessionID, tab, created, err := navigator.tabs.acquire(opts.SessionID, navigator.createTab)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, Err: fmt.Errorf("create tab: %w", err)}
	}

	logger := navigator.Logger.With(zap.String("session", sessionID), zap.String("url", pageURL))
	logger.Debug("navigate", zap.Bool("new_session", created), zap.String("cache_mode", string(opts.CacheMode)))

	navCtx, cancel := navigator.bind(ctx, tab, navigator.Model.navigationTimeout())
	defer cancel()

	err = chromedp.Run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		return network.SetCacheDisabled(opts.CacheMode.disablesBrowserCache()).Do(ctx)
	}))
	if err != nil {
		return nil, &NavigationError{URL: pageURL, Err: err}
	}

	response, err := chromedp.RunResponse(navCtx, chromedp.Navigate(pageURL))
	if err != nil {
		if ctx.Err() == nil && errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout navigation: %w", err)
		}
		return nil, &NavigationError{URL: pageURL, Err: err}
	}

	var status int
	if response != nil {
		status = int(response.Status)
	}

	result, err := navigator.readResult(navCtx, sessionID, status)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, StatusCode: status, Err: err}
	}

	navigator.tabs.touch(sessionID, result.URL, status)

	logger.Debug("navigated", zap.Int("status", status))
	return result, nil
}

// Interface implementation
func (navigator *ChromedpNavigator) ExecuteScript(ctx context.Context, sessionID, code string) (string, error) {
	tab, err := navigator.tabs.get(sessionID)
	if err != nil {
		return "", err
	}

	runCtx, cancel := navigator.bind(ctx, tab, 0)
	defer cancel()

	var res *runtime.RemoteObject
	err = chromedp.Run(runCtx, chromedp.Evaluate(asExpression(code), &res, awaitPromise))
	if err != nil {
		return "", fmt.Errorf("execute script: %w", err)
	}
	return remoteObjectString(res), nil
}

// Interface implementation
func (navigator *ChromedpNavigator) WaitFor(ctx context.Context, sessionID string, predicate WaitPredicate, timeout time.Duration) error {
	tab, err := navigator.tabs.get(sessionID)
	if err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = navigator.Model.navigationTimeout()
	}

	waitCtx, cancel := navigator.bind(ctx, tab, timeout)
	defer cancel()

	var action chromedp.Action
	switch predicate.Kind {
	case PredicateCSS:
		action = chromedp.WaitReady(predicate.Expression, chromedp.ByQuery)
	case PredicateJS:
		action = chromedp.PollFunction(asPredicateFunction(predicate.Expression), nil, chromedp.WithPollingTimeout(timeout))
	default:
		return fmt.Errorf("unknown predicate kind %q", predicate.Kind)
	}

	return waitError(ctx, waitCtx, predicate, chromedp.Run(waitCtx, action))
}

// Interface implementation
func (navigator *ChromedpNavigator) Content(ctx context.Context, sessionID string) (*Result, error) {
	tab, err := navigator.tabs.get(sessionID)
	if err != nil {
		return nil, err
	}

	var status int
	if session, ok := navigator.tabs.session(sessionID); ok {
		status = session.StatusCode
	}

	runCtx, cancel := navigator.bind(ctx, tab, 0)
	defer cancel()

	return navigator.readResult(runCtx, sessionID, status)
}

// Interface implementation
func (navigator *ChromedpNavigator) Sessions() []Session {
	return navigator.tabs.list()
}

// Interface implementation
func (navigator *ChromedpNavigator) CloseSession(sessionID string) error {
	tab, ok := navigator.tabs.remove(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	tab.cancel()
	return nil
}

// Interface implementation
func (navigator *ChromedpNavigator) Close() error {
	navigator.mu.Lock()
	defer navigator.mu.Unlock()

	if navigator.closed {
		return nil
	}
	navigator.closed = true

	for _, tab := range navigator.tabs.drain() {
		tab.cancel()
	}

	if navigator.browserCancel != nil {
		navigator.browserCancel()
	}
	if navigator.allocCancel != nil {
		navigator.allocCancel()
	}
	return nil
}

func (navigator *ChromedpNavigator) isClosed() bool {
	navigator.mu.Lock()
	defer navigator.mu.Unlock()
	return navigator.closed
}

func (navigator *ChromedpNavigator) createClientIfNeed() error {
	navigator.mu.Lock()
	defer navigator.mu.Unlock()

	if navigator.closed {
		return ErrClosed
	}

	if navigator.browserCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), navigator.allocatorOptions()...)

	logf := navigator.Logger.Sugar().Debugf
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logf), chromedp.WithErrorf(navigator.Logger.Sugar().Errorf))

	// First run starts the browser. Must not be bound to a request context
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	navigator.allocCancel = allocCancel
	navigator.browserCtx = browserCtx
	navigator.browserCancel = browserCancel
	return nil
}

// Exec allocator flags from the model
func (navigator *ChromedpNavigator) allocatorOptions() []chromedp.ExecAllocatorOption {
	model := navigator.Model

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !model.Visible),
		chromedp.Flag("blink-settings", fmt.Sprintf("imagesEnabled=%t", model.ShowImages)),
	)

	if model.Bin != "" {
		opts = append(opts, chromedp.ExecPath(model.Bin))
	}

	if model.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(model.UserDataDir))
	}

	if proxy := navigator.browserProxy(); proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	if model.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(model.UserAgent))
	}

	if model.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	if len(model.Extensions) > 0 {
		extensions := strings.Join(model.Extensions, ",")
		opts = append(opts,
			chromedp.Flag("disable-extensions", false),
			chromedp.Flag("load-extension", extensions),
			chromedp.Flag("disable-extensions-except", extensions),
		)
		if !model.Visible {
			opts = append(opts, chromedp.Flag("headless", "new"))
		}
	}

	return opts
}

// New tab in the running browser
func (navigator *ChromedpNavigator) createTab() (*chromedpTab, error) {
	ctx, cancel := chromedp.NewContext(navigator.browserCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, err
	}
	return &chromedpTab{ctx: ctx, cancel: cancel}, nil
}

// Derive tab context that is cancelled with ctx. Cancelling it stops the
// running actions but keeps the tab open
func (navigator *ChromedpNavigator) bind(ctx context.Context, tab *chromedpTab, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(tab.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(tab.ctx)
	}

	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (navigator *ChromedpNavigator) readResult(ctx context.Context, sessionID string, status int) (*Result, error) {
	var html, location string
	err := chromedp.Run(ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("read HTML from page: %w", err)
	}

	return navigator.newResult(sessionID, location, status, html)
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Stringify evaluation result. Strings are returned unquoted
func remoteObjectString(res *runtime.RemoteObject) string {
	if res == nil || res.Type == runtime.TypeUndefined || len(res.Value) == 0 {
		return ""
	}

	raw := []byte(res.Value)

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}
