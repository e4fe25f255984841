package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Navigator on top of go-rod
type ChromeNavigator struct {
	CommonNavigator

	mu sync.Mutex

	Browser *rod.Browser

	launcher *launcher.Launcher
	pages    sessionRegistry[*rod.Page]
	closed   bool
}

// Interface implementation
func (navigator *ChromeNavigator) Navigate(ctx context.Context, href string, opts NavigateOptions) (*Result, error) {
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

	sessionID, page, created, err := navigator.pages.acquire(opts.SessionID, navigator.createPage)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, Err: fmt.Errorf("create page: %w", err)}
	}

	logger := navigator.Logger.With(zap.String("session", sessionID), zap.String("url", pageURL))
	logger.Debug("navigate", zap.Bool("new_session", created), zap.String("cache_mode", string(opts.CacheMode)))

	page = page.Context(ctx)

	if err := navigator.prepareNetwork(page, opts.CacheMode); err != nil {
		return nil, &NavigationError{URL: pageURL, Err: err}
	}

	status, err := navigator.waitResponseAndLoad(ctx, page, pageURL)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, StatusCode: status, Err: err}
	}

	result, err := navigator.readResult(page, sessionID, status)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, StatusCode: status, Err: err}
	}

	navigator.pages.touch(sessionID, result.URL, status)

	logger.Debug("navigated", zap.Int("status", status))
	return result, nil
}

// Interface implementation
func (navigator *ChromeNavigator) ExecuteScript(ctx context.Context, sessionID, code string) (string, error) {
	page, err := navigator.pages.get(sessionID)
	if err != nil {
		return "", err
	}

	var value string
	err = rod.Try(func() {
		res, err := page.Context(ctx).Eval(asFunction(code))
		if err != nil {
			panic(err)
		}
		if res.Type == proto.RuntimeRemoteObjectTypeUndefined {
			return
		}
		value = res.Value.Str()
	})
	if err != nil {
		return "", fmt.Errorf("execute script: %w", err)
	}
	return value, nil
}

// Interface implementation
func (navigator *ChromeNavigator) WaitFor(ctx context.Context, sessionID string, predicate WaitPredicate, timeout time.Duration) error {
	page, err := navigator.pages.get(sessionID)
	if err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = navigator.Model.navigationTimeout()
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page = page.Context(waitCtx)

	switch predicate.Kind {
	case PredicateCSS:
		err = page.WaitElementsMoreThan(predicate.Expression, 0)
	case PredicateJS:
		err = page.Wait(rod.Eval(asPredicateFunction(predicate.Expression)))
	default:
		return fmt.Errorf("unknown predicate kind %q", predicate.Kind)
	}

	return waitError(ctx, waitCtx, predicate, err)
}

// Interface implementation
func (navigator *ChromeNavigator) Content(ctx context.Context, sessionID string) (*Result, error) {
	page, err := navigator.pages.get(sessionID)
	if err != nil {
		return nil, err
	}

	var status int
	if session, ok := navigator.pages.session(sessionID); ok {
		status = session.StatusCode
	}

	return navigator.readResult(page.Context(ctx), sessionID, status)
}

// Interface implementation
func (navigator *ChromeNavigator) Sessions() []Session {
	return navigator.pages.list()
}

// Interface implementation
func (navigator *ChromeNavigator) CloseSession(sessionID string) error {
	page, ok := navigator.pages.remove(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	return page.Close()
}

// Interface implementation
func (navigator *ChromeNavigator) Close() error {
	navigator.mu.Lock()
	defer navigator.mu.Unlock()

	if navigator.closed {
		return nil
	}
	navigator.closed = true

	var group errgroup.Group
	for _, page := range navigator.pages.drain() {
		group.Go(page.Close)
	}
	errPages := group.Wait()

	errBrowser := navigator.closeBrowser()

	return errors.Join(errPages, errBrowser)
}

func (navigator *ChromeNavigator) closeBrowser() error {
	if navigator.Browser == nil {
		return nil
	}

	// System chrome belongs to the user
	if navigator.Model.UseSystemChrome {
		navigator.Browser = nil
		return nil
	}

	err := navigator.Browser.Close()
	navigator.Browser = nil

	// Temporary profile created by launcher
	if navigator.launcher != nil && navigator.Model.UserDataDir == "" && !navigator.Model.PersistentContext {
		navigator.launcher.Cleanup()
	}
	return err
}

func (navigator *ChromeNavigator) isClosed() bool {
	navigator.mu.Lock()
	defer navigator.mu.Unlock()
	return navigator.closed
}

// Connect to browser if not connected yet
func (navigator *ChromeNavigator) createClientIfNeed() error {
	navigator.mu.Lock()
	defer navigator.mu.Unlock()

	if navigator.closed {
		return ErrClosed
	}

	if navigator.Browser != nil {
		return nil
	}

	controlURL, err := navigator.launchBrowser()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	navigator.Browser = browser.NoDefaultDevice()
	return nil
}

func (navigator *ChromeNavigator) launchBrowser() (string, error) {
	// Try system chrome if needed.
	// On error fall back to the regular launch
	if navigator.Model.UseSystemChrome {
		u, err := launcher.NewUserMode().Launch()
		if err == nil {
			return u, nil
		}
		navigator.Logger.Warn("cannot use system chrome", zap.Error(err))
	}

	navigator.launcher = navigator.createLauncher()
	return navigator.launcher.Launch()
}

// Launcher flags from the model
func (navigator *ChromeNavigator) createLauncher() *launcher.Launcher {
	model := navigator.Model

	l := launcher.New().
		Headless(!model.Visible).
		Set("blink-settings", fmt.Sprintf("imagesEnabled=%t", model.ShowImages))

	if model.Bin != "" {
		l = l.Bin(model.Bin)
	}

	if model.UserDataDir != "" {
		l = l.UserDataDir(model.UserDataDir)
	}

	if proxy := navigator.browserProxy(); proxy != "" {
		l = l.Proxy(proxy)
	}

	if model.UserAgent != "" {
		l = l.Set("user-agent", model.UserAgent)
	}

	if model.NoSandbox {
		l = l.NoSandbox(true)
	}

	if len(model.Extensions) > 0 {
		extensions := strings.Join(model.Extensions, ",")
		l = l.Delete("disable-extensions").
			Set("load-extension", extensions).
			Set("disable-extensions-except", extensions)

		// Old headless mode cannot run extensions
		if !model.Visible {
			l = l.Set(flags.Headless, "new")
		}
	}

	if model.Verbose {
		l = l.Logger(zap.NewStdLog(navigator.Logger).Writer())
	}

	return l
}

func (navigator *ChromeNavigator) createPage() (*rod.Page, error) {
	if navigator.Model.Stealth {
		return stealth.Page(navigator.Browser)
	}
	return navigator.Browser.Page(proto.TargetCreateTarget{})
}

func (navigator *ChromeNavigator) prepareNetwork(page *rod.Page, mode CacheMode) error {
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("enable network: %w", err)
	}

	err := proto.NetworkSetCacheDisabled{CacheDisabled: mode.disablesBrowserCache()}.Call(page)
	if err != nil {
		return fmt.Errorf("set cache mode: %w", err)
	}
	return nil
}

// Wait navigation response and sign page loaded
func (navigator *ChromeNavigator) waitResponseAndLoad(ctx context.Context, page *rod.Page, pageURL string) (int, error) {
	navCtx, cancel := context.WithTimeout(ctx, navigator.Model.navigationTimeout())
	defer cancel()

	page = page.Context(navCtx)

	// Status of the main document response
	var status int
	waitResponse := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})

	waitLoad := page.WaitNavigation(navigator.Model.pageLoadEvent())

	if err := page.Navigate(pageURL); err != nil {
		return 0, err
	}

	waitResponse()
	waitLoad()

	if err := navCtx.Err(); err != nil {
		if ctx.Err() != nil {
			return status, ctx.Err()
		}
		return status, fmt.Errorf("timeout navigation: %w", err)
	}

	if status == 0 {
		return 0, errors.New("no document response")
	}
	return status, nil
}

func (navigator *ChromeNavigator) readResult(page *rod.Page, sessionID string, status int) (*Result, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read HTML from page: %w", err)
	}

	pageURL := ""
	if info, err := page.Info(); err == nil {
		pageURL = info.URL
	}

	return navigator.newResult(sessionID, pageURL, status, html)
}
