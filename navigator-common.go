package navigator

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Common data for both engines, rod and chromedp
type CommonNavigator struct {
	// Navigation model
	Model *Model

	Logger *zap.Logger

	// Proxy getter, used when model has no proxy
	PrxGetter ProxyGetter

	// Crawl results cache. Nil disables caching
	Cache *ResultCache
}

func newCommonNavigator(model *Model, opts ...Option) CommonNavigator {
	common := CommonNavigator{
		Model:  model,
		Logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&common)
	}
	return common
}

func (navigator *CommonNavigator) formatURL(href string) (string, error) {
	return FormatURL(href)
}

// Normalize URL before navigation. Scheme defaults to https.
// Result cache is keyed by the normalized URL
func FormatURL(href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("invalid_url: empty")
	}

	if !strings.Contains(href, "://") {
		href = "https://" + strings.TrimPrefix(href, "//")
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid_url: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid_url: unsupported scheme %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("invalid_url: no host in %q", href)
	}

	return parsed.String(), nil
}

// Create goquery document from page HTML.
// With ReadOnlySelector only the first matched node is kept
func (navigator *CommonNavigator) createDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	if navigator.Model.ReadOnlySelector == "" {
		return doc, nil
	}

	node := doc.Find(navigator.Model.ReadOnlySelector)
	if node.Length() == 0 {
		return goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return goquery.NewDocumentFromNode(node.Get(0)), nil
}

func (navigator *CommonNavigator) newResult(sessionID, pageURL string, status int, html string) (*Result, error) {
	doc, err := navigator.createDocument(html)
	if err != nil {
		return nil, fmt.Errorf("create document from HTML: %w", err)
	}

	return &Result{
		URL:        pageURL,
		SessionID:  sessionID,
		StatusCode: status,
		HTML:       html,
		Document:   doc,
		FetchedAt:  time.Now(),
	}, nil
}

// Navigation never writes the cache: the first load may still show a
// challenge. Confirmed pages are stored by the caller with ResultCache.Store
func (navigator *CommonNavigator) cachedResult(pageURL string, opts NavigateOptions) (*Result, bool) {
	result, ok := navigator.Cache.Load(pageURL, opts.CacheMode)
	if !ok {
		return nil, false
	}

	result.SessionID = opts.SessionID
	if result.SessionID == "" {
		result.SessionID = uuid.NewString()
	}

	navigator.Logger.Debug("result served from cache", zap.String("url", pageURL), zap.String("session", result.SessionID))
	return result, true
}

// Proxy for the browser launch. Model value wins over proxy getter
func (navigator *CommonNavigator) browserProxy() string {
	if navigator.Model.Proxy != "" {
		return navigator.Model.Proxy
	}

	if navigator.PrxGetter == nil {
		return ""
	}

	proxy, err := navigator.PrxGetter.GetProxy()
	if err != nil {
		navigator.Logger.Warn("cannot get proxy, launching without it", zap.Error(err))
		return ""
	}
	return proxy
}
