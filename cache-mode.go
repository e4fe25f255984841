package navigator

import (
	"fmt"
	"strings"
	"sync"
)

type CacheMode string

const (
	CacheEnabled   CacheMode = "enabled"
	CacheDisabled  CacheMode = "disabled"
	CacheReadOnly  CacheMode = "read_only"
	CacheWriteOnly CacheMode = "write_only"
	CacheBypass    CacheMode = "bypass"
)

// Empty string means CacheEnabled
func ParseCacheMode(value string) (CacheMode, error) {
	mode := CacheMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return CacheEnabled, nil
	case CacheEnabled, CacheDisabled, CacheReadOnly, CacheWriteOnly, CacheBypass:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", value)
	}
}

func (m CacheMode) canRead() bool {
	return m == "" || m == CacheEnabled || m == CacheReadOnly
}

func (m CacheMode) canWrite() bool {
	return m == "" || m == CacheEnabled || m == CacheWriteOnly
}

// Fresh fetch, browser HTTP cache off
func (m CacheMode) disablesBrowserCache() bool {
	return m == CacheBypass || m == CacheDisabled
}

// In-memory crawl results keyed by URL
type ResultCache struct {
	mu      sync.RWMutex
	results map[string]*Result
}

func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[string]*Result)}
}

func (c *ResultCache) Get(url string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.results[url]
	if !ok {
		return nil, false
	}
	cached := result.clone()
	cached.FromCache = true
	return cached, true
}

func (c *ResultCache) Put(result *Result) {
	if result == nil {
		return
	}
	c.put(result.URL, result)
}

// Cached result of the requested URL if mode reads the cache
func (c *ResultCache) Load(pageURL string, mode CacheMode) (*Result, bool) {
	if c == nil || !mode.canRead() {
		return nil, false
	}
	return c.Get(pageURL)
}

// Store confirmed result under the requested URL if mode writes the cache.
// Final URL after redirects is kept in the result itself
func (c *ResultCache) Store(pageURL string, result *Result, mode CacheMode) {
	if c == nil || result == nil || !mode.canWrite() {
		return
	}
	c.put(pageURL, result)
}

func (c *ResultCache) put(key string, result *Result) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.results == nil {
		c.results = make(map[string]*Result)
	}
	c.results[key] = result.clone()
}

func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[string]*Result)
}
