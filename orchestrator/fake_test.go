package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	navigator "github.com/CbIPOKGIT/turnstile-navigator"
	"github.com/CbIPOKGIT/turnstile-navigator/solver"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/mock"
)

// In-memory navigator recording every call
type fakeNavigator struct {
	mu sync.Mutex

	html        string
	confirmed   string
	navigateErr error

	cache *navigator.ResultCache
	scriptErr   error
	waitErr     error

	handles  map[string]int
	created  int
	events   []string
	scripts  []string
	options  []navigator.NavigateOptions
	waited   []navigator.WaitPredicate
	timeouts []time.Duration
	closed   bool
}

func newFakeNavigator(html string) *fakeNavigator {
	return &fakeNavigator{html: html, handles: make(map[string]int)}
}

func (f *fakeNavigator) record(event string) {
	f.events = append(f.events, event)
}

func (f *fakeNavigator) result(url, sessionID, html string) (*navigator.Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &navigator.Result{URL: url, SessionID: sessionID, StatusCode: 200, HTML: html, Document: doc}, nil
}

func (f *fakeNavigator) Navigate(ctx context.Context, url string, opts navigator.NavigateOptions) (*navigator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("navigate")
	f.options = append(f.options, opts)

	if f.navigateErr != nil {
		return nil, f.navigateErr
	}

	if pageURL, err := navigator.FormatURL(url); err == nil {
		if cached, ok := f.cache.Load(pageURL, opts.CacheMode); ok {
			cached.SessionID = opts.SessionID
			return cached, nil
		}
	}

	id := opts.SessionID
	if id == "" {
		id = fmt.Sprintf("ephemeral-%d", f.created+1)
	}
	if _, ok := f.handles[id]; !ok {
		f.created++
		f.handles[id] = f.created
	}
	return f.result(url, id, f.html)
}

func (f *fakeNavigator) ExecuteScript(ctx context.Context, sessionID, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("script")
	if _, ok := f.handles[sessionID]; !ok {
		return "", navigator.ErrUnknownSession
	}
	f.scripts = append(f.scripts, code)
	return "", f.scriptErr
}

func (f *fakeNavigator) WaitFor(ctx context.Context, sessionID string, predicate navigator.WaitPredicate, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("wait")
	f.waited = append(f.waited, predicate)
	f.timeouts = append(f.timeouts, timeout)
	return f.waitErr
}

func (f *fakeNavigator) Content(ctx context.Context, sessionID string) (*navigator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("content")

	html := f.html
	if f.confirmed != "" {
		html = f.confirmed
	}
	return f.result("https://example.com/after", sessionID, html)
}

func (f *fakeNavigator) Sessions() []navigator.Session {
	f.mu.Lock()
	defer f.mu.Unlock()

	sessions := make([]navigator.Session, 0, len(f.handles))
	for id := range f.handles {
		sessions = append(sessions, navigator.Session{ID: id})
	}
	return sessions
}

func (f *fakeNavigator) CloseSession(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.handles, sessionID)
	return nil
}

func (f *fakeNavigator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *fakeNavigator) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type mockSolver struct {
	mock.Mock
}

func (m *mockSolver) Solve(ctx context.Context, challenge solver.Challenge) (*solver.Solution, error) {
	args := m.Called(ctx, challenge)
	solution, _ := args.Get(0).(*solver.Solution)
	return solution, args.Error(1)
}

// Factory returning the same fake and counting calls
type fakeFactory struct {
	nav    *fakeNavigator
	err    error
	calls  int
	models []*navigator.Model
}

func (f *fakeFactory) create(model *navigator.Model) (navigator.Navigator, error) {
	f.calls++
	f.models = append(f.models, model)
	if f.err != nil {
		return nil, f.err
	}
	return f.nav, nil
}
