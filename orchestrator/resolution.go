package orchestrator

import (
	"context"
	"errors"
	"time"

	navigator "github.com/CbIPOKGIT/turnstile-navigator"
	"github.com/CbIPOKGIT/turnstile-navigator/solver"
)

// Page opened by the orchestrator
type PageHandle struct {
	Navigator navigator.Navigator
	SessionID string

	// Content right after navigation
	Result *navigator.Result
}

// Strategy that brings the page into solved challenge state
type ChallengeResolution interface {
	Resolve(ctx context.Context, page PageHandle) error
}

// Solve challenge through solver API and inject the token
type APIResolution struct {
	Solver    solver.Solver
	Challenge solver.Challenge
	Script    TokenScript

	// Confirmation condition after the token is submitted
	WaitFor     navigator.WaitPredicate
	WaitTimeout time.Duration

	// Read site key from the page when challenge has none
	DiscoverSiteKey bool
}

func (r *APIResolution) Resolve(ctx context.Context, page PageHandle) error {
	challenge := r.Challenge
	if challenge.WebsiteKey == "" && r.DiscoverSiteKey && page.Result != nil {
		challenge.WebsiteKey, _ = solver.FindSiteKey(page.Result.Document)
	}

	solution, err := r.Solver.Solve(ctx, challenge)
	if err != nil {
		return failure(SolveFailure, "solve", page.SessionID, err)
	}
	if solution == nil || solution.Token == "" {
		return failure(SolveFailure, "solve", page.SessionID, solver.ErrNoToken)
	}

	script := r.Script
	if script == nil {
		script = FormSubmitScript("", "")
	}

	if _, err := page.Navigator.ExecuteScript(ctx, page.SessionID, script(solution.Token)); err != nil {
		return failure(NavigationFailure, "inject token", page.SessionID, err)
	}

	waitFor := r.WaitFor
	if waitFor.IsZero() {
		waitFor = navigator.SelectorGone(DEFAULT_RESPONSE_SELECTOR)
	}

	return wait(ctx, page, waitFor, r.WaitTimeout, "confirm")
}

// Let the extension installed in the browser profile solve the challenge
type ExtensionResolution struct {
	// Fixed wait, or timeout of Until when it is set
	Delay time.Duration

	// Condition signalling the extension finished
	Until *navigator.WaitPredicate
}

func (r *ExtensionResolution) Resolve(ctx context.Context, page PageHandle) error {
	if r.Until != nil && !r.Until.IsZero() {
		return wait(ctx, page, *r.Until, r.Delay, "wait extension")
	}

	if r.Delay <= 0 {
		return nil
	}

	timer := time.NewTimer(r.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wait(ctx context.Context, page PageHandle, predicate navigator.WaitPredicate, timeout time.Duration, op string) error {
	err := page.Navigator.WaitFor(ctx, page.SessionID, predicate, timeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, navigator.ErrWaitTimeout):
		return failure(WaitTimeout, op, page.SessionID, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return failure(NavigationFailure, op, page.SessionID, err)
	}
}
