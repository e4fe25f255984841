package navigator

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"
)

var (
	ErrNavigation     = errors.New("navigation failed")
	ErrWaitTimeout    = errors.New("timeout waiting for condition")
	ErrUnknownSession = errors.New("unknown session")
	ErrClosed         = errors.New("navigator is closed")
)

// Page failed to load
type NavigationError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NavigationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("navigate %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

// errors.Is(err, ErrNavigation) is true for every NavigationError
func (e *NavigationError) Unwrap() []error {
	return []error{ErrNavigation, e.Err}
}

func waitTimeoutError(predicate WaitPredicate, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrWaitTimeout, predicate, err)
}

// Expired wait context or chromedp polling timeout is ErrWaitTimeout.
// Errors after cancellation of the parent context are returned as is
func waitError(parent, waitCtx context.Context, predicate WaitPredicate, err error) error {
	if err == nil {
		return nil
	}

	if parent.Err() != nil {
		return err
	}

	if errors.Is(err, chromedp.ErrPollingTimeout) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return waitTimeoutError(predicate, err)
	}
	return err
}
