package solver

import (
	"context"
	"time"

	"github.com/nuveo/anticaptcha"
)

const DEFAULT_ANTICAPTCHA_TIMEOUT = 5 * time.Minute

// reCAPTCHA v2 solver on top of anti-captcha.com client
type AntiCaptcha struct {
	apiKey  string
	timeout time.Duration
}

func NewAntiCaptcha(apiKey string, timeout time.Duration) *AntiCaptcha {
	if timeout <= 0 {
		timeout = DEFAULT_ANTICAPTCHA_TIMEOUT
	}
	return &AntiCaptcha{apiKey: apiKey, timeout: timeout}
}

func (s *AntiCaptcha) Solve(ctx context.Context, challenge Challenge) (*Solution, error) {
	if s.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	switch challenge.Type {
	case ReCaptchaV2TaskProxyLess, NoCaptchaTaskProxyless:
	default:
		return nil, ErrUnsupportedType
	}

	if err := challenge.Validate(); err != nil {
		return nil, err
	}

	type result struct {
		token string
		err   error
	}

	// Client blocks until solved and knows nothing about context
	done := make(chan result, 1)
	go func() {
		client := &anticaptcha.Client{APIKey: s.apiKey}
		token, err := client.SendRecaptcha(challenge.WebsiteURL, challenge.WebsiteKey, s.timeout)
		done <- result{token: token, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.token == "" {
			return nil, ErrNoToken
		}
		return &Solution{Token: res.token}, nil
	}
}
