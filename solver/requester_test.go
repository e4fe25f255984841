package solver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var turnstile = Challenge{
	Type:       AntiTurnstileTaskProxyLess,
	WebsiteURL: "https://nopecha.com/demo/cloudflare",
	WebsiteKey: "0x4AAAAAAAAkg0s3VIOD10y4",
}

type fakeService struct {
	t *testing.T

	createResponse string
	results        []string

	polls    atomic.Int32
	lastTask map[string]any
	lastPoll map[string]any
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/createTask":
		f.lastTask = body
		_, _ = w.Write([]byte(f.createResponse))
	case "/getTaskResult":
		f.lastPoll = body
		n := int(f.polls.Add(1)) - 1
		if n >= len(f.results) {
			n = len(f.results) - 1
		}
		_, _ = w.Write([]byte(f.results[n]))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...TaskOption) *TaskClient {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]TaskOption{
		WithBaseURL(server.URL),
		WithPollInterval(time.Millisecond),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	return NewTaskClient("test-key", opts...)
}

func TestTaskClientSolve(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"task-1"}`,
		results: []string{
			`{"errorId":0,"status":"idle"}`,
			`{"errorId":0,"status":"processing"}`,
			`{"errorId":0,"status":"ready","solution":{"token":"0.token-value","userAgent":"Mozilla/5.0"}}`,
		},
	}

	client := newTestClient(t, service)

	solution, err := client.Solve(t.Context(), turnstile)
	require.NoError(t, err)

	assert.Equal(t, "0.token-value", solution.Token)
	assert.Equal(t, "Mozilla/5.0", solution.UserAgent)
	assert.Equal(t, "task-1", solution.TaskID)
	assert.Equal(t, int32(3), service.polls.Load())

	assert.Equal(t, "test-key", service.lastTask["clientKey"])
	task := service.lastTask["task"].(map[string]any)
	assert.Equal(t, AntiTurnstileTaskProxyLess, task["type"])
	assert.Equal(t, turnstile.WebsiteURL, task["websiteURL"])
	assert.Equal(t, turnstile.WebsiteKey, task["websiteKey"])
	assert.NotContains(t, task, "metadata")

	assert.Equal(t, "task-1", service.lastPoll["taskId"])
}

func TestTaskClientNumericTaskID(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":72345678901}`,
		results:        []string{`{"errorId":0,"status":"ready","solution":{"gRecaptchaResponse":"03AGdBq"}}`},
	}

	client := newTestClient(t, service, WithProvider(Provider2Captcha))

	solution, err := client.Solve(t.Context(), Challenge{
		Type:       ReCaptchaV2TaskProxyLess,
		WebsiteURL: "https://example.com",
		WebsiteKey: "6Le-wvkSAAAAAPBMRTvw0Q4Muexq9bi0DJwx_mJ-",
	})
	require.NoError(t, err)

	assert.Equal(t, "03AGdBq", solution.Token)
	assert.Equal(t, float64(72345678901), service.lastPoll["taskId"])
}

func TestTaskClientDigitStringTaskID(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"7654321"}`,
		results:        []string{`{"errorId":0,"status":"ready","solution":{"token":"x"}}`},
	}

	client := newTestClient(t, service)

	solution, err := client.Solve(t.Context(), turnstile)
	require.NoError(t, err)

	assert.Equal(t, "7654321", solution.TaskID)
	assert.Equal(t, "7654321", service.lastPoll["taskId"])
}

func TestTaskClientCancelInFlight(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	client := newTestClient(t, handler)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()

	var err error
	require.NotPanics(t, func() {
		_, err = client.Solve(ctx, turnstile)
	})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTaskClientMetadata(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"t"}`,
		results:        []string{`{"errorId":0,"status":"ready","solution":{"token":"x"}}`},
	}

	client := newTestClient(t, service)

	challenge := turnstile
	challenge.Action = "login"
	challenge.CData = "0000"
	_, err := client.Solve(t.Context(), challenge)
	require.NoError(t, err)

	task := service.lastTask["task"].(map[string]any)
	assert.Equal(t, map[string]any{"action": "login", "cdata": "0000"}, task["metadata"])
}

func TestTaskClientCreateError(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":1,"errorCode":"ERROR_KEY_DOES_NOT_EXIST","errorDescription":"Account authorization key not found"}`,
	}

	client := newTestClient(t, service)

	_, err := client.Solve(t.Context(), turnstile)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ERROR_KEY_DOES_NOT_EXIST", apiErr.Code)
	assert.Equal(t, "capsolver", apiErr.Provider)
	assert.Zero(t, service.polls.Load())
}

func TestTaskClientFailedTask(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"t"}`,
		results:        []string{`{"errorId":0,"status":"failed","errorCode":"ERROR_CAPTCHA_UNSOLVABLE"}`},
	}

	client := newTestClient(t, service)

	_, err := client.Solve(t.Context(), turnstile)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ERROR_CAPTCHA_UNSOLVABLE", apiErr.Code)
}

func TestTaskClientEmptyToken(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"t"}`,
		results:        []string{`{"errorId":0,"status":"ready","solution":{}}`},
	}

	client := newTestClient(t, service)

	_, err := client.Solve(t.Context(), turnstile)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTaskClientMaxAttempts(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"t"}`,
		results:        []string{`{"errorId":0,"status":"processing"}`},
	}

	client := newTestClient(t, service, WithMaxAttempts(3))

	_, err := client.Solve(t.Context(), turnstile)
	assert.ErrorIs(t, err, ErrTaskTimeout)
	assert.Equal(t, int32(3), service.polls.Load())
}

func TestTaskClientContextCancel(t *testing.T) {
	service := &fakeService{
		t:              t,
		createResponse: `{"errorId":0,"taskId":"t"}`,
		results:        []string{`{"errorId":0,"status":"processing"}`},
	}

	client := newTestClient(t, service, WithPollInterval(time.Hour))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Solve(ctx, turnstile)
	assert.Error(t, err)
	assert.Zero(t, service.polls.Load())
}

func TestTaskClientHTTPStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Solve(t.Context(), turnstile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTaskClientValidation(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	client := newTestClient(t, handler)
	_, err := client.Solve(t.Context(), Challenge{Type: AntiTurnstileTaskProxyLess, WebsiteURL: "https://example.com"})
	assert.Error(t, err)

	noKey := NewTaskClient("", WithBaseURL("http://127.0.0.1:1"))
	_, err = noKey.Solve(t.Context(), turnstile)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	assert.Zero(t, requests.Load())
}

func TestTaskIDJSON(t *testing.T) {
	var id TaskID

	require.NoError(t, json.Unmarshal([]byte(`"61138bb6-19fb-11ec-a9c8-0242ac110006"`), &id))
	assert.Equal(t, TaskID{Value: "61138bb6-19fb-11ec-a9c8-0242ac110006"}, id)

	require.NoError(t, json.Unmarshal([]byte(`7654321`), &id))
	assert.Equal(t, TaskID{Value: "7654321", Numeric: true}, id)
	assert.Equal(t, "7654321", id.String())

	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))

	tests := []struct {
		in  string
		out string
	}{
		{in: `7654321`, out: `7654321`},
		{in: `"7654321"`, out: `"7654321"`},
		{in: `"abc"`, out: `"abc"`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id TaskID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))

			data, err := json.Marshal(id)
			require.NoError(t, err)
			assert.Equal(t, tt.out, string(data))
		})
	}
}

func TestProviderByName(t *testing.T) {
	provider, err := ProviderByName("2Captcha")
	require.NoError(t, err)
	assert.Equal(t, Provider2Captcha, provider)

	_, err = ProviderByName("deathbycaptcha")
	assert.Error(t, err)
}
