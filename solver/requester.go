package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/h2non/gentleman.v2"
	gcontext "gopkg.in/h2non/gentleman.v2/context"
	"gopkg.in/h2non/gentleman.v2/plugins/proxy"
	"gopkg.in/h2non/gentleman.v2/plugins/timeout"
)

const (
	DEFAULT_POLL_INTERVAL   = 5 * time.Second
	DEFAULT_MAX_ATTEMPTS    = 24
	DEFAULT_REQUEST_TIMEOUT = 30 * time.Second
)

// Task statuses of getTaskResult
const (
	statusIdle       = "idle"
	statusProcessing = "processing"
	statusReady      = "ready"
	statusFailed     = "failed"
)

// Service speaking createTask / getTaskResult protocol
type Provider struct {
	Name    string
	BaseURL string
}

var (
	ProviderCapSolver   = Provider{Name: "capsolver", BaseURL: "https://api.capsolver.com"}
	Provider2Captcha    = Provider{Name: "2captcha", BaseURL: "https://api.2captcha.com"}
	ProviderAntiCaptcha = Provider{Name: "anti-captcha", BaseURL: "https://api.anti-captcha.com"}
)

func ProviderByName(name string) (Provider, error) {
	for _, provider := range []Provider{ProviderCapSolver, Provider2Captcha, ProviderAntiCaptcha} {
		if strings.EqualFold(provider.Name, name) {
			return provider, nil
		}
	}
	return Provider{}, fmt.Errorf("unknown captcha provider %q", name)
}

// Error reported by the service
type APIError struct {
	Provider    string
	ID          int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s error %d %s: %s", e.Provider, e.ID, e.Code, e.Description)
	}
	return fmt.Sprintf("%s error %d %s", e.Provider, e.ID, e.Code)
}

// Task id. 2captcha and anti-captcha return numbers, capsolver returns strings.
// Sent back with the same JSON type it was received with
type TaskID struct {
	Value   string
	Numeric bool
}

func (id TaskID) String() string {
	return id.Value
}

func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = TaskID{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = TaskID{Value: value}
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*id = TaskID{Value: number.String(), Numeric: true}
	return nil
}

func (id TaskID) MarshalJSON() ([]byte, error) {
	if id.Numeric {
		return []byte(id.Value), nil
	}
	return json.Marshal(id.Value)
}

type createTaskRequest struct {
	ClientKey string         `json:"clientKey"`
	Task      map[string]any `json:"task"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    TaskID `json:"taskId"`
}

type apiResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

type createTaskResponse struct {
	apiResponse
	TaskID TaskID `json:"taskId"`
}

type taskResultResponse struct {
	apiResponse
	Status   string `json:"status"`
	Solution struct {
		Token              string `json:"token"`
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
		UserAgent          string `json:"userAgent"`
	} `json:"solution"`
}

// Client of createTask / getTaskResult API
type TaskClient struct {
	apiKey   string
	provider Provider

	client *gentleman.Client
	logger *zap.Logger

	proxy          string
	pollInterval   time.Duration
	maxAttempts    int
	requestTimeout time.Duration
}

type TaskOption func(*TaskClient)

func WithProvider(provider Provider) TaskOption {
	return func(c *TaskClient) {
		c.provider = provider
	}
}

// Override provider base URL, keeps provider name
func WithBaseURL(baseURL string) TaskOption {
	return func(c *TaskClient) {
		c.provider.BaseURL = baseURL
	}
}

func WithPollInterval(interval time.Duration) TaskOption {
	return func(c *TaskClient) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

func WithMaxAttempts(attempts int) TaskOption {
	return func(c *TaskClient) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

func WithRequestTimeout(d time.Duration) TaskOption {
	return func(c *TaskClient) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// Proxy for the API requests, not for the task
func WithAPIProxy(proxyURL string) TaskOption {
	return func(c *TaskClient) {
		c.proxy = proxyURL
	}
}

func WithLogger(logger *zap.Logger) TaskOption {
	return func(c *TaskClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewTaskClient(apiKey string, opts ...TaskOption) *TaskClient {
	c := &TaskClient{
		apiKey:         apiKey,
		provider:       ProviderCapSolver,
		logger:         zap.NewNop(),
		pollInterval:   DEFAULT_POLL_INTERVAL,
		maxAttempts:    DEFAULT_MAX_ATTEMPTS,
		requestTimeout: DEFAULT_REQUEST_TIMEOUT,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = gentleman.New().URL(c.provider.BaseURL)
	c.client.Use(timeout.Request(c.requestTimeout))
	if c.proxy != "" {
		c.client.Use(proxy.Set(map[string]string{"http": c.proxy, "https": c.proxy}))
	}

	return c
}

func (c *TaskClient) Provider() Provider {
	return c.provider
}

// Create task and poll its result
func (c *TaskClient) Solve(ctx context.Context, challenge Challenge) (*Solution, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	if err := challenge.Validate(); err != nil {
		return nil, err
	}

	logger := c.logger.With(zap.String("provider", c.provider.Name), zap.String("type", challenge.Type))

	taskID, err := c.createTask(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	logger.Debug("task created", zap.Stringer("task_id", taskID))

	solution, err := c.getTaskResult(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task %s result: %w", taskID, err)
	}
	logger.Debug("task solved", zap.Stringer("task_id", taskID))

	return solution, nil
}

func (c *TaskClient) createTask(ctx context.Context, challenge Challenge) (TaskID, error) {
	response := &createTaskResponse{}
	body := &createTaskRequest{ClientKey: c.apiKey, Task: taskPayload(challenge)}

	if err := c.post(ctx, "/createTask", body, response); err != nil {
		return TaskID{}, err
	}

	if response.ErrorID != 0 {
		return TaskID{}, c.apiError(response.apiResponse)
	}

	if response.TaskID.Value == "" {
		return TaskID{}, fmt.Errorf("%s returned no task id", c.provider.Name)
	}
	return response.TaskID, nil
}

func (c *TaskClient) getTaskResult(ctx context.Context, taskID TaskID) (*Solution, error) {
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)

	// Task is never ready right after creation
	limiter.Allow()

	body := &taskResultRequest{ClientKey: c.apiKey, TaskID: taskID}

	for i := 0; i < c.maxAttempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		response := &taskResultResponse{}
		if err := c.post(ctx, "/getTaskResult", body, response); err != nil {
			return nil, err
		}

		if response.ErrorID != 0 {
			return nil, c.apiError(response.apiResponse)
		}

		switch response.Status {
		case statusReady:
			token := response.Solution.Token
			if token == "" {
				token = response.Solution.GRecaptchaResponse
			}
			if token == "" {
				return nil, ErrNoToken
			}
			return &Solution{Token: token, UserAgent: response.Solution.UserAgent, TaskID: taskID.Value}, nil

		case statusFailed:
			return nil, c.apiError(response.apiResponse)

		case statusIdle, statusProcessing, "":
			continue

		default:
			return nil, fmt.Errorf("unknown task status %q", response.Status)
		}
	}

	return nil, ErrTaskTimeout
}

func (c *TaskClient) post(ctx context.Context, path string, body, out any) error {
	request := c.client.Request().
		Method(http.MethodPost).
		Path(path).
		JSON(body)

	request.UseRequest(func(gc *gcontext.Context, h gcontext.Handler) {
		h.Next(gc.SetCancelContext(ctx))
	})

	response, err := request.Send()
	if err != nil {
		return err
	}

	if !response.Ok {
		return fmt.Errorf("%s %s: unexpected status %d", c.provider.Name, path, response.StatusCode)
	}

	if err := response.JSON(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *TaskClient) apiError(response apiResponse) error {
	code := response.ErrorCode
	if code == "" && response.ErrorID == 0 {
		code = "ERROR_TASK_FAILED"
	}
	return &APIError{
		Provider:    c.provider.Name,
		ID:          response.ErrorID,
		Code:        code,
		Description: response.ErrorDescription,
	}
}

func taskPayload(challenge Challenge) map[string]any {
	task := map[string]any{
		"type":       challenge.Type,
		"websiteURL": challenge.WebsiteURL,
		"websiteKey": challenge.WebsiteKey,
	}

	if challenge.Proxy != "" {
		task["proxy"] = challenge.Proxy
	}

	if challenge.Action != "" || challenge.CData != "" {
		metadata := map[string]string{}
		if challenge.Action != "" {
			metadata["action"] = challenge.Action
		}
		if challenge.CData != "" {
			metadata["cdata"] = challenge.CData
		}
		task["metadata"] = metadata
	}

	return task
}
