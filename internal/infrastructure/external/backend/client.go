// Package backend implements the client for the homework backend API.
// The backend owns homework generation, feedback generation, profile analysis
// and the student's homework and submission records.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/langflow/ai-teacher/internal/domain/tutoring"
	"github.com/langflow/ai-teacher/pkg/circuitbreaker"
	"github.com/langflow/ai-teacher/pkg/logger"
	"github.com/langflow/ai-teacher/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL, e.g. http://backend:8000
	BaseURL string

	// APIKey is sent as a bearer token when set
	APIKey string

	// Timeout is the per-request HTTP timeout. Generation endpoints call an
	// LLM on the other side, so it is generous.
	Timeout time.Duration

	// RequestsPerSecond and Burst bound the outgoing request rate.
	RequestsPerSecond float64
	Burst             int

	// Retrier overrides the retry policy. Defaults to retry.BackendRetrier().
	Retrier *retry.Retrier

	// Breaker overrides the circuit breaker.
	Breaker *circuitbreaker.CircuitBreaker

	// Logger for structured logging
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		Timeout:           90 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend api error: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// RateLimitError is returned on 429 responses.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "backend rate limit exceeded, retry after " + e.RetryAfter.String()
}

func (e *RateLimitError) Unwrap() error {
	return tutoring.ErrBackendRateLimited
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the backend API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
}

// NewClient creates a new backend client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 90 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	log := config.Logger.With(logger.Component("backend_client"))

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	breaker := config.Breaker
	if breaker == nil {
		breaker = circuitbreaker.BackendAPIBreaker(
			func(err error) bool { return !tutoring.IsPermanent(err) && !isContextError(err) },
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
		)
	}

	retrier := config.Retrier
	if retrier == nil {
		retrier = retry.BackendRetrier()
	}
	retrier = retrier.With(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("retrying backend request",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}))

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     log,
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    breaker,
		retrier:    retrier,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GenerateHomework asks the backend to create and assign a homework task.
func (c *Client) GenerateHomework(ctx context.Context, req tutoring.HomeworkRequest) (tutoring.GeneratedHomework, error) {
	body := GenerateHomeworkRequestDTO{
		HomeworkTopic:      req.Topic,
		LanguageLevel:      string(req.Level),
		StudentStressLevel: string(req.Stress),
		ChatContext:        chatContextToDTO(req.Conversation),
		StudentID:          req.StudentID,
	}

	var resp GenerateHomeworkResponseDTO
	if err := c.doRequest(ctx, http.MethodPost, "/homework/generate/", body, &resp); err != nil {
		return tutoring.GeneratedHomework{}, fmt.Errorf("generate homework: %w", err)
	}
	return generatedHomeworkFromDTO(resp), nil
}

// GenerateFeedback asks the backend to grade a submission.
func (c *Client) GenerateFeedback(ctx context.Context, req tutoring.FeedbackRequest) (tutoring.GeneratedFeedback, error) {
	body := GenerateFeedbackRequestDTO{
		HomeworkTitle:       req.Title,
		HomeworkDescription: req.Description,
		SubmissionText:      req.SubmissionText,
		SubmissionID:        req.SubmissionID,
		ChatContext:         chatContextToDTO(req.Conversation),
		StudentID:           req.StudentID,
	}

	var resp GenerateFeedbackResponseDTO
	if err := c.doRequest(ctx, http.MethodPost, "/feedback/generate/", body, &resp); err != nil {
		return tutoring.GeneratedFeedback{}, fmt.Errorf("generate feedback: %w", err)
	}

	fb := generatedFeedbackFromDTO(resp)
	if fb.Title == "" {
		fb.Title = req.Title
	}
	if err := fb.Validate(); err != nil {
		return tutoring.GeneratedFeedback{}, fmt.Errorf("generate feedback: %w: %w", tutoring.ErrBackendInvalidResponse, err)
	}
	return fb, nil
}

// AnalyzeProfile asks the backend to refresh the student's learning profile.
func (c *Client) AnalyzeProfile(ctx context.Context, req tutoring.AnalysisRequest) (tutoring.ProfileAnalysis, error) {
	body := AnalysisRequestDTO{
		UserID:            req.StudentID,
		ChatContext:       chatContextToDTO(req.Conversation),
		CurrentProfile:    req.CurrentProfile,
		SeenWithinProfile: nonNil(req.ProfileIDs),
		StagedHomeworkIDs: nonNil(req.StagedIDs),
		AspectToAnalyze:   req.Aspect,
	}

	path := "/users/analysis/" + url.PathEscape(req.StudentID)

	var resp AnalysisResponseDTO
	if err := c.doRequest(ctx, http.MethodPost, path, body, &resp); err != nil {
		return tutoring.ProfileAnalysis{}, fmt.Errorf("analyze profile: %w", err)
	}
	return analysisFromDTO(resp), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOKUP OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchHomeworkForStudent returns all homework assigned to the student.
func (c *Client) FetchHomeworkForStudent(ctx context.Context, studentID string) ([]tutoring.Homework, error) {
	var resp []HomeworkDTO
	path := "/homework/student/" + url.PathEscape(studentID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch homework for student %s: %w", studentID, err)
	}
	return homeworkListFromDTO(resp), nil
}

// FetchSubmissionsForStudent returns all submissions made by the student.
func (c *Client) FetchSubmissionsForStudent(ctx context.Context, studentID string) ([]tutoring.Submission, error) {
	var resp []SubmissionDTO
	path := "/submissions/student/" + url.PathEscape(studentID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch submissions for student %s: %w", studentID, err)
	}
	return submissionListFromDTO(resp), nil
}

// FetchHomeworkByID returns a single homework task.
func (c *Client) FetchHomeworkByID(ctx context.Context, homeworkID string) (tutoring.Homework, error) {
	var resp HomeworkDTO
	path := "/homework/" + url.PathEscape(homeworkID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if tutoring.IsNotFound(err) {
			return tutoring.Homework{}, fmt.Errorf("%w: %s", tutoring.ErrHomeworkNotFound, homeworkID)
		}
		return tutoring.Homework{}, fmt.Errorf("fetch homework %s: %w", homeworkID, err)
	}
	return homeworkFromDTO(resp), nil
}

// GetUserByTelegramID resolves a Telegram account to a backend user.
func (c *Client) GetUserByTelegramID(ctx context.Context, telegramID int64) (tutoring.User, error) {
	var resp UserDTO
	path := "/users/by_telegram_id/" + strconv.FormatInt(telegramID, 10)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if tutoring.IsNotFound(err) {
			return tutoring.User{}, fmt.Errorf("%w: telegram id %d", tutoring.ErrUserNotFound, telegramID)
		}
		return tutoring.User{}, fmt.Errorf("get user by telegram id %d: %w", telegramID, err)
	}
	return userFromDTO(resp), nil
}

// Ping checks backend availability. It bypasses retries and the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.doSingleRequest(ctx, http.MethodGet, "/health", nil, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request through the breaker with retries.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	start := time.Now()

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
			err := c.doSingleRequest(ctx, method, path, body, result)
			return c.classify(err)
		})
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", tutoring.ErrBackendUnavailable, err)
	}

	if err != nil {
		c.logger.Debug("backend request failed",
			logger.String("method", method),
			logger.String("path", path),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return err
	}

	c.logger.Debug("backend request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Latency(time.Since(start)),
	)
	return nil
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body, result any) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", tutoring.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", tutoring.ErrBackendUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		_ = json.Unmarshal(respBody, &apiErr)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiErr.Message(),
			Kind:       kindForStatus(resp.StatusCode),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: unmarshal response: %w", tutoring.ErrInvalidFormat, err)
		}
	}

	return nil
}

// classify marks err for the retrier.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	if isContextError(err) {
		return retry.Permanent(err)
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return retry.Retryable(err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusRequestTimeout {
			return retry.Retryable(err)
		}
		return retry.Permanent(err)
	}

	var netErr net.Error
	if errors.Is(err, tutoring.ErrBackendUnavailable) || errors.As(err, &netErr) {
		return retry.Retryable(err)
	}

	return retry.Permanent(err)
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return tutoring.ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return tutoring.ErrValidation
	case status == http.StatusUnauthorized:
		return tutoring.ErrUnauthorized
	case status == http.StatusForbidden:
		return tutoring.ErrForbidden
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return tutoring.ErrBackendTimeout
	case status >= 500:
		return tutoring.ErrServiceUnavailable
	default:
		return tutoring.ErrExternalService
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
