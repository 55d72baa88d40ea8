package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"parking-finder-cli/model"
)

const (
	defaultBaseURL     = "http://localhost:3000"
	defaultUserAgent   = "parking-finder-cli"
	defaultMaxAttempts = 3
	defaultRetryBase   = 200 * time.Millisecond
	defaultRetryCap    = 1200 * time.Millisecond
	errorBodyLimit     = 8 << 10
)

// Client wraps HTTP access to the parking directory API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
	limiter     *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithMaxAttempts bounds how many times a read is attempted.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// APIError is returned when the parking API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "parking api error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Body != "" {
		return fmt.Sprintf("parking api error: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("parking api error: %s", e.Status)
}

// IsRejection reports whether err is an application-level rejection, i.e. the
// service answered with a non-2xx status. Any other error is a transport failure.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// RejectionMessage returns the server-provided reason carried by err, if any.
func RejectionMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// IsNotFound reports whether the error represents a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// NewClient creates a new API client. If httpClient is nil, a default client is used.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	c := &Client{
		httpClient:  httpClient,
		baseURL:     defaultBaseURL,
		userAgent:   defaultUserAgent,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		retryCap:    defaultRetryCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Nearby lists lots within radiusKm of center. An empty result is not an error.
func (c *Client) Nearby(ctx context.Context, center model.Coordinates, radiusKm float64) ([]model.ParkingLot, error) {
	if radiusKm <= 0 {
		return nil, errors.New("radius must be positive")
	}
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(center.Latitude, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(center.Longitude, 'f', -1, 64))
	query.Set("radius", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	endpoint := fmt.Sprintf("%s/api/parking/nearby?%s", c.baseURL, query.Encode())

	var lots []model.ParkingLot
	if err := c.getJSON(ctx, endpoint, &lots); err != nil {
		return nil, err
	}
	if lots == nil {
		lots = []model.ParkingLot{}
	}
	return lots, nil
}

// CreateLot registers a new parking lot.
func (c *Client) CreateLot(ctx context.Context, draft model.LotDraft) error {
	if strings.TrimSpace(draft.Name) == "" {
		return errors.New("lot name is required")
	}
	return c.postJSON(ctx, c.baseURL+"/api/parking", draft)
}

// Book reserves one spot in the lot.
func (c *Client) Book(ctx context.Context, lotID int) error {
	body := struct {
		Id string `json:"id"`
	}{Id: strconv.Itoa(lotID)}
	return c.postJSON(ctx, c.baseURL+"/api/parking/book", body)
}

// Rate submits a 1-5 rating for the lot.
func (c *Client) Rate(ctx context.Context, lotID int, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", rating)
	}
	body := struct {
		Id     string `json:"id"`
		Rating int    `json:"rating"`
	}{Id: strconv.Itoa(lotID), Rating: rating}
	return c.postJSON(ctx, c.baseURL+"/api/parking/rate", body)
}

// postJSON sends a single request; writes are never retried.
func (c *Client) postJSON(ctx context.Context, endpoint string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return newAPIError(res, endpoint)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	maxAttempts := c.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			if c.shouldRetryNetworkError(err) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
			apiErr := newAPIError(res, endpoint)
			_ = res.Body.Close()
			if c.shouldRetryStatus(res.StatusCode) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return apiErr
		}

		dec := json.NewDecoder(res.Body)
		err = dec.Decode(out)
		_ = res.Body.Close()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
		return nil
	}

	return errors.New("request failed after retries")
}

func newAPIError(res *http.Response, endpoint string) *APIError {
	snippet, _ := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
	body := strings.TrimSpace(string(snippet))
	return &APIError{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Endpoint:   endpoint,
		Body:       body,
		Message:    errorMessageFromBody(body),
	}
}

// errorMessageFromBody extracts {"message": ...} or {"error": ...} from a JSON error body.
func errorMessageFromBody(body string) string {
	if body == "" || !strings.HasPrefix(body, "{") {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) waitRetry(ctx context.Context, attempt int) error {
	delay := c.retryDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := c.retryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	limit := c.retryCap
	if limit <= 0 {
		limit = defaultRetryCap
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= limit/2 {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}
