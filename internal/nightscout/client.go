// Package nightscout provides a client for interacting with the Nightscout API
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Required for Nightscout API secret hashing (legacy API requirement)
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mrcode/glucose-calculator/internal/models"
)

// Breaker defaults
const (
	breakerFailures = 3
	breakerOpenFor  = 30 * time.Second
	breakerInterval = time.Minute
)

// ErrUnavailable is returned while the circuit breaker rejects requests
var ErrUnavailable = errors.New("nightscout temporarily unavailable")

// APIError is a non-2xx response from Nightscout
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// Client handles communication with the Nightscout API
type Client struct {
	baseURL    string
	apiSecret  string
	apiToken   string
	useToken   bool
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new Nightscout client
func NewClient(baseURL, apiSecret, apiToken string, useToken bool) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		apiToken:  apiToken,
		useToken:  useToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: newBreaker("nightscout"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerInterval,
		Timeout:  breakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		// client errors mean bad settings, not an unhealthy server
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil
		},
	})
}

// hashSecret generates SHA1 hash of the API secret
// Note: SHA1 is required for Nightscout API compatibility
func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // Required for Nightscout API
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

// buildRequest creates an HTTP request with proper authentication
func (c *Client) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if c.useToken && c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	} else if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}

	return req, nil
}

// get executes a GET through the circuit breaker and returns the response body
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := c.buildRequest(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// doRequest executes an HTTP request and returns the response body
func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// GetStatus retrieves the Nightscout server status
func (c *Client) GetStatus(ctx context.Context) (*models.ServerStatus, error) {
	body, err := c.get(ctx, "/api/v1/status", nil)
	if err != nil {
		return nil, err
	}

	var status models.ServerStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}

	return &status, nil
}

// GetCurrentEntry retrieves the most recent glucose entry
func (c *Client) GetCurrentEntry(ctx context.Context) (*models.GlucoseEntry, error) {
	params := url.Values{}
	params.Set("count", "1")

	body, err := c.get(ctx, "/api/v1/entries/current", params)
	if err != nil {
		return nil, err
	}

	// Current endpoint returns a single object or array
	var entry models.GlucoseEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		var entries []models.GlucoseEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("parsing entry: %w", err)
		}
		if len(entries) > 0 {
			return &entries[0], nil
		}
		return nil, fmt.Errorf("no entries returned")
	}

	return &entry, nil
}

// GetEntries retrieves glucose entries for a time range
func (c *Client) GetEntries(ctx context.Context, from, to time.Time, count int) ([]models.GlucoseEntry, error) {
	params := url.Values{}

	if !from.IsZero() {
		params.Set("find[date][$gte]", strconv.FormatInt(from.UnixMilli(), 10))
	}
	if !to.IsZero() {
		params.Set("find[date][$lte]", strconv.FormatInt(to.UnixMilli(), 10))
	}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	return c.getEntries(ctx, params)
}

// GetRecentEntries retrieves the most recent N entries, newest first
func (c *Client) GetRecentEntries(ctx context.Context, count int) ([]models.GlucoseEntry, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	return c.getEntries(ctx, params)
}

func (c *Client) getEntries(ctx context.Context, params url.Values) ([]models.GlucoseEntry, error) {
	body, err := c.get(ctx, "/api/v1/entries/sgv", params)
	if err != nil {
		return nil, err
	}

	var entries []models.GlucoseEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing entries: %w", err)
	}

	return entries, nil
}

// TestConnection tests if the connection to Nightscout works
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetStatus(ctx)
	return err
}
