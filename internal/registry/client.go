package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Modrinth v2 API root
	DefaultBaseURL = "https://api.modrinth.com/v2"

	// DefaultUserAgent identifies the installer to the registry
	DefaultUserAgent = "KingRainbow44/modpack-installer"

	// ResetHeader carries the seconds until the rate limit window resets
	ResetHeader = "X-Ratelimit-Reset"

	// defaultResetSeconds is used when a 429 carries no usable reset header
	defaultResetSeconds = 60

	// maxJSONResponseBytes bounds registry JSON bodies (10 MB)
	maxJSONResponseBytes = 10 << 20
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client queries the registry API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	sleep      SleepFunc
	logger     *zap.Logger
}

// Option configures a Client during construction
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the API base URL
func WithBaseURL(base string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithRateLimit paces outgoing requests with a token bucket.
// A non-positive rps disables pacing.
func WithRateLimit(rps, burst int) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSleep replaces the function used to wait out a rate limit
func WithSleep(fn SleepFunc) Option {
	return func(cl *Client) {
		cl.sleep = fn
	}
}

// WithLogger sets the logger used for rate limit notices
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a new registry client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		sleep:      sleepContext,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserAgent returns the User-Agent header value
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Fetch issues a GET for path relative to the base URL and returns the body.
// A 429 response is never returned: the client waits X-Ratelimit-Reset+1
// seconds and re-issues the request until a different status arrives.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	target := c.baseURL + path

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{URL: target, Err: err}
			}
		}

		resp, err := c.do(ctx, target)
		if err != nil {
			return nil, &TransportError{URL: target, Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := resetDelay(resp.Header.Get(ResetHeader))
			drain(resp)

			c.logger.Warn("hit a rate limit, waiting",
				zap.String("url", target),
				zap.Duration("wait", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, &TransportError{URL: target, Err: err}
			}
			c.logger.Debug("retrying", zap.String("url", target))
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drain(resp)
			return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
		resp.Body.Close()
		if err != nil {
			return nil, &TransportError{URL: target, Err: err}
		}
		return body, nil
	}
}

// GetProject fetches the metadata of a project by id or slug
func (c *Client) GetProject(ctx context.Context, id string) (*model.PackageInfo, error) {
	path := "/project/" + url.PathEscape(id)
	info := &model.PackageInfo{}
	if err := c.getJSON(ctx, path, info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetVersion fetches a single release of a project
func (c *Client) GetVersion(ctx context.Context, projectID, versionID string) (*model.ReleaseInfo, error) {
	path := fmt.Sprintf("/project/%s/version/%s", url.PathEscape(projectID), url.PathEscape(versionID))
	release := &model.ReleaseInfo{}
	if err := c.getJSON(ctx, path, release); err != nil {
		return nil, err
	}
	return release, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.Fetch(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: c.baseURL + path, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

// resetDelay converts the reset header into the wait before retrying
func resetDelay(header string) time.Duration {
	seconds, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil || seconds < 0 {
		seconds = defaultResetSeconds
	}
	return time.Duration(seconds+1) * time.Second
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
