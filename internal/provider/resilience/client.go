package resilience

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the upstream while the
	// breaker is open or saturated in half-open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// StatusError is a retryable HTTP status from the upstream.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientConfig holds configuration for a resilient client.
type ClientConfig struct {
	// Name identifies the upstream in logs, breaker state and the Registry.
	Name string

	// Timeout bounds each attempt. Default: 10s.
	Timeout time.Duration

	// Retries is the number of attempts after the first. Default: 2.
	Retries uint64

	// MinBackoff and MaxBackoff bound the exponential delay between attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// Breaker configures the circuit breaker. Default: DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Registry, when set, tracks the outcome of every call.
	Registry *Registry

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults used for sensor sources.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:       name,
		Timeout:    10 * time.Second,
		Retries:    2,
		MinBackoff: 200 * time.Millisecond,
		MaxBackoff: 2 * time.Second,
		Breaker:    &breaker,
		Logger:     zerolog.Nop(),
	}
}

// Client is an HTTP client with a circuit breaker and retries.
// It satisfies the HTTPDoer interfaces used by the source adapters.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	config  ClientConfig
	logger  zerolog.Logger
}

// NewClient creates a Client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig(cfg.Name)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaults.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.Breaker == nil {
		cfg.Breaker = defaults.Breaker
	}

	logger := cfg.Logger.With().Str("source", cfg.Name).Logger()

	c := &Client{
		name: cfg.Name,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		breaker: newBreaker[*http.Response](*cfg.Breaker, logger), //nolint:bodyclose // type param, not response
		config:  cfg,
		logger:  logger,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(c)
	}

	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters for the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req, retrying network errors, 5xx and 429 responses with
// exponential backoff. Any other status is returned to the caller as is.
// When retries are exhausted on a bad status the last response is returned
// with a nil error so the caller can inspect it; earlier response bodies are
// drained and closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.MinBackoff
	bo.MaxInterval = c.config.MaxBackoff
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.Retries), ctx)

	var last *http.Response
	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by caller or discard
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if retryable(r.StatusCode) {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}

		discard(last)
		last = resp
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Dur("wait", wait).Str("url", req.URL.Redacted()).Msg("retrying upstream request")
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	c.record(err)

	if err != nil {
		var statusErr *StatusError
		if last != nil && errors.As(err, &statusErr) {
			return last, nil
		}
		discard(last)
		return nil, err
	}
	return last, nil
}

func (c *Client) record(err error) {
	if c.config.Registry == nil {
		return
	}
	if err != nil {
		c.config.Registry.RecordFailure(c.name, err)
		return
	}
	c.config.Registry.RecordSuccess(c.name)
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
