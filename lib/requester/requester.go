package requester

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"stockharvest-backend/lib/proxy"
	"stockharvest-backend/lib/ratelimit"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/requester")

// Client issues one logical HTTP request with bounded retries, exponential
// backoff, and status-aware retry policy. The rate limiter and proxy rotator
// are injected collaborators; both may be nil, which disables throttling and
// proxying respectively.
type Client struct {
	http    *resty.Client
	limiter *ratelimit.Limiter
	proxies *proxy.Rotator
	opts    Options
}

type Options struct {
	// RetryLimit is the maximum attempt count per logical request. Values
	// below 1 are treated as 1.
	RetryLimit int `json:"retry_limit"`
	// BackoffBase seeds the exponential backoff: min(base * 2^attempt, cap).
	BackoffBase time.Duration `json:"backoff_base"`
	BackoffCap  time.Duration `json:"backoff_cap"`
}

// Request describes one logical request. AllowedStatuses lists response
// codes that are acceptable terminal answers (e.g. 404 on an optional
// endpoint): they are returned immediately, bypassing retry.
type Request struct {
	Method          string
	URL             string
	Params          map[string]string
	Headers         map[string]string
	AllowedStatuses []int
}

// StatusError reports a response that exhausted the retry budget or was a
// non-retryable client error.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

func New(httpClient *resty.Client, limiter *ratelimit.Limiter, proxies *proxy.Rotator, opts Options) *Client {
	if opts.RetryLimit < 1 {
		opts.RetryLimit = 1
	}
	if opts.BackoffCap < opts.BackoffBase {
		opts.BackoffCap = opts.BackoffBase
	}
	return &Client{
		http:    httpClient,
		limiter: limiter,
		proxies: proxies,
		opts:    opts,
	}
}

func (c *Client) Http() *resty.Client {
	return c.http
}

func allowed(status int, list []int) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryAfter parses a Retry-After header as delay seconds. Dates are not
// supported, the upstream APIs only send seconds.
func retryAfter(res *resty.Response) time.Duration {
	if res == nil {
		return 0
	}
	raw := res.Header().Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// backoffDelay computes the pause before the next attempt. attempt is
// zero-based. status is 0 for transport-level failures.
func backoffDelay(attempt, status int, retryAfter, base, cap time.Duration) time.Duration {
	delay := base << uint(attempt)
	if delay > cap || delay < 0 {
		delay = cap
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	switch {
	case status == http.StatusTooManyRequests:
		// an explicit server-issued slow-down instruction, floor it hard
		floor := base
		if floor < time.Second*5 {
			floor = time.Second * 5
		}
		if delay < floor {
			delay = floor
		}
	case status >= 500:
		floor := base
		if floor <= 0 {
			floor = time.Second * 2
		}
		if delay < floor {
			delay = floor
		}
	case status == 0 && delay <= 0:
		floor := base
		if floor < time.Second {
			floor = time.Second
		}
		delay = floor
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func jitter() time.Duration {
	ms, err := random.IntRange(0, 1001)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Do performs the request, retrying transient failures (429, 5xx, transport
// errors) with exponential backoff until the retry budget is exhausted.
// Other 4xx statuses fail immediately. The computed backoff is fed into the
// shared rate limiter so sibling call sites also slow down.
func (c *Client) Do(ctx context.Context, req Request) (*resty.Response, error) {
	ctx, span := tracer.Start(ctx, "Do")
	defer span.End()
	span.SetAttributes(
		attribute.String("method", req.Method),
		attribute.String("url", req.URL),
	)

	var lastErr error
	for attempt := 0; attempt < c.opts.RetryLimit; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "interrupted while throttled")
			return nil, err
		}

		if cur := c.proxies.Current(); cur != "" {
			c.http.SetProxy(cur)
		} else {
			c.http.RemoveProxy()
		}

		r := c.http.R().SetContext(ctx)
		if len(req.Params) > 0 {
			r.SetQueryParams(req.Params)
		}
		if len(req.Headers) > 0 {
			r.SetHeaders(req.Headers)
		}

		res, err := r.Execute(req.Method, req.URL)

		status := 0
		if err == nil {
			status = res.StatusCode()
		}

		switch {
		case err != nil:
			// no response received at all
			lastErr = err
		case allowed(status, req.AllowedStatuses):
			return res, nil
		case status < 400:
			return res, nil
		case retryable(status):
			lastErr = &StatusError{StatusCode: status, URL: req.URL}
		default:
			// other 4xx: retrying will not change the answer
			statusErr := &StatusError{StatusCode: status, URL: req.URL}
			span.RecordError(statusErr)
			span.SetStatus(codes.Error, "non-retryable status")
			return res, statusErr
		}

		delay := backoffDelay(attempt, status, retryAfter(res), c.opts.BackoffBase, c.opts.BackoffCap)
		total := delay + jitter()

		slog.WarnContext(ctx, "request attempt failed",
			"method", req.Method,
			"url", req.URL,
			"attempt", attempt+1,
			"status", status,
			"backoff", total,
			"err", lastErr,
		)

		if c.limiter != nil {
			c.limiter.Penalise(total)
		} else if total > 0 {
			timer := time.NewTimer(total)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		if status == http.StatusTooManyRequests || err != nil {
			c.proxies.Rotate()
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "retry budget exhausted")
	return nil, lastErr
}
