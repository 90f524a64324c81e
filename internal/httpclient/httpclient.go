// Package httpclient builds the single retrying HTTP client shared by every
// posting-platform adapter and the upload engine's blob downloads (the
// Telegram wrapper uses its bot library's own client). Requests carry an
// exponential-backoff retry policy (100ms to 2s per attempt, 10s total
// budget); retries are internal to the client, so callers see one logical
// request.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/snowpity/postingcache/internal/logging"
)

// Options configures the retry policy. Zero values fall back to the
// defaults above.
type Options struct {
	MinRetryWait time.Duration
	MaxRetryWait time.Duration
	TotalBudget  time.Duration
	MaxRetries   int
}

func (o Options) withDefaults() Options {
	if o.MinRetryWait == 0 {
		o.MinRetryWait = 100 * time.Millisecond
	}
	if o.MaxRetryWait == 0 {
		o.MaxRetryWait = 2 * time.Second
	}
	if o.TotalBudget == 0 {
		o.TotalBudget = 10 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	return o
}

// New returns a standard *http.Client backed by retryablehttp's
// exponential-backoff transport, with the client's own Timeout enforcing
// the total budget across all retry attempts.
func New(opts Options) *http.Client {
	opts = opts.withDefaults()

	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = opts.MinRetryWait
	rc.RetryWaitMax = opts.MaxRetryWait
	rc.RetryMax = opts.MaxRetries
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logging.Debugf("retrying %s %s (attempt %d)", req.Method, req.URL.Redacted(), attempt)
		}
	}

	std := rc.StandardClient()
	std.Timeout = opts.TotalBudget
	return std
}
