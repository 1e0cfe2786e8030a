package syndicate

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RetryPolicy is a named, bounded retry policy injected into the HTTP-driven
// adapters. MaxRetries counts retries after the first attempt.
type RetryPolicy struct {
	MaxRetries int
	Wait       time.Duration
	Timeout    time.Duration
}

// DefaultRetryPolicy suits small metadata calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Wait: time.Second, Timeout: 30 * time.Second}
}

// MediaRetryPolicy suits binary transfers, which need larger timeouts.
func MediaRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Wait: 2 * time.Second, Timeout: 5 * time.Minute}
}

// NewHTTPClient builds an *http.Client applying the policy: fixed wait
// between attempts, transient 5xx and connection errors retried, everything
// else returned as-is for classification.
func NewHTTPClient(policy RetryPolicy) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = policy.MaxRetries
	rc.RetryWaitMin = policy.Wait
	rc.RetryWaitMax = policy.Wait
	rc.HTTPClient.Timeout = policy.Timeout
	rc.Logger = nil

	client := rc.StandardClient()
	client.Timeout = policy.Timeout
	return client
}
