package registry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryBase   = time.Second
	DefaultMaxJitter   = time.Second
)

// RetryPolicy drives the resty retry loop for registry calls: rate limiting,
// 5xx responses and transport failures are retried with exponential backoff
// plus jitter, or after the delay the registry asks for in Retry-After.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	MaxJitter   time.Duration
	Jitter      func(max time.Duration) time.Duration
}

func NewRetryPolicy(maxAttempts int, base time.Duration, maxJitter time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Base:        base,
		MaxJitter:   maxJitter,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) base() time.Duration {
	if p.Base <= 0 {
		return DefaultRetryBase
	}
	return p.Base
}

// Delay returns the wait after the given failed attempt, counted from 0.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.base()<<attempt + p.jitter()
}

// MaxDelay is the longest wait the policy allows between two attempts.
func (p RetryPolicy) MaxDelay() time.Duration {
	max := p.base() << (p.attempts() - 1)
	if p.MaxJitter > 0 {
		max += p.MaxJitter
	}
	return max
}

func (p RetryPolicy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.MaxJitter)
	}
	return rand.N(p.MaxJitter)
}

func (p RetryPolicy) apply(client *resty.Client) {
	client.
		SetRetryCount(p.attempts() - 1).
		SetRetryWaitTime(p.base()).
		SetRetryMaxWaitTime(p.MaxDelay()).
		SetRetryAfter(p.retryAfter).
		AddRetryCondition(shouldRetry)
}

func (p RetryPolicy) retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil {
		return p.Delay(0), nil
	}
	if wait, ok := parseRetryAfter(resp.Header().Get("Retry-After"), time.Now()); ok {
		return wait, nil
	}
	attempt := 0
	if resp.Request != nil && resp.Request.Attempt > 0 {
		attempt = resp.Request.Attempt - 1
	}
	return p.Delay(attempt), nil
}

func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return false
	}
	status := resp.StatusCode()
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// parseRetryAfter reads a Retry-After value given in seconds or as an HTTP
// date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil || !at.After(now) {
		return 0, false
	}
	return at.Sub(now), true
}
