package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxRateLimitBackoff = 120 * time.Second
	minBackoffInterval  = 5 * time.Second
	baseRateLimitWait   = 5 * time.Second
)

// RateLimitError is returned when the upstream answered 429 Too Many Requests
type RateLimitError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s, retry after %s", e.Policy, e.RetryAfter)
}

// rateLimitRule is one "requests:period:timeout" triple of an X-Rate-Limit header
type rateLimitRule struct {
	Requests int
	Period   int
	Timeout  int
}

// AdaptiveLimiter spaces requests to a rate-limited API. It slows down as the
// X-Rate-Limit-*-State headers report usage, backs off on 429 and recovers
// gradually after successes.
type AdaptiveLimiter struct {
	policy          string
	defaultInterval time.Duration

	mu              sync.Mutex
	limiter         *rate.Limiter
	interval        time.Duration
	limits          map[string][]rateLimitRule
	states          map[string][]rateLimitRule
	consecutive429s int
	backoffUntil    time.Time
	now             func() time.Time
}

func NewAdaptiveLimiter(policy string, defaultInterval time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		policy:          policy,
		defaultInterval: defaultInterval,
		limiter:         rate.NewLimiter(rate.Every(defaultInterval), 1),
		interval:        defaultInterval,
		limits:          make(map[string][]rateLimitRule),
		states:          make(map[string][]rateLimitRule),
		now:             time.Now,
	}
}

// Wait blocks until the next request may be sent
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	backoff := l.backoffUntil.Sub(l.now())
	limiter := l.limiter
	l.mu.Unlock()

	if backoff > 0 {
		debugLog("%s limiter: backing off for %s", l.policy, backoff)
		if err := sleepContext(ctx, backoff); err != nil {
			return err
		}
	}
	return limiter.Wait(ctx)
}

// Interval returns the current spacing between requests
func (l *AdaptiveLimiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// ParseHeaders reads X-Rate-Limit-Rules and the per-rule limit and state headers
func (l *AdaptiveLimiter) ParseHeaders(h http.Header) {
	rules := h.Get("X-Rate-Limit-Rules")
	if rules == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rule := range strings.Split(rules, ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if v := h.Get("X-Rate-Limit-" + rule); v != "" {
			l.limits[rule] = parseRateLimitRules(v)
		}
		if v := h.Get("X-Rate-Limit-" + rule + "-State"); v != "" {
			l.states[rule] = parseRateLimitRules(v)
		}
	}

	l.updateIntervalLocked()
}

// parseRateLimitRules parses "5:5:10,10:10:30"; malformed triples are skipped
func parseRateLimitRules(header string) []rateLimitRule {
	var rules []rateLimitRule
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			continue
		}
		var nums [3]int
		ok := true
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				ok = false
				break
			}
			nums[i] = n
		}
		if ok {
			rules = append(rules, rateLimitRule{Requests: nums[0], Period: nums[1], Timeout: nums[2]})
		}
	}
	return rules
}

func (l *AdaptiveLimiter) updateIntervalLocked() {
	if len(l.limits) == 0 || len(l.states) == 0 {
		return
	}

	safe := l.defaultInterval
	for rule, limits := range l.limits {
		states := l.states[rule]
		for i, limit := range limits {
			if i >= len(states) {
				continue
			}
			state := states[i]

			if state.Timeout > 0 {
				safe = maxDuration(safe, time.Duration(state.Timeout)*time.Second)
				continue
			}
			if limit.Requests <= 0 {
				continue
			}

			remaining := limit.Requests - state.Requests
			usage := float64(state.Requests) / float64(limit.Requests)
			if remaining <= 0 {
				continue
			}
			perRequest := time.Duration(float64(limit.Period) / float64(remaining) * float64(time.Second))
			switch {
			case usage > 0.8:
				safe = maxDuration(safe, perRequest*3/2)
			case usage > 0.5:
				safe = maxDuration(safe, perRequest)
			}
		}
	}

	l.setIntervalLocked(safe)
}

// Handle429 records a rate limit response and returns how long to wait.
// retryAfter of zero means the server gave no Retry-After.
func (l *AdaptiveLimiter) Handle429(retryAfter time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutive429s++
	wait := retryAfter
	if wait <= 0 {
		backoff := float64(baseRateLimitWait) * math.Pow(2, float64(l.consecutive429s-1))
		wait = time.Duration(math.Min(backoff, float64(maxRateLimitBackoff)))
	}

	l.backoffUntil = l.now().Add(wait)
	l.setIntervalLocked(maxDuration(l.interval*3/2, minBackoffInterval))
	infoLog("%s limiter: 429 #%d, waiting %s, interval now %s", l.policy, l.consecutive429s, wait, l.interval)
	return wait
}

// HandleSuccess clears the 429 streak and eases the interval back toward the default
func (l *AdaptiveLimiter) HandleSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consecutive429s == 0 {
		return
	}
	l.consecutive429s = 0
	l.setIntervalLocked(maxDuration(l.interval*9/10, l.defaultInterval))
}

func (l *AdaptiveLimiter) setIntervalLocked(d time.Duration) {
	if d == l.interval {
		return
	}
	l.interval = d
	l.limiter.SetLimit(rate.Every(d))
}

// parseRetryAfter reads a Retry-After header given in seconds
func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
