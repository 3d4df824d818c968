package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of consuming one request from a window.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfterSeconds returns the whole seconds until the window resets,
// never less than one.
func (r Result) RetryAfterSeconds(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter consumes one request for key against limit per window.
type Limiter interface {
	Consume(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// WindowStart aligns now to the start of its fixed window.
func WindowStart(now time.Time, window time.Duration) time.Time {
	ms := window.Milliseconds()
	if ms <= 0 {
		return now
	}
	start := (now.UnixMilli() / ms) * ms
	return time.UnixMilli(start)
}

// Key builds the limiter key for a route and user.
func Key(route, userID string) string {
	return route + ":" + userID
}

// Policy is the request budget of one route.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Route names used as the first part of limiter keys.
const (
	RouteThreadsGet        = "threads_get"
	RouteClassifyPost      = "classify_post"
	RouteBucketsPost       = "buckets_post"
	RouteChatSearchPost    = "chat_search_post"
	RouteMessageDetailPost = "message_detail_post"
	RouteMessagesCheckNew  = "messages_check_new_post"
)

// DefaultWindow is the window of every default policy.
const DefaultWindow = time.Minute

// DefaultPolicies returns the per-minute budgets of the API routes.
// Logout is not limited.
func DefaultPolicies() map[string]Policy {
	window := DefaultWindow
	return map[string]Policy{
		RouteThreadsGet:        {Limit: 30, Window: window},
		RouteClassifyPost:      {Limit: 20, Window: window},
		RouteBucketsPost:       {Limit: 15, Window: window},
		RouteChatSearchPost:    {Limit: 30, Window: window},
		RouteMessageDetailPost: {Limit: 60, Window: window},
		RouteMessagesCheckNew:  {Limit: 90, Window: window},
	}
}
