package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// RateLimit creates a middleware limiting request rate per client IP.
// The store is injected by the caller rather than held in package state,
// so separate routers (and tests) never share limiter state. The format
// string follows limiter conventions, e.g. "30-M" for 30 per minute.
func RateLimit(store limiter.Store, format string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(format)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", format, err)
	}

	return mgin.NewMiddleware(limiter.New(store, rate)), nil
}
