package clock

import (
	"context"
	"time"
)

type Clock interface {
	Now(ctx context.Context) time.Time
}

// Today truncates the clock's current instant to a calendar date in UTC.
func Today(ctx context.Context, c Clock) time.Time {
	now := c.Now(ctx)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
