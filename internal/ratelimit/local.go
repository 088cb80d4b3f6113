package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// LocalLimiter is a per-process token bucket refilled at rpm/60 tokens per
// second with a burst of rpm.
type LocalLimiter struct {
	lim *rate.Limiter
}

func NewLocalLimiter(rpm int) *LocalLimiter {
	return &LocalLimiter{lim: rate.NewLimiter(rate.Limit(float64(rpm)/60), rpm)}
}

func (l *LocalLimiter) Allow(context.Context) (bool, error) {
	return l.lim.Allow(), nil
}
