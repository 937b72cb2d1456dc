package transfer

import (
	"context"
	"time"

	"github.com/bitfsorg/libbabel-go/storage"
)

// Options tune the transfer pipelines.
type Options struct {
	MaxAttempts int           // store attempts per chunk
	BaseDelay   time.Duration // backoff after the first failed attempt; doubles each time
	Throttle    time.Duration // pause between confirmed chunks
	CallTimeout time.Duration // bound on each store call
	PageLimit   int           // maximum encoded chunk length
	ChunkSize   int           // raw bytes per chunk
}

// DefaultOptions returns the protocol defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		Throttle:    1500 * time.Millisecond,
		CallTimeout: 60 * time.Second,
		PageLimit:   storage.MaxPageSize,
		ChunkSize:   storage.DefaultChunkSize,
	}
}

// withDefaults fills zero fields from DefaultOptions. Negative delays are
// treated as zero.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.Throttle == 0 {
		o.Throttle = d.Throttle
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.PageLimit <= 0 {
		o.PageLimit = d.PageLimit
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	o.BaseDelay = max(o.BaseDelay, 0)
	o.Throttle = max(o.Throttle, 0)
	return o
}

// backoff returns the delay after the given failed attempt (1-based).
func (o Options) backoff(attempt int) time.Duration {
	return o.BaseDelay << (attempt - 1)
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
