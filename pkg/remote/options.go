package remote

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRetries is the number of retries of a failed fetch
	DefaultRetries = 3

	defaultRetryInterval = 200 * time.Millisecond
)

// Option for the Fetcher
type Option func(*Fetcher)

// Logger for the Fetcher
func Logger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.l = l
		}
	}
}

// Retries sets how many times a failed fetch is retried. 0 disables retries.
func Retries(n uint64) Option {
	return func(f *Fetcher) {
		f.retries = n
	}
}

// RetryInterval sets the initial interval between retries, which grows exponentially
func RetryInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.retryInterval = d
		}
	}
}
