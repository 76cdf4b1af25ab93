package store

import (
	"time"

	"go.uber.org/zap"
)

// DefaultBlockedTimeout is how long an upgrade waits for other connections to close
const DefaultBlockedTimeout = 5 * time.Second

// Option for the Opener
type Option func(*Opener)

// Logger for the Opener
func Logger(l *zap.Logger) Option {
	return func(o *Opener) {
		if l != nil {
			o.l = l
		}
	}
}

// BlockedTimeout sets how long a structural upgrade waits for other connections to close
func BlockedTimeout(d time.Duration) Option {
	return func(o *Opener) {
		if d > 0 {
			o.blockedTimeout = d
		}
	}
}
