package replica

import "go.uber.org/zap"

// Option for a Session
type Option func(*Session)

// WithConfig sets the session configuration.
//
// Zero values take defaults, except CommitRetries where 0 disables retries.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg.withDefaults()
	}
}

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.l = l
		}
	}
}

// WithProgress sets a callback receiving download progress.
//
// The callback is called from the goroutines fetching files, one call at a time.
func WithProgress(fn func(Progress)) Option {
	return func(s *Session) {
		if fn != nil {
			s.progress = fn
		}
	}
}

// WithMetrics toggles metrics collection
func WithMetrics(enabled bool) Option {
	return func(s *Session) {
		s.EnableMetrics(enabled)
	}
}
