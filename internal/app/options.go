package app

import "time"

// Options tune the use cases. Zero values fall back to defaults.
type Options struct {
	// CodeAttempts bounds join code generation retries on collisions.
	CodeAttempts int
	// MaxRetries bounds leaderboard recomputation attempts on write conflicts.
	MaxRetries   int
	RetryBackoff time.Duration
	// RefreshInterval is how often a session pulls quiz state while its push subscription is down.
	RefreshInterval time.Duration
	// IdleTimeout is how long a detached session survives before it is abandoned.
	IdleTimeout   time.Duration
	SubmitTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = 5
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 20 * time.Millisecond
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 10 * time.Minute
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 10 * time.Second
	}
	return o
}
