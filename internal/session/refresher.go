// Package session keeps a client-side token set alive: it watches the
// access token's expiry and exchanges the refresh token shortly before
// the deadline, so callers always hold a valid access token without
// polling.
package session

import (
	"context"
	"sync"
	"time"

	"userhub.org/internal/auth"
)

// TokenSource exchanges a refresh token for a new session.
// *auth.Service satisfies it.
type TokenSource interface {
	Refresh(ctx context.Context, refreshToken string) (auth.SessionTokens, error)
}

// DefaultBuffer is how long before access-token expiry a refresh fires.
const DefaultBuffer = 30 * time.Second

// Refresher schedules one pending refresh per installed session.
// Installing a new session replaces the previous schedule; a failed
// refresh is terminal and surfaces through the expiry callback.
type Refresher struct {
	source TokenSource
	buffer time.Duration
	now    func() time.Time

	onRenewed func(auth.SessionTokens)
	onExpired func(error)

	mu      sync.Mutex
	current auth.SessionTokens
	timer   *time.Timer
	active  bool
	gen     uint64
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithBuffer sets the lead time before expiry at which refresh runs.
func WithBuffer(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.buffer = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Refresher) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithOnRenewed registers a callback invoked with each renewed session.
func WithOnRenewed(fn func(auth.SessionTokens)) Option {
	return func(r *Refresher) { r.onRenewed = fn }
}

// WithOnExpired registers a callback invoked when the session cannot be
// kept alive. The argument is the refresh error, or nil when the session
// was installed already expired.
func WithOnExpired(fn func(error)) Option {
	return func(r *Refresher) { r.onExpired = fn }
}

// NewRefresher builds an idle refresher; nothing runs until Install.
func NewRefresher(source TokenSource, opts ...Option) *Refresher {
	r := &Refresher{
		source: source,
		buffer: DefaultBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install adopts a session and schedules its renewal, replacing any
// previously installed session. A session whose access token has already
// expired is rejected immediately through the expiry callback.
func (r *Refresher) Install(tokens auth.SessionTokens) {
	r.mu.Lock()
	cb := r.adoptLocked(tokens)
	r.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

// adoptLocked replaces the tracked session. Bumping the generation
// orphans any renewal still in flight for the previous schedule: when it
// completes it finds a stale generation and discards its result. Returns
// the expiry callback to invoke (outside the lock) when the adopted
// session is already stale.
func (r *Refresher) adoptLocked(tokens auth.SessionTokens) func(error) {
	r.gen++
	r.stopLocked()
	if !tokens.AccessExpiresAt.After(r.now()) {
		r.current = auth.SessionTokens{}
		r.active = false
		return r.onExpired
	}
	r.current = tokens
	r.active = true

	delay := tokens.AccessExpiresAt.Sub(r.now()) - r.buffer
	if delay < 0 {
		delay = 0
	}
	gen := r.gen
	r.timer = time.AfterFunc(delay, func() { r.renew(gen) })
	return nil
}

// Current returns the most recently installed session and whether one is
// active.
func (r *Refresher) Current() (auth.SessionTokens, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.active
}

// Stop cancels the pending renewal, for logout or shutdown. The session
// itself is untouched server-side.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.stopLocked()
	r.current = auth.SessionTokens{}
	r.active = false
}

func (r *Refresher) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Refresher) renew(gen uint64) {
	r.mu.Lock()
	if !r.active || gen != r.gen {
		r.mu.Unlock()
		return
	}
	refreshToken := r.current.RefreshToken
	r.mu.Unlock()

	renewed, err := r.source.Refresh(context.Background(), refreshToken)

	r.mu.Lock()
	if gen != r.gen {
		// Stop or a fresh Install landed while the exchange was in
		// flight; this renewal no longer owns the session.
		r.mu.Unlock()
		return
	}
	if err != nil {
		// Terminal: the refresh token is spent, revoked or expired, so
		// the session cannot continue.
		r.gen++
		r.stopLocked()
		r.current = auth.SessionTokens{}
		r.active = false
		cb := r.onExpired
		r.mu.Unlock()
		if cb != nil {
			cb(err)
		}
		return
	}
	cb := r.adoptLocked(renewed)
	r.mu.Unlock()
	if r.onRenewed != nil {
		r.onRenewed(renewed)
	}
	if cb != nil {
		cb(nil)
	}
}
