package auth

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// CSRFGuard implements the double-submit pattern: one random token per
// session, held both in a cookie and in a request header, matched here.
// Tokens live in an expiring cache keyed by session id so lookups stay
// off the database; they are dropped on logout and replaced on rotation.
type CSRFGuard struct {
	cache *gocache.Cache
}

// NewCSRFGuard builds a guard whose tokens expire after ttl (normally the
// refresh-token lifetime).
func NewCSRFGuard(ttl time.Duration) *CSRFGuard {
	return &CSRFGuard{cache: gocache.New(ttl, 10*time.Minute)}
}

// Issue binds a fresh random token to the session, replacing any
// previous one.
func (g *CSRFGuard) Issue(sessionID string) string {
	token := uuid.NewString()
	g.cache.Set(sessionID, token, gocache.DefaultExpiration)
	return token
}

// Validate reports whether the presented token matches the one bound to
// the session. Missing session or empty token always fails.
func (g *CSRFGuard) Validate(sessionID, presented string) bool {
	if sessionID == "" || presented == "" {
		return false
	}
	v, ok := g.cache.Get(sessionID)
	if !ok {
		return false
	}
	expected, ok := v.(string)
	if !ok || len(expected) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// Drop invalidates the session's token.
func (g *CSRFGuard) Drop(sessionID string) {
	g.cache.Delete(sessionID)
}
