package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"userhub.org/internal/hierarchy"
	"userhub.org/internal/ids"
	"userhub.org/internal/notify"
	"userhub.org/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
	defaultIssuer     = "userhub"
)

// Service is the authorization and session core: credential
// verification, token issuance and rotation, CSRF protection, permission
// resolution and the group hierarchy facade.
type Service struct {
	store Store
	now   func() time.Time

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	lockout     LockoutPolicy
	revocations RevocationStore
	csrf        *CSRFGuard
	resolver    *Resolver
	mailer      notify.Mailer

	roleGroups *hierarchy.Forest
	permGroups *hierarchy.Forest
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSigningSecret sets the HS256 key for access tokens. Required.
func WithSigningSecret(secret []byte) ServiceOption {
	return func(s *Service) error {
		if len(secret) == 0 {
			return errors.New("auth: signing secret must not be empty")
		}
		s.secret = secret
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithLockoutPolicy overrides the failed-login lockout policy.
func WithLockoutPolicy(p LockoutPolicy) ServiceOption {
	return func(s *Service) error {
		if p.MaxFailures <= 0 || p.Window <= 0 || p.Duration <= 0 {
			return errors.New("auth: lockout policy fields must be positive")
		}
		s.lockout = p
		return nil
	}
}

// WithRevocationStore injects the token blacklist implementation.
func WithRevocationStore(r RevocationStore) ServiceOption {
	return func(s *Service) error {
		if r != nil {
			s.revocations = r
		}
		return nil
	}
}

// WithMailer injects the outbound-notice sink.
func WithMailer(m notify.Mailer) ServiceOption {
	return func(s *Service) error {
		s.mailer = m
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the core with optional configuration. Call
// LoadHierarchies before serving traffic so the group forests reflect
// persisted state.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		lockout:    DefaultLockoutPolicy,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if svc.revocations == nil {
		svc.revocations = NewMemoryRevocations(svc.now)
	}
	svc.csrf = NewCSRFGuard(svc.refreshTTL)

	resolver, err := NewResolver(store, 1024)
	if err != nil {
		return nil, err
	}
	svc.resolver = resolver

	svc.roleGroups = hierarchy.NewForest(hierarchy.KindRoleGroup,
		hierarchy.WithAttachments(roleAttachments{store: store}),
		hierarchy.WithPersister(groupPersister{store: store}),
	)
	svc.permGroups = hierarchy.NewForest(hierarchy.KindPermissionGroup,
		hierarchy.WithAttachments(permissionAttachments{store: store}),
		hierarchy.WithPersister(groupPersister{store: store}),
	)
	return svc, nil
}

// Clock returns the service time source (shared with collaborators such
// as the client-side refresher).
func (s *Service) Clock() func() time.Time { return s.now }

// CSRF exposes the session CSRF guard to the transport layer.
func (s *Service) CSRF() *CSRFGuard { return s.csrf }

// Authenticate verifies credentials and, on success, mints a full
// session: access token, rotating refresh token and CSRF token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (SessionTokens, error) {
	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountLocked):
			obs.ObserveLogin("locked")
		case errors.Is(err, ErrPasswordChangeRequired):
			obs.ObserveLogin("password_change_required")
		case errors.Is(err, ErrInvalidCredentials):
			obs.ObserveLogin("invalid")
		}
		return SessionTokens{}, err
	}
	obs.ObserveLogin("success")
	return s.mintSession(ctx, user.ID, ids.New())
}

func (s *Service) mintSession(ctx context.Context, userID, sessionID string) (SessionTokens, error) {
	now := s.now()
	access, accessExp, err := s.signAccessToken(userID, sessionID, now)
	if err != nil {
		return SessionTokens{}, err
	}
	refresh, rec, err := s.newRefreshToken(userID, sessionID, now)
	if err != nil {
		return SessionTokens{}, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return SessionTokens{}, err
	}
	return SessionTokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		CSRFToken:        s.csrf.Issue(sessionID),
		SessionID:        sessionID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Refresh redeems a refresh token for a new pair. Each token is single
// use: the redeemed token is revoked before the new one is issued, and a
// rotated-out token presented again burns the entire family.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (SessionTokens, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		obs.ObserveRefresh("invalid")
		return SessionTokens{}, ErrTokenInvalid
	}

	tokens := s.store.RefreshTokens(ctx)
	rec, err := tokens.Find(ctx, tokenID)
	if err != nil {
		obs.ObserveRefresh("invalid")
		return SessionTokens{}, ErrTokenInvalid
	}
	if !secureCompareHash(rec.TokenHash, secret) {
		// The sender holds the id but not the secret. Not proof of
		// compromise, so the family survives.
		obs.ObserveRefresh("invalid")
		return SessionTokens{}, ErrTokenInvalid
	}
	if rec.Revoked {
		// Replay of a rotated-out token with its real secret: compromise
		// signal. Kill every descendant of the original login.
		_ = tokens.MarkRevokedByFamily(ctx, rec.FamilyID)
		s.csrf.Drop(rec.FamilyID)
		obs.IncReplay()
		obs.ObserveRefresh("revoked")
		return SessionTokens{}, ErrTokenRevoked
	}
	if s.now().After(rec.ExpiresAt) {
		obs.ObserveRefresh("expired")
		return SessionTokens{}, ErrTokenExpired
	}

	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil || !user.Active {
		_ = tokens.MarkRevokedByFamily(ctx, rec.FamilyID)
		obs.ObserveRefresh("revoked")
		return SessionTokens{}, ErrTokenRevoked
	}

	// Rotation: the old token dies before its successor exists.
	if err := tokens.MarkRevoked(ctx, rec.ID); err != nil {
		return SessionTokens{}, err
	}
	session, err := s.mintSession(ctx, rec.UserID, rec.FamilyID)
	if err != nil {
		return SessionTokens{}, err
	}
	obs.ObserveRefresh("success")
	return session, nil
}

// Logout ends the session behind an access token: the access token id is
// blacklisted for its remaining lifetime, the refresh family is revoked
// and the CSRF token dropped. Works for already-expired access tokens as
// long as the signature holds.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.parseAccessToken(accessToken, true)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.After(s.now()) {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}
	if err := s.store.RefreshTokens(ctx).MarkRevokedByFamily(ctx, claims.SessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.csrf.Drop(claims.SessionID)
	return nil
}

// Authorize validates the access token and answers whether its subject
// holds the required permission. The permission check itself is pure.
func (s *Service) Authorize(ctx context.Context, accessToken, permission string) (bool, error) {
	claims, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return false, err
	}
	principal, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		return false, err
	}
	return principal.HasPermission(permission), nil
}

// Principal loads a user with their resolved permission set.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	set, err := s.resolver.EffectiveSet(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, Permissions: set}, nil
}

// EffectivePermissions returns the user's effective permission keys.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) (map[string]struct{}, error) {
	return s.resolver.EffectiveSet(ctx, userID)
}

// HasPermission is the single authorization check for protected
// operations.
func (s *Service) HasPermission(ctx context.Context, userID, key string) (bool, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.Superuser {
		return true, nil
	}
	return s.resolver.HasPermission(ctx, userID, key)
}

// CreateUser registers a user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !validEmail(email) {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

// DeactivateUser is the terminal state transition for an account; user
// rows are never physically deleted while referenced elsewhere.
func (s *Service) DeactivateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := s.store.Users(ctx).SetActive(ctx, userID, false); err != nil {
		return err
	}
	if err := s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.resolver.Invalidate(userID)
	return nil
}

func validEmail(email string) bool {
	at := -1
	for i, r := range email {
		if r == '@' {
			if at >= 0 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(email)-1
}
