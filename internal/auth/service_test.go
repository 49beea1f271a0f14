package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"userhub.org/internal/auth"
	"userhub.org/internal/ids"
	"userhub.org/internal/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T, opts ...auth.ServiceOption) (*auth.Service, *memory.Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := memory.New()
	base := []auth.ServiceOption{
		auth.WithSigningSecret([]byte("test-secret-0123456789")),
		auth.WithClock(clock.Now),
		auth.WithAccessTTL(15 * time.Minute),
		auth.WithRefreshTTL(24 * time.Hour),
	}
	svc, err := auth.NewService(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.LoadHierarchies(context.Background()); err != nil {
		t.Fatalf("LoadHierarchies: %v", err)
	}
	return svc, store, clock
}

func seedUser(t *testing.T, store *memory.Store, email, password string, mutate func(*auth.User)) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &auth.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if mutate != nil {
		mutate(user)
	}
	if err := store.Users(context.Background()).Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestAuthenticateIssuesFullSession(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "Ada@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" || session.CSRFToken == "" {
		t.Fatalf("incomplete session: %+v", session)
	}
	if got, want := session.AccessExpiresAt, clock.Now().Add(15*time.Minute); !got.Equal(want) {
		t.Fatalf("access expiry = %v, want %v", got, want)
	}

	claims, err := svc.ValidateAccessToken(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.SessionID != session.SessionID {
		t.Fatalf("claims session = %q, want %q", claims.SessionID, session.SessionID)
	}
	if !svc.CSRF().Validate(session.SessionID, session.CSRFToken) {
		t.Fatal("CSRF token should validate for its session")
	}
	if svc.CSRF().Validate(session.SessionID, "forged") {
		t.Fatal("forged CSRF token validated")
	}
}

func TestAccessTokenExpiresAndRefreshRenews(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := svc.ValidateAccessToken(ctx, session.AccessToken); !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("expired token error = %v, want ErrTokenExpired", err)
	}

	renewed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if renewed.SessionID != session.SessionID {
		t.Fatalf("refresh changed session id: %q != %q", renewed.SessionID, session.SessionID)
	}
	if renewed.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.ValidateAccessToken(ctx, renewed.AccessToken); err != nil {
		t.Fatalf("renewed access token invalid: %v", err)
	}
}

func TestRefreshReplayBurnsFamily(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	renewed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// Replay of the rotated-out token.
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("replay error = %v, want ErrTokenRevoked", err)
	}
	// The whole family is dead, including the legitimately issued token.
	if _, err := svc.Refresh(ctx, renewed.RefreshToken); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("post-burn refresh error = %v, want ErrTokenRevoked", err)
	}
}

func TestRefreshRejectsGarbageAndExpiry(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	if _, err := svc.Refresh(ctx, "not-a-token"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Fatalf("garbage refresh error = %v, want ErrTokenInvalid", err)
	}

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	clock.Advance(25 * time.Hour)
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("expired refresh error = %v, want ErrTokenExpired", err)
	}
}

func TestRefreshWithWrongSecretLeavesFamilyAlive(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Same token id, wrong secret: knowing the id alone must not be
	// enough to revoke anything.
	tokenID := strings.SplitN(session.RefreshToken, ".", 2)[0]
	if _, err := svc.Refresh(ctx, tokenID+".forged-secret"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Fatalf("forged refresh error = %v, want ErrTokenInvalid", err)
	}

	renewed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("legitimate refresh after forged attempt: %v", err)
	}
	if renewed.SessionID != session.SessionID {
		t.Fatalf("session id changed: %s -> %s", session.SessionID, renewed.SessionID)
	}
}

func TestLogoutRevokesAccessAndFamily(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := svc.Logout(ctx, session.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.ValidateAccessToken(ctx, session.AccessToken); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("post-logout access error = %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("post-logout refresh error = %v, want ErrTokenRevoked", err)
	}
	if svc.CSRF().Validate(session.SessionID, session.CSRFToken) {
		t.Fatal("CSRF token survived logout")
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	tampered := session.AccessToken[:len(session.AccessToken)-2] + "xx"
	if _, err := svc.ValidateAccessToken(ctx, tampered); err == nil {
		t.Fatal("tampered token validated")
	}

	other, err := auth.NewService(memory.New(), auth.WithSigningSecret([]byte("a different secret")))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := other.ValidateAccessToken(ctx, session.AccessToken); !errors.Is(err, auth.ErrSignatureInvalid) {
		t.Fatalf("cross-key validation error = %v, want ErrSignatureInvalid", err)
	}
}

func TestAuthorizeChecksEffectivePermissions(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "correct horse", nil)

	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	role, err := svc.CreateRole(ctx, "operator", "", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := svc.SetRolePermissions(ctx, role.ID, []string{auth.PermissionReadUsers}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if err := svc.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	ok, err := svc.Authorize(ctx, session.AccessToken, auth.PermissionReadUsers)
	if err != nil || !ok {
		t.Fatalf("Authorize(read) = %v, %v; want true", ok, err)
	}
	ok, err = svc.Authorize(ctx, session.AccessToken, auth.PermissionManageUsers)
	if err != nil || ok {
		t.Fatalf("Authorize(manage) = %v, %v; want false", ok, err)
	}
}

func TestSuperuserBypassesPermissionChecks(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	root := seedUser(t, store, "root@example.com", "root password", func(u *auth.User) {
		u.Superuser = true
	})

	ok, err := svc.HasPermission(ctx, root.ID, "anything.at.all")
	if err != nil || !ok {
		t.Fatalf("superuser HasPermission = %v, %v; want true", ok, err)
	}
}

func TestDeactivateUserKillsSessions(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, store, "ada@example.com", "correct horse", nil)

	session, err := svc.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := svc.DeactivateUser(ctx, user.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("refresh after deactivation = %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.Authenticate(ctx, "ada@example.com", "correct horse"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("login after deactivation = %v, want ErrInvalidCredentials", err)
	}
}
