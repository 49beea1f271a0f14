package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"userhub.org/internal/auth"
	"userhub.org/internal/hierarchy"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("insert into users").
		WithArgs("u1", "ada@example.com", "hash", true, false, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	user := &auth.User{ID: "u1", Email: "ada@example.com", PasswordHash: "hash", Active: true}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.CreatedAt.IsZero() {
		t.Fatal("created_at not populated from returning clause")
	}

	mock.ExpectQuery("insert into users").
		WithArgs("u2", "ada@example.com", "hash", true, false, false, false).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	dup := &auth.User{ID: "u2", Email: "ada@example.com", PasswordHash: "hash", Active: true}
	if err := store.Users(ctx).Create(ctx, dup); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate create error = %v, want ErrConflict", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByEmailScansNullableColumns(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()
	lockedUntil := now.Add(15 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "active", "superuser", "verified",
		"locked", "locked_until", "failed_attempts", "last_failed_at",
		"needs_password_change", "password_changed_at", "password_expires_at",
		"created_at", "updated_at",
	}).AddRow(
		"u1", "ada@example.com", "hash", true, false, true,
		true, lockedUntil, 5, now,
		false, now, nil,
		now, now,
	)
	mock.ExpectQuery("select (.+) from users").WithArgs("ada@example.com").WillReturnRows(rows)

	user, err := store.Users(ctx).FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if !user.Locked || user.LockedUntil == nil || !user.LockedUntil.Equal(lockedUntil) {
		t.Fatalf("lock state not scanned: %+v", user)
	}
	if user.PasswordExpiresAt != nil {
		t.Fatalf("null password_expires_at scanned as %v", user.PasswordExpiresAt)
	}

	mock.ExpectQuery("select (.+) from users").WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := store.Users(ctx).FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing user error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateLoginStateRequiresRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update users").
		WithArgs("u1", 3, sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	now := time.Now()
	if err := store.Users(ctx).UpdateLoginState(ctx, "u1", 3, &now, false, nil); err != nil {
		t.Fatalf("UpdateLoginState: %v", err)
	}

	mock.ExpectExec("update users").
		WithArgs("missing", 1, sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Users(ctx).UpdateLoginState(ctx, "missing", 1, &now, false, nil); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing user error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetForRoleReplacesInsideTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions").WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("select id from permissions").WithArgs("users.read").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectExec("insert into role_permissions").WithArgs("r1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Permissions(ctx).SetForRole(ctx, "r1", []string{"users.read"}); err != nil {
		t.Fatalf("SetForRole: %v", err)
	}

	// An unknown key rolls the whole replacement back.
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions").WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select id from permissions").WithArgs("nope.missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	if err := store.Permissions(ctx).SetForRole(ctx, "r1", []string{"nope.missing"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown key error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGroupSaveUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("insert into groups").
		WithArgs("g1", "role_group", "Engineering", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	node := hierarchy.Node{ID: "g1", Name: "Engineering"}
	if err := store.Groups(ctx).Save(ctx, hierarchy.KindRoleGroup, node); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mock.ExpectQuery("select id, name, parent_id").
		WithArgs("role_group").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_id"}).
			AddRow("g1", "Engineering", nil).
			AddRow("g2", "Backend", "g1"))
	nodes, err := store.Groups(ctx).List(ctx, hierarchy.KindRoleGroup)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(nodes) != 2 || nodes[1].ParentID != "g1" {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("t1", "u1", "fam1", "hash", sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tok := &auth.RefreshToken{ID: "t1", UserID: "u1", FamilyID: "fam1", TokenHash: "hash", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := store.RefreshTokens(ctx).Create(ctx, tok); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectQuery("select id, user_id, family_id").WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "family_id", "token_hash", "expires_at", "created_at", "revoked"}).
			AddRow("t1", "u1", "fam1", "hash", now.Add(time.Hour), now, false))
	found, err := store.RefreshTokens(ctx).Find(ctx, "t1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.FamilyID != "fam1" || found.Revoked {
		t.Fatalf("unexpected token: %+v", found)
	}

	mock.ExpectExec("update refresh_tokens set revoked = true where family_id").
		WithArgs("fam1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	if err := store.RefreshTokens(ctx).MarkRevokedByFamily(ctx, "fam1"); err != nil {
		t.Fatalf("MarkRevokedByFamily: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
