package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"userhub.org/internal/auth"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, email, password_hash, active, superuser, verified,
	locked, locked_until, failed_attempts, last_failed_at,
	needs_password_change, password_changed_at, password_expires_at,
	created_at, updated_at`

func (u userStore) Create(ctx context.Context, user *auth.User) error {
	row := u.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, active, superuser, verified, needs_password_change)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, user.ID, user.Email, user.PasswordHash, user.Active, user.Superuser, user.Verified, user.NeedsPasswordChange)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (u userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return u.scanOne(u.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id))
}

func (u userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return u.scanOne(u.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where lower(email) = lower($1)
	`, email))
}

func (u userStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := u.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		order by email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (u userStore) UpdateLoginState(ctx context.Context, userID string, failed int, lastFailedAt *time.Time, locked bool, lockedUntil *time.Time) error {
	res, err := u.db.ExecContext(ctx, `
		update users
		set failed_attempts = $2, last_failed_at = $3, locked = $4, locked_until = $5, updated_at = now()
		where id = $1
	`, userID, failed, nullTime(lastFailedAt), locked, nullTime(lockedUntil))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (u userStore) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	res, err := u.db.ExecContext(ctx, `
		update users
		set password_hash = $2, password_changed_at = $3,
		    needs_password_change = false, password_expires_at = null, updated_at = now()
		where id = $1
	`, userID, passwordHash, changedAt)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (u userStore) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := u.db.ExecContext(ctx, `
		update users set active = $2, updated_at = now() where id = $1
	`, userID, active)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (u userStore) scanOne(row *sql.Row) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user              auth.User
		lockedUntil       sql.NullTime
		lastFailedAt      sql.NullTime
		passwordExpiresAt sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Active, &user.Superuser, &user.Verified,
		&user.Locked, &lockedUntil, &user.FailedAttempts, &lastFailedAt,
		&user.NeedsPasswordChange, &user.PasswordChangedAt, &passwordExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.LockedUntil = timePtr(lockedUntil)
	user.LastFailedAt = timePtr(lastFailedAt)
	user.PasswordExpiresAt = timePtr(passwordExpiresAt)
	return &user, nil
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
