package pg

import (
	"context"
	"database/sql"
	"errors"

	"userhub.org/internal/auth"
)

type tokenStore struct {
	db *sql.DB
}

func (t tokenStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := t.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, family_id, token_hash, expires_at, created_at, revoked)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.UserID, tok.FamilyID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt, tok.Revoked)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (t tokenStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := t.db.QueryRowContext(ctx, `
		select id, user_id, family_id, token_hash, expires_at, created_at, revoked
		from refresh_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.FamilyID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (t tokenStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := t.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// MarkRevokedByFamily revokes every token descending from one login.
// Revoking an unknown family is not an error; the caller may be burning
// a family it only knows by id.
func (t tokenStore) MarkRevokedByFamily(ctx context.Context, familyID string) error {
	_, err := t.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true where family_id = $1
	`, familyID)
	return err
}

func (t tokenStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := t.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true where user_id = $1
	`, userID)
	return err
}
