package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"userhub.org/internal/auth"
)

type roleStore struct {
	db *sql.DB
}

func (r roleStore) Create(ctx context.Context, role *auth.Role) error {
	row := r.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, group_id)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, role.ID, role.Name, nullIfEmpty(role.Description), nullIfEmpty(role.GroupID))
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
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

func (r roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	var (
		role    auth.Role
		desc    sql.NullString
		groupID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		select id, name, description, group_id, created_at, updated_at
		from roles
		where id = $1
	`, id).Scan(&role.ID, &role.Name, &desc, &groupID, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role.Description = desc.String
	role.GroupID = groupID.String
	return &role, nil
}

func (r roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		select id, name, description, group_id, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		var (
			role    auth.Role
			desc    sql.NullString
			groupID sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &groupID, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Description = desc.String
		role.GroupID = groupID.String
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r roleStore) Update(ctx context.Context, role *auth.Role) error {
	res, err := r.db.ExecContext(ctx, `
		update roles
		set name = $2, description = $3, group_id = $4, updated_at = now()
		where id = $1
	`, role.ID, role.Name, nullIfEmpty(role.Description), nullIfEmpty(role.GroupID))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (r roleStore) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (r roleStore) CountByGroup(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `select count(*) from roles where group_id = $1`, groupID).Scan(&n)
	return n, err
}

func (r roleStore) Assign(ctx context.Context, a auth.Assignment) error {
	_, err := r.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, created_at)
		values ($1, $2, $3)
	`, a.UserID, a.RoleID, a.CreatedAt)
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

func (r roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := r.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r roleStore) Assignments(ctx context.Context, userID string) ([]auth.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1
		order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []auth.Assignment
	for rows.Next() {
		var a auth.Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r roleStore) AssignmentCount(ctx context.Context, roleID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `select count(*) from user_roles where role_id = $1`, roleID).Scan(&n)
	return n, err
}

type permissionStore struct {
	db *sql.DB
}

func (p permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, perm := range perms {
		if _, err := p.db.ExecContext(ctx, `
			insert into permissions (id, key, description, group_id)
			values ($1, $2, $3, $4)
			on conflict (key) do nothing
		`, perm.ID, perm.Key, nullIfEmpty(perm.Description), perm.GroupID); err != nil {
			return err
		}
	}
	return nil
}

func (p permissionStore) Create(ctx context.Context, perm *auth.Permission) error {
	row := p.db.QueryRowContext(ctx, `
		insert into permissions (id, key, description, group_id)
		values ($1, $2, $3, $4)
		returning created_at
	`, perm.ID, perm.Key, nullIfEmpty(perm.Description), perm.GroupID)
	if err := row.Scan(&perm.CreatedAt); err != nil {
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

func (p permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := p.db.QueryContext(ctx, `
		select id, key, description, group_id, created_at
		from permissions
		order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var (
			perm auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.Key, &desc, &perm.GroupID, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perm.Description = desc.String
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (p permissionStore) CountByGroup(ctx context.Context, groupID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `select count(*) from permissions where group_id = $1`, groupID).Scan(&n)
	return n, err
}

func (p permissionStore) SetForRole(ctx context.Context, roleID string, keys []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		var permID string
		err := tx.QueryRowContext(ctx, `select id from permissions where key = $1`, key).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, key)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p permissionStore) PermissionsForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := p.db.QueryContext(ctx, `
		select p.id, p.key, p.description, p.group_id, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var (
			perm auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.Key, &desc, &perm.GroupID, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perm.Description = desc.String
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
