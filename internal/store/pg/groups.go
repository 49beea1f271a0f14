package pg

import (
	"context"
	"database/sql"

	"userhub.org/internal/auth"
	"userhub.org/internal/hierarchy"
)

// groupStore persists forest nodes for both hierarchy kinds in one
// table. Structural validation happens in the hierarchy engine before
// any write reaches here.
type groupStore struct {
	db *sql.DB
}

func (g groupStore) Save(ctx context.Context, kind hierarchy.Kind, n hierarchy.Node) error {
	_, err := g.db.ExecContext(ctx, `
		insert into groups (id, kind, name, parent_id)
		values ($1, $2, $3, $4)
		on conflict (id) do update
		set name = excluded.name, parent_id = excluded.parent_id
	`, n.ID, string(kind), n.Name, nullIfEmpty(n.ParentID))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (g groupStore) Delete(ctx context.Context, kind hierarchy.Kind, id string) error {
	_, err := g.db.ExecContext(ctx, `
		delete from groups where id = $1 and kind = $2
	`, id, string(kind))
	return err
}

func (g groupStore) List(ctx context.Context, kind hierarchy.Kind) ([]hierarchy.Node, error) {
	rows, err := g.db.QueryContext(ctx, `
		select id, name, parent_id
		from groups
		where kind = $1
		order by id
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []hierarchy.Node
	for rows.Next() {
		var (
			n        hierarchy.Node
			parentID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Name, &parentID); err != nil {
			return nil, err
		}
		n.ParentID = parentID.String
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}
