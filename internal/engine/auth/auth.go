package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates the actor lacks the required project role.
type ForbiddenError struct {
	ProjectID string
	Role      string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("project %s role required", e.Role)
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Guard answers ownership and membership questions backed by SQL.
type Guard struct {
	DB *sql.DB
}

// RequireOwner returns ForbiddenError unless the actor owns the project.
func (g Guard) RequireOwner(ctx context.Context, projectID, actorID string) error {
	row := g.DB.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=? AND owner_id=? LIMIT 1`, projectID, actorID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return ForbiddenError{ProjectID: projectID, Role: RoleOwner}
	}
	return err
}

// RequireMember returns ForbiddenError unless the actor owns or belongs to
// the project.
func (g Guard) RequireMember(ctx context.Context, projectID, actorID string) error {
	row := g.DB.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=? AND owner_id=?
UNION SELECT 1 FROM project_members WHERE project_id=? AND user_id=? LIMIT 1`,
		projectID, actorID, projectID, actorID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return ForbiddenError{ProjectID: projectID, Role: RoleMember}
	}
	return err
}
