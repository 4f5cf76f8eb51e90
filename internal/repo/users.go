package repo

import (
	"context"
	"database/sql"

	"flowboard/internal/domain"
)

// EnsureUser inserts the user row if it does not exist yet. Identities come
// from the auth layer; the first request on behalf of a user creates it.
func (r Repo) EnsureUser(ctx context.Context, id, name, createdAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO users(id,name,created_at) VALUES (?,?,?)`, id, nullable(name), createdAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM users WHERE id=?`, id).Scan(&u.ID, &name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if name.Valid {
		u.Name = name.String
	}
	return u, err
}

// HasBadge reports whether the user already holds a badge with the given
// (name, project) pair.
func (r Repo) HasBadge(ctx context.Context, userID, name, projectID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM user_badges WHERE user_id=? AND name=? AND project_id=?`, userID, name, projectID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GrantBadge adds a badge entry. Granting the same (name, project) pair
// twice leaves a single row.
func (r Repo) GrantBadge(ctx context.Context, b domain.Badge) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO user_badges(user_id,name,project_id,earned_at) VALUES (?,?,?,?)`,
		b.UserID, b.Name, b.ProjectID, b.EarnedAt)
	return err
}

func (r Repo) ListBadges(ctx context.Context, userID string) ([]domain.Badge, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,name,project_id,earned_at FROM user_badges WHERE user_id=? ORDER BY earned_at, name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Badge
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.UserID, &b.Name, &b.ProjectID, &b.EarnedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
