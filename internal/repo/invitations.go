package repo

import (
	"context"
	"database/sql"

	"flowboard/internal/domain"
)

func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invitations(id,project_id,inviter_id,invitee_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		inv.ID, inv.ProjectID, inv.InviterID, inv.InviteeID, inv.Status, inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	var inv domain.Invitation
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,inviter_id,invitee_id,status,created_at,updated_at FROM invitations WHERE id=?`, id).
		Scan(&inv.ID, &inv.ProjectID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	return inv, err
}

// HasPendingInvitation reports whether the invitee already has an open
// invitation to the project.
func (r Repo) HasPendingInvitation(ctx context.Context, projectID, inviteeID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM invitations WHERE project_id=? AND invitee_id=? AND status='pending' LIMIT 1`,
		projectID, inviteeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListInvitationsForUser(ctx context.Context, inviteeID, status string) ([]domain.Invitation, error) {
	query := `SELECT id,project_id,inviter_id,invitee_id,status,created_at,updated_at FROM invitations WHERE invitee_id=?`
	args := []any{inviteeID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invitation
	for rows.Next() {
		var inv domain.Invitation
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) SetInvitationStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
