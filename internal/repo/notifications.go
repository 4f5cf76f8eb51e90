package repo

import (
	"context"
	"database/sql"

	"flowboard/internal/domain"
)

// InsertNotification appends a notification record. The executor and the
// courtesy paths both go through here; rows are never updated except to
// flip the read flag.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,recipient_id,sender_id,type,message,read,task_id,project_id,invitation_id,automation_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, n.SenderID, n.Type, n.Message, boolToInt(n.Read),
		nullableStringPtr(n.TaskID), nullableStringPtr(n.ProjectID), nullableStringPtr(n.InvitationID), nullableStringPtr(n.AutomationID), n.CreatedAt)
	return err
}

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var read int
	var taskID, projectID, invitationID, automationID sql.NullString
	err := scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Message, &read, &taskID, &projectID, &invitationID, &automationID, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	n.Read = read != 0
	if taskID.Valid {
		n.TaskID = &taskID.String
	}
	if projectID.Valid {
		n.ProjectID = &projectID.String
	}
	if invitationID.Valid {
		n.InvitationID = &invitationID.String
	}
	if automationID.Valid {
		n.AutomationID = &automationID.String
	}
	return n, nil
}

const notificationColumns = `id,recipient_id,sender_id,type,message,read,task_id,project_id,invitation_id,automation_id,created_at`

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id)
	n, err := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

func (r Repo) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id=?`
	args := []any{recipientID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE recipient_id=? AND read=0`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) CountNotifications(ctx context.Context, recipientID string, unreadOnly bool) (int, error) {
	query := `SELECT count(*) FROM notifications WHERE recipient_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	var n int
	if err := r.DB.QueryRowContext(ctx, query, recipientID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
