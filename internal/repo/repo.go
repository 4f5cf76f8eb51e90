package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"flowboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	statuses, err := json.Marshal(p.TaskStatuses)
	if err != nil {
		return fmt.Errorf("marshal task statuses: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(id,title,description,owner_id,task_statuses_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), p.OwnerID, string(statuses), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	var statusesJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,description,owner_id,task_statuses_json,created_at,updated_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Title, &desc, &p.OwnerID, &statusesJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if err := json.Unmarshal([]byte(statusesJSON), &p.TaskStatuses); err != nil {
		return p, fmt.Errorf("project %s task statuses: %w", id, err)
	}
	return p, nil
}

// ListProjectsForUser returns projects the user owns or is a member of.
func (r Repo) ListProjectsForUser(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT p.id,p.title,COALESCE(p.description,''),p.owner_id,p.task_statuses_json,p.created_at,p.updated_at
FROM projects p LEFT JOIN project_members m ON m.project_id=p.id
WHERE p.owner_id=? OR m.user_id=?
ORDER BY p.created_at DESC, p.id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var statusesJSON string
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &statusesJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(statusesJSON), &p.TaskStatuses); err != nil {
			return nil, fmt.Errorf("project %s task statuses: %w", p.ID, err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

type ProjectUpdate struct {
	Title        *string
	Description  *string
	TaskStatuses []string
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, u ProjectUpdate, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.TaskStatuses != nil {
		statuses, err := json.Marshal(u.TaskStatuses)
		if err != nil {
			return fmt.Errorf("marshal task statuses: %w", err)
		}
		fields = append(fields, "task_statuses_json=?")
		args = append(args, string(statuses))
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project; tasks, automations, invitations and
// memberships go with it via cascading foreign keys.
func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, projectID, userID, addedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,user_id,added_at) VALUES (?,?,?)`,
		projectID, userID, addedAt)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	return err
}

// IsMember reports whether the user owns or belongs to the project.
func (r Repo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=? AND owner_id=?
UNION SELECT 1 FROM project_members WHERE project_id=? AND user_id=? LIMIT 1`,
		projectID, userID, projectID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM project_members WHERE project_id=? ORDER BY added_at, user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
