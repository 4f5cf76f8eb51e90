package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"flowboard/internal/domain"
)

func (r Repo) InsertAutomation(ctx context.Context, tx *sql.Tx, a domain.Automation) error {
	triggerJSON, actionJSON, err := marshalRule(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO automations(id,project_id,name,active,trigger_type,trigger_json,action_json,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.Name, boolToInt(a.Active), a.Trigger.Type, triggerJSON, actionJSON, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAutomation(ctx context.Context, tx *sql.Tx, a domain.Automation) error {
	triggerJSON, actionJSON, err := marshalRule(a)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE automations SET name=?, active=?, trigger_type=?, trigger_json=?, action_json=?, updated_at=? WHERE id=?`,
		a.Name, boolToInt(a.Active), a.Trigger.Type, triggerJSON, actionJSON, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAutomation(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM automations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const automationColumns = `id,project_id,name,active,trigger_json,action_json,created_by,created_at,updated_at`

func scanAutomation(scan func(dest ...any) error) (domain.Automation, error) {
	var a domain.Automation
	var active int
	var triggerJSON, actionJSON string
	err := scan(&a.ID, &a.ProjectID, &a.Name, &active, &triggerJSON, &actionJSON, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.Active = active != 0
	if err := json.Unmarshal([]byte(triggerJSON), &a.Trigger); err != nil {
		return a, fmt.Errorf("automation %s trigger: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(actionJSON), &a.Action); err != nil {
		return a, fmt.Errorf("automation %s action: %w", a.ID, err)
	}
	return a, nil
}

func (r Repo) GetAutomation(ctx context.Context, id string) (domain.Automation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+automationColumns+` FROM automations WHERE id=?`, id)
	a, err := scanAutomation(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// FindAutomations returns automations for a project, optionally narrowed to
// a trigger type and to active rules only. Rows come back in insertion
// order; matching imposes no further ordering on top of that.
func (r Repo) FindAutomations(ctx context.Context, projectID, triggerType string, activeOnly bool) ([]domain.Automation, error) {
	clauses := []string{"project_id=?"}
	args := []any{projectID}
	if triggerType != "" {
		clauses = append(clauses, "trigger_type=?")
		args = append(args, triggerType)
	}
	if activeOnly {
		clauses = append(clauses, "active=1")
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	rows, err := r.DB.QueryContext(ctx, `SELECT `+automationColumns+` FROM automations `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func marshalRule(a domain.Automation) (string, string, error) {
	triggerJSON, err := json.Marshal(a.Trigger)
	if err != nil {
		return "", "", fmt.Errorf("marshal trigger: %w", err)
	}
	actionJSON, err := json.Marshal(a.Action)
	if err != nil {
		return "", "", fmt.Errorf("marshal action: %w", err)
	}
	return string(triggerJSON), string(actionJSON), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
