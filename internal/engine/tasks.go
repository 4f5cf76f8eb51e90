package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowboard/internal/domain"
	"flowboard/internal/events"
	"flowboard/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	Status      string
	AssigneeID  string
	DueDate     string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	if err := e.Guard.RequireMember(ctx, opts.ProjectID, opts.ActorID); err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	status := opts.Status
	if status == "" {
		// new tasks start in the project's first status
		status = p.TaskStatuses[0]
	}
	if !statusInList(p.TaskStatuses, status) {
		return domain.Task{}, fmt.Errorf("invalid status %q for project", status)
	}
	if opts.DueDate != "" {
		due, err := normalizeDueDate(opts.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		opts.DueDate = due
	}
	if opts.AssigneeID != "" {
		ok, err := e.Repo.IsMember(ctx, opts.ProjectID, opts.AssigneeID)
		if err != nil {
			return domain.Task{}, err
		}
		if !ok {
			return domain.Task{}, fmt.Errorf("assignee %s is not a project member", opts.AssigneeID)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      status,
		AssigneeID:  optionalString(opts.AssigneeID),
		DueDate:     optionalString(opts.DueDate),
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if t.AssigneeID != nil && *t.AssigneeID != opts.ActorID {
		e.notifyAssignment(ctx, t, opts.ActorID)
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Guard.RequireMember(ctx, t.ProjectID, actorID); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters, actorID string) ([]domain.Task, error) {
	if f.ProjectID == "" {
		return nil, errors.New("project is required")
	}
	if err := e.Guard.RequireMember(ctx, f.ProjectID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, f)
}

// TaskUpdateOptions encapsulates allowed updates. Assign and DueDate accept
// an empty string to clear the field.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      *string
	Assign      *string
	DueDate     *string
	ActorID     string
}

// UpdateTask applies the update, then feeds the before and after states to
// the automation pipeline. Automation runs after commit on the user's
// request path; its failures never surface here.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	previous, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Guard.RequireMember(ctx, previous.ProjectID, opts.ActorID); err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.GetProject(ctx, previous.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	t := previous
	if opts.Title != nil {
		if *opts.Title == "" {
			return t, errors.New("title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Status != nil {
		if !statusInList(p.TaskStatuses, *opts.Status) {
			return t, fmt.Errorf("invalid status %q for project", *opts.Status)
		}
		t.Status = *opts.Status
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssigneeID = nil
		} else {
			ok, err := e.Repo.IsMember(ctx, t.ProjectID, *opts.Assign)
			if err != nil {
				return t, err
			}
			if !ok {
				return t, fmt.Errorf("assignee %s is not a project member", *opts.Assign)
			}
			t.AssigneeID = opts.Assign
		}
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			due, err := normalizeDueDate(*opts.DueDate)
			if err != nil {
				return t, err
			}
			t.DueDate = &due
		}
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": previous.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}

	e.notifyTaskChanges(ctx, previous, t, opts.ActorID)
	e.rules().OnTaskUpdated(ctx, previous, t, opts.ActorID)
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Guard.RequireMember(ctx, t.ProjectID, actorID); err != nil {
		return err
	}
	// only the project owner or the task's creator may remove a task
	if t.CreatedBy != actorID {
		if err := e.Guard.RequireOwner(ctx, t.ProjectID, actorID); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	if err := e.Events.AppendDB(ctx, "task.deleted", t.ProjectID, "task", id, actorID, events.EventPayload{"title": t.Title}); err != nil {
		e.Log.Warn().Err(err).Str("task_id", id).Msg("audit append")
	}
	return nil
}

// notifyTaskChanges records courtesy notifications after a user-path task
// update. Actors are never notified about their own changes, and failures
// only get logged.
func (e Engine) notifyTaskChanges(ctx context.Context, previous, updated domain.Task, actorID string) {
	newlyAssigned := updated.AssigneeID != nil &&
		(previous.AssigneeID == nil || *previous.AssigneeID != *updated.AssigneeID)
	if newlyAssigned && *updated.AssigneeID != actorID {
		e.notifyAssignment(ctx, updated, actorID)
	}
	if previous.Status != updated.Status && updated.AssigneeID != nil && *updated.AssigneeID != actorID {
		n := domain.Notification{
			ID:          uuid.New().String(),
			RecipientID: *updated.AssigneeID,
			SenderID:    actorID,
			Type:        domain.NotificationTaskStatusUpdate,
			Message:     fmt.Sprintf("%s moved to %s", updated.Title, updated.Status),
			TaskID:      &updated.ID,
			ProjectID:   &updated.ProjectID,
			CreatedAt:   e.now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertNotification(ctx, n); err != nil {
			e.Log.Warn().Err(err).Str("task_id", updated.ID).Msg("status notification")
		}
	}
}

func (e Engine) notifyAssignment(ctx context.Context, t domain.Task, actorID string) {
	n := domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: *t.AssigneeID,
		SenderID:    actorID,
		Type:        domain.NotificationTaskAssignment,
		Message:     fmt.Sprintf("You were assigned to %s", t.Title),
		TaskID:      &t.ID,
		ProjectID:   &t.ProjectID,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertNotification(ctx, n); err != nil {
		e.Log.Warn().Err(err).Str("task_id", t.ID).Msg("assignment notification")
	}
}

// normalizeDueDate rewrites a due date as UTC RFC3339. Stored due dates are
// compared lexicographically, which only matches chronological order when
// every timestamp shares the same offset.
func normalizeDueDate(raw string) (string, error) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return "", fmt.Errorf("due date: %w", err)
	}
	return ts.UTC().Format(time.RFC3339), nil
}
