package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowboard/internal/domain"
	"flowboard/internal/events"
)

// AutomationCreateOptions are parameters for creating an automation rule.
type AutomationCreateOptions struct {
	ProjectID string
	Name      string
	Active    *bool
	Trigger   domain.Trigger
	Action    domain.Action
	ActorID   string
}

func (e Engine) CreateAutomation(ctx context.Context, opts AutomationCreateOptions) (domain.Automation, error) {
	if opts.Name == "" {
		return domain.Automation{}, errors.New("name is required")
	}
	if err := e.Guard.RequireOwner(ctx, opts.ProjectID, opts.ActorID); err != nil {
		return domain.Automation{}, err
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Automation{}, err
	}
	if err := validateRule(p, opts.Trigger, opts.Action); err != nil {
		return domain.Automation{}, err
	}
	active := true
	if opts.Active != nil {
		active = *opts.Active
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Automation{
		ID:        uuid.New().String(),
		ProjectID: opts.ProjectID,
		Name:      opts.Name,
		Active:    active,
		Trigger:   opts.Trigger,
		Action:    opts.Action,
		CreatedBy: opts.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Automation{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAutomation(ctx, tx, a); err != nil {
		return domain.Automation{}, err
	}
	if err := e.Events.Append(ctx, tx, "automation.created", a.ProjectID, "automation", a.ID, opts.ActorID, events.EventPayload{
		"name":    a.Name,
		"trigger": a.Trigger.Type,
		"action":  a.Action.Type,
	}); err != nil {
		return domain.Automation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Automation{}, err
	}
	return a, nil
}

func (e Engine) GetAutomation(ctx context.Context, id, actorID string) (domain.Automation, error) {
	a, err := e.Repo.GetAutomation(ctx, id)
	if err != nil {
		return domain.Automation{}, err
	}
	if err := e.Guard.RequireMember(ctx, a.ProjectID, actorID); err != nil {
		return domain.Automation{}, err
	}
	return a, nil
}

func (e Engine) ListAutomations(ctx context.Context, projectID, actorID string) ([]domain.Automation, error) {
	if err := e.Guard.RequireMember(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.FindAutomations(ctx, projectID, "", false)
}

// AutomationUpdateOptions carries partial rule updates. Nil fields are left
// untouched; a replaced trigger or action is re-validated as a whole.
type AutomationUpdateOptions struct {
	ID      string
	Name    *string
	Active  *bool
	Trigger *domain.Trigger
	Action  *domain.Action
	ActorID string
}

func (e Engine) UpdateAutomation(ctx context.Context, opts AutomationUpdateOptions) (domain.Automation, error) {
	a, err := e.Repo.GetAutomation(ctx, opts.ID)
	if err != nil {
		return domain.Automation{}, err
	}
	if err := e.Guard.RequireOwner(ctx, a.ProjectID, opts.ActorID); err != nil {
		return domain.Automation{}, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return a, errors.New("name is required")
		}
		a.Name = *opts.Name
	}
	if opts.Active != nil {
		a.Active = *opts.Active
	}
	if opts.Trigger != nil {
		a.Trigger = *opts.Trigger
	}
	if opts.Action != nil {
		a.Action = *opts.Action
	}
	p, err := e.Repo.GetProject(ctx, a.ProjectID)
	if err != nil {
		return a, err
	}
	if err := validateRule(p, a.Trigger, a.Action); err != nil {
		return a, err
	}
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateAutomation(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "automation.updated", a.ProjectID, "automation", a.ID, opts.ActorID, events.EventPayload{"active": a.Active}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) DeleteAutomation(ctx context.Context, id, actorID string) error {
	a, err := e.Repo.GetAutomation(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Guard.RequireOwner(ctx, a.ProjectID, actorID); err != nil {
		return err
	}
	if err := e.Repo.DeleteAutomation(ctx, id); err != nil {
		return err
	}
	if err := e.Events.AppendDB(ctx, "automation.deleted", a.ProjectID, "automation", id, actorID, events.EventPayload{"name": a.Name}); err != nil {
		e.Log.Warn().Err(err).Str("automation_id", id).Msg("audit append")
	}
	return nil
}

// validateRule checks a trigger/action pair at write time. Execution-time
// state, like whether a task has an assignee, is deliberately not checked
// here.
func validateRule(p domain.Project, trigger domain.Trigger, action domain.Action) error {
	switch trigger.Type {
	case domain.TriggerStatusChange:
		if trigger.UserID != nil {
			return errors.New("user_id does not apply to a status change trigger")
		}
	case domain.TriggerAssignment:
		if trigger.FromStatus != nil || trigger.ToStatus != nil {
			return errors.New("status conditions do not apply to an assignment trigger")
		}
	case domain.TriggerDueDatePassed:
		if trigger.FromStatus != nil || trigger.ToStatus != nil || trigger.UserID != nil {
			return errors.New("a due date trigger takes no conditions")
		}
	default:
		return fmt.Errorf("unknown trigger type %q", trigger.Type)
	}

	switch action.Type {
	case domain.ActionAssignBadge:
		if action.BadgeName == "" {
			return errors.New("badge_name is required")
		}
	case domain.ActionChangeStatus:
		if action.Status == "" {
			return errors.New("status is required")
		}
		if !statusInList(p.TaskStatuses, action.Status) {
			return fmt.Errorf("status %q is not in the project's status list", action.Status)
		}
	case domain.ActionSendNotification:
		// an empty message is allowed and makes the rule a no-op
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
	return nil
}
