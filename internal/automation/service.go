package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flowboard/internal/domain"
	"flowboard/internal/events"
	"flowboard/internal/repo"
)

// Service runs the automation pipeline: detected events are matched against
// a project's active rules and each match's action is applied. Every entry
// point is fire-and-forget; failures are logged and never propagated to the
// caller.
type Service struct {
	Repo   repo.Repo
	Events events.Writer
	Log    zerolog.Logger
	Now    func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// OnTaskUpdated is the reactive entry point, invoked after a user-path task
// mutation has been committed.
func (s Service) OnTaskUpdated(ctx context.Context, previous, updated domain.Task, actorID string) {
	for _, evt := range Detect(previous, updated) {
		s.dispatch(ctx, evt, actorID)
	}
}

// RunDueDateSweep scans for tasks past their due date that are not yet
// terminal and feeds a due-date event for each into the pipeline. Tasks
// that stay overdue are picked up again on the next sweep; there is no
// dedup across ticks.
func (s Service) RunDueDateSweep(ctx context.Context) {
	cutoff := s.now().UTC().Format(time.RFC3339)
	tasks, err := s.Repo.ListOverdueTasks(ctx, cutoff)
	if err != nil {
		s.Log.Error().Err(err).Msg("sweep: list overdue tasks")
		return
	}
	for _, t := range tasks {
		s.dispatch(ctx, Event{Kind: domain.TriggerDueDatePassed, Task: t}, "")
	}
}

func (s Service) dispatch(ctx context.Context, evt Event, actorID string) {
	rules, err := s.Repo.FindAutomations(ctx, evt.Task.ProjectID, evt.Kind, true)
	if err != nil {
		s.Log.Error().Err(err).
			Str("task_id", evt.Task.ID).
			Str("event", evt.Kind).
			Msg("automation: load rules")
		return
	}
	for _, rule := range rules {
		if !Matches(rule, evt) {
			continue
		}
		if err := s.execute(ctx, rule, evt.Task, actorID); err != nil {
			s.Log.Error().Err(err).
				Str("automation_id", rule.ID).
				Str("task_id", evt.Task.ID).
				Msg("automation: execute action")
		}
	}
}

func (s Service) execute(ctx context.Context, rule domain.Automation, t domain.Task, actorID string) error {
	switch rule.Action.Type {
	case domain.ActionAssignBadge:
		return s.assignBadge(ctx, rule, t, actorID)
	case domain.ActionChangeStatus:
		return s.changeStatus(ctx, rule, t, actorID)
	case domain.ActionSendNotification:
		return s.sendNotification(ctx, rule, t, actorID)
	default:
		return fmt.Errorf("unknown action type %s", rule.Action.Type)
	}
}

// assignBadge grants the badge to the task's assignee. No assignee means
// no-op; an already-held (name, project) badge is left alone.
func (s Service) assignBadge(ctx context.Context, rule domain.Automation, t domain.Task, actorID string) error {
	if t.AssigneeID == nil {
		return nil
	}
	has, err := s.Repo.HasBadge(ctx, *t.AssigneeID, rule.Action.BadgeName, rule.ProjectID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	badge := domain.Badge{
		UserID:    *t.AssigneeID,
		Name:      rule.Action.BadgeName,
		ProjectID: rule.ProjectID,
		EarnedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.GrantBadge(ctx, badge); err != nil {
		return err
	}
	s.audit(ctx, rule, t, actorID, events.EventPayload{"action": rule.Action.Type, "badge": rule.Action.BadgeName, "user_id": *t.AssigneeID})
	return nil
}

// changeStatus writes the target status through the internal path, which
// never re-enters event detection. Automation-caused status changes must
// not trigger further automations.
func (s Service) changeStatus(ctx context.Context, rule domain.Automation, t domain.Task, actorID string) error {
	if err := s.Repo.SetTaskStatusInternal(ctx, t.ID, rule.Action.Status, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	s.audit(ctx, rule, t, actorID, events.EventPayload{"action": rule.Action.Type, "from": t.Status, "to": rule.Action.Status})
	return nil
}

// sendNotification renders the rule's template and records a notification
// for the task's assignee. The sender falls back to the task creator when
// no acting user is available, as with scheduler-originated events.
func (s Service) sendNotification(ctx context.Context, rule domain.Automation, t domain.Task, actorID string) error {
	if t.AssigneeID == nil || rule.Action.NotificationMessage == "" {
		return nil
	}
	sender := actorID
	if sender == "" {
		sender = t.CreatedBy
	}
	n := domain.Notification{
		ID:           uuid.New().String(),
		RecipientID:  *t.AssigneeID,
		SenderID:     sender,
		Type:         domain.NotificationAutomationTriggered,
		Message:      RenderMessage(rule.Action.NotificationMessage, t),
		TaskID:       &t.ID,
		ProjectID:    &rule.ProjectID,
		AutomationID: &rule.ID,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertNotification(ctx, n); err != nil {
		return err
	}
	s.audit(ctx, rule, t, actorID, events.EventPayload{"action": rule.Action.Type, "recipient": n.RecipientID})
	return nil
}

func (s Service) audit(ctx context.Context, rule domain.Automation, t domain.Task, actorID string, payload events.EventPayload) {
	if actorID == "" {
		actorID = "scheduler"
	}
	payload["task_id"] = t.ID
	if err := s.Events.AppendDB(ctx, "automation.executed", rule.ProjectID, "automation", rule.ID, actorID, payload); err != nil {
		s.Log.Warn().Err(err).Str("automation_id", rule.ID).Msg("automation: audit append")
	}
}
