package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flowboard/internal/config"
	"flowboard/internal/db"
	"flowboard/internal/domain"
	"flowboard/internal/engine"
	"flowboard/internal/engine/auth"
	"flowboard/internal/migrate"
	"flowboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

// newProject creates a project owned by alice with bob as a member.
func (env testEnv) newProject(t *testing.T) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "Launch", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	inv, err := env.Engine.InviteUser(env.Ctx, p.ID, "bob", "alice")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, true, "bob"); err != nil {
		t.Fatalf("accept invitation: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }

func TestProjectDefaults(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "Launch", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	want := domain.DefaultTaskStatuses()
	if len(p.TaskStatuses) != len(want) || p.TaskStatuses[0] != "To Do" {
		t.Fatalf("unexpected statuses %v", p.TaskStatuses)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "First", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "To Do" {
		t.Fatalf("new task should take the first status, got %s", task.Status)
	}
}

func TestProjectOwnerGating(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)

	// members can read but not reshape the project
	if _, err := env.Engine.GetProject(env.Ctx, p.ID, "bob"); err != nil {
		t.Fatalf("member read: %v", err)
	}
	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Title: strPtr("Renamed"), ActorID: "bob"})
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Role != auth.RoleOwner {
		t.Fatalf("expected owner-role error, got %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, p.ID, "bob"); !errors.As(err, &forbidden) {
		t.Fatalf("expected owner-role error on delete, got %v", err)
	}

	// non-members see nothing at all
	if _, err := env.Engine.GetProject(env.Ctx, p.ID, "mallory"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}

func TestInvalidTaskStatusRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", Status: "Shipped", ActorID: "alice"})
	if err == nil {
		t.Fatalf("expected invalid status error")
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: strPtr("Shipped"), ActorID: "alice"}); err == nil {
		t.Fatalf("expected invalid status error on update")
	}
}

func TestDeleteTaskOwnerOrCreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	inv, err := env.Engine.InviteUser(env.Ctx, p.ID, "carol", "alice")
	if err != nil {
		t.Fatalf("invite carol: %v", err)
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, true, "carol"); err != nil {
		t.Fatalf("accept invitation: %v", err)
	}

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ship", ActorID: "bob"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	var forbidden auth.ForbiddenError
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "carol"); !errors.As(err, &forbidden) || forbidden.Role != auth.RoleOwner {
		t.Fatalf("plain member must not delete another member's task, got %v", err)
	}
	// the creator can
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "bob"); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	// and so can the owner
	task, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ship again", ActorID: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "alice"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestFinisherBadgeFlow(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	_, err := env.Engine.CreateAutomation(env.Ctx, engine.AutomationCreateOptions{
		ProjectID: p.ID,
		Name:      "Finisher",
		Trigger:   domain.Trigger{Type: domain.TriggerStatusChange, ToStatus: strPtr("Done")},
		Action:    domain.Action{Type: domain.ActionAssignBadge, BadgeName: "Finisher"},
		ActorID:   "alice",
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ship", AssigneeID: "bob", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: strPtr("Done"), ActorID: "bob"}); err != nil {
		t.Fatalf("update task: %v", err)
	}
	badges, err := env.Engine.ListBadges(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("list badges: %v", err)
	}
	if len(badges) != 1 || badges[0].Name != "Finisher" {
		t.Fatalf("expected Finisher badge, got %+v", badges)
	}
}

func TestOffsetDueDateNormalizedAndSwept(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	_, err := env.Engine.CreateAutomation(env.Ctx, engine.AutomationCreateOptions{
		ProjectID: p.ID,
		Name:      "Overdue ping",
		Trigger:   domain.Trigger{Type: domain.TriggerDueDatePassed},
		Action:    domain.Action{Type: domain.ActionSendNotification, NotificationMessage: "{task.title} is overdue"},
		ActorID:   "alice",
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}
	// chronologically overdue against the 2024-03-01T00:00:00Z clock, but
	// submitted with a non-UTC offset
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:  p.ID,
		Title:      "Late",
		AssigneeID: "bob",
		DueDate:    "2024-03-01T00:00:01+05:00",
		ActorID:    "alice",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.DueDate == nil || *task.DueDate != "2024-02-29T19:00:01Z" {
		t.Fatalf("due date should be stored in UTC, got %v", task.DueDate)
	}

	svc := env.Engine.Rules
	svc.Now = env.Engine.Now
	svc.RunDueDateSweep(env.Ctx)

	list, err := env.Engine.ListNotifications(env.Ctx, "bob", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, n := range list {
		if n.Message == "Late is overdue" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sweep missed the offset due date, notifications %+v", list)
	}

	// an offset-shifted update is normalized too
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:      task.ID,
		DueDate: strPtr("2024-03-02T09:00:00-04:00"),
		ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("update due date: %v", err)
	}
	if updated.DueDate == nil || *updated.DueDate != "2024-03-02T13:00:00Z" {
		t.Fatalf("updated due date should be stored in UTC, got %v", updated.DueDate)
	}
}

func TestAssignmentAutomationMovesTaskOnce(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	_, err := env.Engine.CreateAutomation(env.Ctx, engine.AutomationCreateOptions{
		ProjectID: p.ID,
		Name:      "Kickoff",
		Trigger:   domain.Trigger{Type: domain.TriggerAssignment},
		Action:    domain.Action{Type: domain.ActionChangeStatus, Status: "In Progress"},
		ActorID:   "alice",
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ship", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Assign: strPtr("bob"), ActorID: "alice"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "In Progress" {
		t.Fatalf("expected automation to move the task, got %s", got.Status)
	}
}

func TestAutomationRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	_, err := env.Engine.CreateAutomation(env.Ctx, engine.AutomationCreateOptions{
		ProjectID: p.ID,
		Name:      "Nope",
		Trigger:   domain.Trigger{Type: domain.TriggerDueDatePassed},
		Action:    domain.Action{Type: domain.ActionAssignBadge, BadgeName: "b"},
		ActorID:   "bob",
	})
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAutomationValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	cases := []struct {
		name    string
		trigger domain.Trigger
		action  domain.Action
	}{
		{"unknown trigger", domain.Trigger{Type: "task_deleted"}, domain.Action{Type: domain.ActionAssignBadge, BadgeName: "b"}},
		{"cross-variant condition", domain.Trigger{Type: domain.TriggerAssignment, ToStatus: strPtr("Done")}, domain.Action{Type: domain.ActionAssignBadge, BadgeName: "b"}},
		{"unknown action", domain.Trigger{Type: domain.TriggerDueDatePassed}, domain.Action{Type: "delete_task"}},
		{"missing badge name", domain.Trigger{Type: domain.TriggerDueDatePassed}, domain.Action{Type: domain.ActionAssignBadge}},
		{"status outside project list", domain.Trigger{Type: domain.TriggerDueDatePassed}, domain.Action{Type: domain.ActionChangeStatus, Status: "Archived"}},
	}
	for _, tc := range cases {
		_, err := env.Engine.CreateAutomation(env.Ctx, engine.AutomationCreateOptions{
			ProjectID: p.ID, Name: "r", Trigger: tc.trigger, Action: tc.action, ActorID: "alice",
		})
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestCourtesyAssignmentNotification(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ship", AssigneeID: "bob", ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	list, err := env.Engine.ListNotifications(env.Ctx, "bob", true, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var found bool
	for _, n := range list {
		if n.Type == domain.NotificationTaskAssignment {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected assignment notification, got %+v", list)
	}

	// self-assignment stays quiet
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Mine", AssigneeID: "alice", ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	after, err := env.Engine.ListNotifications(env.Ctx, "alice", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range after {
		if n.Type == domain.NotificationTaskAssignment {
			t.Fatalf("self-assignment must not notify: %+v", n)
		}
	}
}

func TestInvitationFlow(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "Launch", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	inv, err := env.Engine.InviteUser(env.Ctx, p.ID, "bob", "alice")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	// duplicate pending invite rejected
	if _, err := env.Engine.InviteUser(env.Ctx, p.ID, "bob", "alice"); err == nil {
		t.Fatalf("expected duplicate invitation error")
	}

	// invitee gets a notification carrying the invitation reference
	list, err := env.Engine.ListNotifications(env.Ctx, "bob", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Type != domain.NotificationProjectInvitation || list[0].InvitationID == nil {
		t.Fatalf("unexpected notifications %+v", list)
	}

	// only the invitee can respond
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, true, "mallory"); err == nil {
		t.Fatalf("expected invitee-only error")
	}
	got, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, true, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if _, err := env.Engine.GetProject(env.Ctx, p.ID, "bob"); err != nil {
		t.Fatalf("member access after accept: %v", err)
	}
	// responding twice fails
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, false, "bob"); err == nil {
		t.Fatalf("expected already-answered error")
	}
}

func TestDeclinedInvitationGrantsNothing(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "Launch", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	inv, err := env.Engine.InviteUser(env.Ctx, p.ID, "bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, inv.ID, false, "bob"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.GetProject(env.Ctx, p.ID, "bob"); !errors.As(err, &forbidden) {
		t.Fatalf("declined invitee must stay outside, got %v", err)
	}
}

func TestNotificationReadFlags(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "t", AssigneeID: "bob", ActorID: "alice"}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := env.Engine.ListNotifications(env.Ctx, "bob", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) < 2 {
		t.Fatalf("expected notifications, got %d", len(list))
	}
	// only the recipient can mark them
	if err := env.Engine.MarkNotificationRead(env.Ctx, list[0].ID, "alice"); err == nil {
		t.Fatalf("expected recipient-only error")
	}
	if err := env.Engine.MarkNotificationRead(env.Ctx, list[0].ID, "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, err := env.Engine.MarkAllNotificationsRead(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected remaining unread to be flipped")
	}
	left, err := env.Engine.ListNotifications(env.Ctx, "bob", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("expected no unread left, got %d", len(left))
	}
}

func TestEventTrail(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ship", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: strPtr("Done"), ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.LatestEvents(env.Ctx, 50, p.ID, "", "task", task.ID)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) < 2 {
		t.Fatalf("expected created and updated events, got %d", len(evts))
	}
}

func TestListTasksFilters(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "a", ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "b", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: done.ID, Status: strPtr("Done"), ActorID: "alice"}); err != nil {
		t.Fatal(err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{ProjectID: p.ID, Status: "Done"}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != done.ID {
		t.Fatalf("unexpected filter result %+v", tasks)
	}
}
