package automation_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flowboard/internal/automation"
	"flowboard/internal/db"
	"flowboard/internal/domain"
	"flowboard/internal/events"
	"flowboard/internal/migrate"
	"flowboard/internal/repo"
)

type testEnv struct {
	DB      *sql.DB
	Repo    repo.Repo
	Service automation.Service
	Ctx     context.Context
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
	now := func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }
	r := repo.Repo{DB: conn}
	svc := automation.Service{
		Repo:   r,
		Events: events.Writer{DB: conn, Now: now},
		Log:    zerolog.Nop(),
		Now:    now,
	}
	env := testEnv{DB: conn, Repo: r, Service: svc, Ctx: context.Background()}

	if err := r.EnsureUser(env.Ctx, "alice", "Alice", "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if err := r.EnsureUser(env.Ctx, "bob", "Bob", "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	env.inTx(t, func(tx *sql.Tx) error {
		return r.InsertProject(env.Ctx, tx, domain.Project{
			ID:           "proj-1",
			Title:        "Launch",
			OwnerID:      "alice",
			TaskStatuses: domain.DefaultTaskStatuses(),
			CreatedAt:    "2024-01-01T00:00:00Z",
			UpdatedAt:    "2024-01-01T00:00:00Z",
		})
	})
	return env
}

func (env testEnv) inTx(t *testing.T, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := env.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (env testEnv) seedTask(t *testing.T, task domain.Task) domain.Task {
	t.Helper()
	if task.ProjectID == "" {
		task.ProjectID = "proj-1"
	}
	if task.Status == "" {
		task.Status = "To Do"
	}
	if task.CreatedBy == "" {
		task.CreatedBy = "alice"
	}
	task.CreatedAt = "2024-01-02T00:00:00Z"
	task.UpdatedAt = "2024-01-02T00:00:00Z"
	env.inTx(t, func(tx *sql.Tx) error {
		return env.Repo.InsertTask(env.Ctx, tx, task)
	})
	return task
}

func (env testEnv) seedAutomation(t *testing.T, a domain.Automation) domain.Automation {
	t.Helper()
	if a.ProjectID == "" {
		a.ProjectID = "proj-1"
	}
	if a.CreatedBy == "" {
		a.CreatedBy = "alice"
	}
	a.CreatedAt = "2024-01-02T00:00:00Z"
	a.UpdatedAt = "2024-01-02T00:00:00Z"
	env.inTx(t, func(tx *sql.Tx) error {
		return env.Repo.InsertAutomation(env.Ctx, tx, a)
	})
	return a
}

func (env testEnv) countNotifications(t *testing.T, recipientID string) int {
	t.Helper()
	n, err := env.Repo.CountNotifications(env.Ctx, recipientID, false)
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return n
}

func strPtr(s string) *string { return &s }

func TestDetectStatusChange(t *testing.T) {
	prev := domain.Task{ID: "t1", Status: "To Do"}
	next := prev
	next.Status = "Done"
	evts := automation.Detect(prev, next)
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	e := evts[0]
	if e.Kind != domain.TriggerStatusChange || e.FromStatus != "To Do" || e.ToStatus != "Done" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestDetectNoChangeIsSilent(t *testing.T) {
	task := domain.Task{ID: "t1", Status: "To Do", AssigneeID: strPtr("bob")}
	if evts := automation.Detect(task, task); len(evts) != 0 {
		t.Fatalf("expected no events, got %d", len(evts))
	}
}

func TestDetectAssignment(t *testing.T) {
	prev := domain.Task{ID: "t1", Status: "To Do"}
	next := prev
	next.AssigneeID = strPtr("bob")
	evts := automation.Detect(prev, next)
	if len(evts) != 1 || evts[0].Kind != domain.TriggerAssignment || evts[0].AssigneeID != "bob" {
		t.Fatalf("unexpected events %+v", evts)
	}

	// reassignment to a different user fires again
	re := next
	re.AssigneeID = strPtr("alice")
	evts = automation.Detect(next, re)
	if len(evts) != 1 || evts[0].AssigneeID != "alice" {
		t.Fatalf("unexpected reassignment events %+v", evts)
	}
}

func TestDetectUnassignmentSilent(t *testing.T) {
	prev := domain.Task{ID: "t1", Status: "To Do", AssigneeID: strPtr("bob")}
	next := prev
	next.AssigneeID = nil
	if evts := automation.Detect(prev, next); len(evts) != 0 {
		t.Fatalf("unassignment should be silent, got %+v", evts)
	}
	// same user again is also silent
	same := prev
	same.AssigneeID = strPtr("bob")
	if evts := automation.Detect(prev, same); len(evts) != 0 {
		t.Fatalf("same-user reassignment should be silent, got %+v", evts)
	}
}

func TestDetectCombinedUpdate(t *testing.T) {
	prev := domain.Task{ID: "t1", Status: "To Do"}
	next := prev
	next.Status = "In Progress"
	next.AssigneeID = strPtr("bob")
	evts := automation.Detect(prev, next)
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Kind != domain.TriggerStatusChange || evts[1].Kind != domain.TriggerAssignment {
		t.Fatalf("unexpected event order %+v", evts)
	}
}

func TestMatchesAbsentConditionsMeanAny(t *testing.T) {
	rule := domain.Automation{Trigger: domain.Trigger{Type: domain.TriggerStatusChange}}
	evt := automation.Event{Kind: domain.TriggerStatusChange, FromStatus: "To Do", ToStatus: "Done"}
	if !automation.Matches(rule, evt) {
		t.Fatalf("unconditioned status trigger should match any transition")
	}

	rule.Trigger.ToStatus = strPtr("Done")
	if !automation.Matches(rule, evt) {
		t.Fatalf("to_status=Done should match")
	}
	rule.Trigger.ToStatus = strPtr("In Progress")
	if automation.Matches(rule, evt) {
		t.Fatalf("to_status mismatch should not match")
	}

	rule = domain.Automation{Trigger: domain.Trigger{Type: domain.TriggerStatusChange, FromStatus: strPtr("In Progress")}}
	if automation.Matches(rule, evt) {
		t.Fatalf("from_status mismatch should not match")
	}
}

func TestMatchesKindMismatch(t *testing.T) {
	rule := domain.Automation{Trigger: domain.Trigger{Type: domain.TriggerAssignment}}
	evt := automation.Event{Kind: domain.TriggerStatusChange, ToStatus: "Done"}
	if automation.Matches(rule, evt) {
		t.Fatalf("assignment trigger must not match status event")
	}

	rule = domain.Automation{Trigger: domain.Trigger{Type: domain.TriggerAssignment, UserID: strPtr("bob")}}
	evt = automation.Event{Kind: domain.TriggerAssignment, AssigneeID: "bob"}
	if !automation.Matches(rule, evt) {
		t.Fatalf("user-scoped assignment trigger should match")
	}
	evt.AssigneeID = "alice"
	if automation.Matches(rule, evt) {
		t.Fatalf("user mismatch should not match")
	}
}

func TestRenderMessage(t *testing.T) {
	task := domain.Task{
		Title:   "Ship",
		Status:  "Done",
		DueDate: strPtr("2024-01-15T09:00:00Z"),
	}
	got := automation.RenderMessage("Task {task.title} is {task.status}, due {task.dueDate}", task)
	want := "Task Ship is Done, due 2024-01-15"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	// without a due date the placeholder stays verbatim
	task.DueDate = nil
	got = automation.RenderMessage("due {task.dueDate}", task)
	if got != "due {task.dueDate}" {
		t.Fatalf("got %q", got)
	}

	// only the first occurrence is replaced
	got = automation.RenderMessage("{task.title} {task.title}", task)
	if got != "Ship {task.title}" {
		t.Fatalf("got %q", got)
	}
}

func TestBadgeAssignedOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Finisher",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange, ToStatus: strPtr("Done")},
		Action:  domain.Action{Type: domain.ActionAssignBadge, BadgeName: "Finisher"},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship", AssigneeID: strPtr("bob")})

	done := task
	done.Status = "Done"
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")

	badges, err := env.Repo.ListBadges(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("list badges: %v", err)
	}
	if len(badges) != 1 || badges[0].Name != "Finisher" || badges[0].ProjectID != "proj-1" {
		t.Fatalf("expected single Finisher badge, got %+v", badges)
	}
}

func TestBadgeSkippedWithoutAssignee(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Finisher",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange},
		Action:  domain.Action{Type: domain.ActionAssignBadge, BadgeName: "Finisher"},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship"})
	done := task
	done.Status = "Done"
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")

	var count int
	if err := env.DB.QueryRow(`SELECT count(*) FROM user_badges`).Scan(&count); err != nil {
		t.Fatalf("count badges: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no badges, got %d", count)
	}
}

func TestChangeStatusDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	// t1: assignment moves the task to In Progress
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Kickoff",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerAssignment},
		Action:  domain.Action{Type: domain.ActionChangeStatus, Status: "In Progress"},
	})
	// a second rule that would fire on the automation's own write if the
	// executor fed its status changes back into detection
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-2",
		Name:    "Chain",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange, ToStatus: strPtr("In Progress")},
		Action:  domain.Action{Type: domain.ActionSendNotification, NotificationMessage: "chained"},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship"})
	assigned := task
	assigned.AssigneeID = strPtr("bob")
	env.Service.OnTaskUpdated(env.Ctx, task, assigned, "alice")

	got, err := env.Repo.GetTask(env.Ctx, "t1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != "In Progress" {
		t.Fatalf("expected In Progress, got %s", got.Status)
	}
	if n := env.countNotifications(t, "bob"); n != 0 {
		t.Fatalf("automation status write must not trigger further rules, got %d notifications", n)
	}
}

func TestInactiveRuleNeverFires(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Disabled",
		Active:  false,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange},
		Action:  domain.Action{Type: domain.ActionSendNotification, NotificationMessage: "never"},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship", AssigneeID: strPtr("bob")})
	done := task
	done.Status = "Done"
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")

	if n := env.countNotifications(t, "bob"); n != 0 {
		t.Fatalf("inactive rule fired: %d notifications", n)
	}
}

func TestSendNotification(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Done ping",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange, ToStatus: strPtr("Done")},
		Action:  domain.Action{Type: domain.ActionSendNotification, NotificationMessage: "{task.title} is {task.status}"},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship", AssigneeID: strPtr("bob")})
	done := task
	done.Status = "Done"
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")

	list, err := env.Repo.ListNotifications(env.Ctx, "bob", false, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}
	n := list[0]
	if n.Message != "Ship is Done" {
		t.Fatalf("unexpected message %q", n.Message)
	}
	if n.SenderID != "alice" || n.Type != domain.NotificationAutomationTriggered {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.AutomationID == nil || *n.AutomationID != "auto-1" {
		t.Fatalf("expected automation back-reference, got %+v", n.AutomationID)
	}
}

func TestSendNotificationGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Empty",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange},
		Action:  domain.Action{Type: domain.ActionSendNotification, NotificationMessage: ""},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship", AssigneeID: strPtr("bob")})
	done := task
	done.Status = "Done"
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")
	if n := env.countNotifications(t, "bob"); n != 0 {
		t.Fatalf("empty template must be a no-op, got %d", n)
	}

	// no assignee, even with a template
	env2 := newTestEnv(t)
	env2.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Ping",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange},
		Action:  domain.Action{Type: domain.ActionSendNotification, NotificationMessage: "hi"},
	})
	unassigned := env2.seedTask(t, domain.Task{ID: "t2", Title: "Ship"})
	done2 := unassigned
	done2.Status = "Done"
	env2.Service.OnTaskUpdated(env2.Ctx, unassigned, done2, "alice")
	var count int
	if err := env2.DB.QueryRow(`SELECT count(*) FROM notifications`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("unassigned task must be a no-op, got %d", count)
	}
}

func TestDueDateSweep(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Overdue ping",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerDueDatePassed},
		Action:  domain.Action{Type: domain.ActionSendNotification, NotificationMessage: "{task.title} is overdue"},
	})
	// overdue, not terminal: fires
	env.seedTask(t, domain.Task{ID: "t1", Title: "Late", AssigneeID: strPtr("bob"), DueDate: strPtr("2024-01-15T00:00:00Z")})
	// overdue but Done: skipped
	env.seedTask(t, domain.Task{ID: "t2", Title: "Finished", Status: "Done", AssigneeID: strPtr("bob"), DueDate: strPtr("2024-01-15T00:00:00Z")})
	// due in the future: skipped
	env.seedTask(t, domain.Task{ID: "t3", Title: "Future", AssigneeID: strPtr("bob"), DueDate: strPtr("2024-03-01T00:00:00Z")})
	// no due date: skipped
	env.seedTask(t, domain.Task{ID: "t4", Title: "Whenever", AssigneeID: strPtr("bob")})

	env.Service.RunDueDateSweep(env.Ctx)
	if n := env.countNotifications(t, "bob"); n != 1 {
		t.Fatalf("expected 1 notification after first sweep, got %d", n)
	}

	// a task still overdue on the next sweep fires again
	env.Service.RunDueDateSweep(env.Ctx)
	if n := env.countNotifications(t, "bob"); n != 2 {
		t.Fatalf("expected 2 notifications after second sweep, got %d", n)
	}

	// sweep-originated notifications fall back to the task creator as sender
	list, err := env.Repo.ListNotifications(env.Ctx, "bob", false, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, n := range list {
		if n.SenderID != "alice" {
			t.Fatalf("expected sender fallback to creator, got %s", n.SenderID)
		}
		if n.Message != "Late is overdue" {
			t.Fatalf("unexpected message %q", n.Message)
		}
	}
}

func TestExecutedRulesAppendAuditEvents(t *testing.T) {
	env := newTestEnv(t)
	env.seedAutomation(t, domain.Automation{
		ID:      "auto-1",
		Name:    "Finisher",
		Active:  true,
		Trigger: domain.Trigger{Type: domain.TriggerStatusChange, ToStatus: strPtr("Done")},
		Action:  domain.Action{Type: domain.ActionAssignBadge, BadgeName: "Finisher"},
	})
	task := env.seedTask(t, domain.Task{ID: "t1", Title: "Ship", AssigneeID: strPtr("bob")})
	done := task
	done.Status = "Done"
	env.Service.OnTaskUpdated(env.Ctx, task, done, "alice")

	evts, err := env.Repo.LatestEvents(env.Ctx, 10, "proj-1", "automation.executed", "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 || evts[0].ActorID != "alice" || evts[0].EntityID != "auto-1" {
		t.Fatalf("unexpected audit trail %+v", evts)
	}
}
