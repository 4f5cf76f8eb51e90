package domain

// Trigger kinds.
const (
	TriggerStatusChange  = "task_status_change"
	TriggerAssignment    = "task_assignment"
	TriggerDueDatePassed = "task_due_date_passed"
)

// Action kinds.
const (
	ActionAssignBadge      = "assign_badge"
	ActionChangeStatus     = "change_task_status"
	ActionSendNotification = "send_notification"
)

// Notification kinds.
const (
	NotificationTaskAssignment      = "task_assignment"
	NotificationTaskStatusUpdate    = "task_status_update"
	NotificationProjectInvitation   = "project_invitation"
	NotificationAutomationTriggered = "automation_triggered"
)

// TerminalStatus is excluded from due-date sweeps.
const TerminalStatus = "Done"

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	OwnerID      string   `json:"owner_id"`
	TaskStatuses []string `json:"task_statuses"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

// DefaultTaskStatuses is the ordered status list new projects start with.
// The first entry is the implicit default for new tasks.
func DefaultTaskStatuses() []string {
	return []string{"To Do", "In Progress", "Done"}
}

type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Trigger is the condition half of an automation. Type selects the variant;
// the optional fields only apply to their variant and absence means "any".
type Trigger struct {
	Type       string  `json:"type" enum:"task_status_change,task_assignment,task_due_date_passed"`
	FromStatus *string `json:"from_status,omitempty"`
	ToStatus   *string `json:"to_status,omitempty"`
	UserID     *string `json:"user_id,omitempty"`
}

// Action is the effect half of an automation. Type selects the variant.
type Action struct {
	Type                string `json:"type" enum:"assign_badge,change_task_status,send_notification"`
	BadgeName           string `json:"badge_name,omitempty"`
	Status              string `json:"status,omitempty"`
	NotificationMessage string `json:"notification_message,omitempty"`
}

type Automation struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Active    bool    `json:"active"`
	Trigger   Trigger `json:"trigger"`
	Action    Action  `json:"action"`
	CreatedBy string  `json:"created_by"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type Badge struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
	EarnedAt  string `json:"earned_at" format:"date-time"`
}

type Notification struct {
	ID           string  `json:"id"`
	RecipientID  string  `json:"recipient_id"`
	SenderID     string  `json:"sender_id"`
	Type         string  `json:"type" enum:"task_assignment,task_status_update,project_invitation,automation_triggered"`
	Message      string  `json:"message"`
	Read         bool    `json:"read"`
	TaskID       *string `json:"task_id,omitempty"`
	ProjectID    *string `json:"project_id,omitempty"`
	InvitationID *string `json:"invitation_id,omitempty"`
	AutomationID *string `json:"automation_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Invitation struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Status    string `json:"status" enum:"pending,accepted,declined"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
