package server

import (
	"flowboard/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Title        string   `json:"title" example:"Website relaunch"`
	Description  *string  `json:"description,omitempty"`
	TaskStatuses []string `json:"task_statuses,omitempty"`
}

type UpdateProjectRequest struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	TaskStatuses []string `json:"task_statuses,omitempty"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" example:"Write launch post"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type CreateAutomationRequest struct {
	Name    string         `json:"name" example:"Finisher badge"`
	Active  *bool          `json:"active,omitempty"`
	Trigger domain.Trigger `json:"trigger"`
	Action  domain.Action  `json:"action"`
}

type UpdateAutomationRequest struct {
	Name    *string         `json:"name,omitempty"`
	Active  *bool           `json:"active,omitempty"`
	Trigger *domain.Trigger `json:"trigger,omitempty"`
	Action  *domain.Action  `json:"action,omitempty"`
}

type CreateInvitationRequest struct {
	InviteeID string `json:"invitee_id" example:"bob"`
}

type RespondInvitationRequest struct {
	Accept bool `json:"accept"`
}

// Response payloads

type ProjectResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	OwnerID      string   `json:"owner_id"`
	TaskStatuses []string `json:"task_statuses"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		OwnerID:      p.OwnerID,
		TaskStatuses: p.TaskStatuses,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func mapProjects(in []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(in))
	for _, p := range in {
		out = append(out, projectResponse(p))
	}
	return out
}

type TaskResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		AssigneeID:  t.AssigneeID,
		DueDate:     t.DueDate,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

type AutomationResponse struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Active    bool           `json:"active"`
	Trigger   domain.Trigger `json:"trigger"`
	Action    domain.Action  `json:"action"`
	CreatedBy string         `json:"created_by"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func automationResponse(a domain.Automation) AutomationResponse {
	return AutomationResponse{
		ID:        a.ID,
		ProjectID: a.ProjectID,
		Name:      a.Name,
		Active:    a.Active,
		Trigger:   a.Trigger,
		Action:    a.Action,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func mapAutomations(in []domain.Automation) []AutomationResponse {
	out := make([]AutomationResponse, 0, len(in))
	for _, a := range in {
		out = append(out, automationResponse(a))
	}
	return out
}

type InvitationResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func invitationResponse(inv domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:        inv.ID,
		ProjectID: inv.ProjectID,
		InviterID: inv.InviterID,
		InviteeID: inv.InviteeID,
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

func mapInvitations(in []domain.Invitation) []InvitationResponse {
	out := make([]InvitationResponse, 0, len(in))
	for _, inv := range in {
		out = append(out, invitationResponse(inv))
	}
	return out
}

type NotificationResponse struct {
	ID           string  `json:"id"`
	RecipientID  string  `json:"recipient_id"`
	SenderID     string  `json:"sender_id"`
	Type         string  `json:"type"`
	Message      string  `json:"message"`
	Read         bool    `json:"read"`
	TaskID       *string `json:"task_id,omitempty"`
	ProjectID    *string `json:"project_id,omitempty"`
	InvitationID *string `json:"invitation_id,omitempty"`
	AutomationID *string `json:"automation_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:           n.ID,
		RecipientID:  n.RecipientID,
		SenderID:     n.SenderID,
		Type:         n.Type,
		Message:      n.Message,
		Read:         n.Read,
		TaskID:       n.TaskID,
		ProjectID:    n.ProjectID,
		InvitationID: n.InvitationID,
		AutomationID: n.AutomationID,
		CreatedAt:    n.CreatedAt,
	}
}

func mapNotifications(in []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(in))
	for _, n := range in {
		out = append(out, notificationResponse(n))
	}
	return out
}

type BadgeResponse struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
	EarnedAt  string `json:"earned_at"`
}

func mapBadges(in []domain.Badge) []BadgeResponse {
	out := make([]BadgeResponse, 0, len(in))
	for _, b := range in {
		out = append(out, BadgeResponse{UserID: b.UserID, Name: b.Name, ProjectID: b.ProjectID, EarnedAt: b.EarnedAt})
	}
	return out
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			ProjectID:  e.ProjectID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return out
}

func stringOrEmpty(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
