package flowboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Flowboard HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	OwnerID      string   `json:"owner_id"`
	TaskStatuses []string `json:"task_statuses"`
}

// Task represents the API task model.
type Task struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	AssigneeID string `json:"assignee_id,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
}

// Trigger is the condition half of an automation rule.
type Trigger struct {
	Type       string  `json:"type"`
	FromStatus *string `json:"from_status,omitempty"`
	ToStatus   *string `json:"to_status,omitempty"`
	UserID     *string `json:"user_id,omitempty"`
}

// Action is the effect half of an automation rule.
type Action struct {
	Type                string `json:"type"`
	BadgeName           string `json:"badge_name,omitempty"`
	Status              string `json:"status,omitempty"`
	NotificationMessage string `json:"notification_message,omitempty"`
}

// Automation represents a rule.
type Automation struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Active    bool    `json:"active"`
	Trigger   Trigger `json:"trigger"`
	Action    Action  `json:"action"`
}

// Invitation represents a membership invitation.
type Invitation struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Status    string `json:"status"`
}

// Notification represents an inbox entry.
type Notification struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id"`
	Type        string `json:"type"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
	TaskID      string `json:"task_id,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, title string, statuses []string) (Project, error) {
	body := map[string]any{"title": title}
	if len(statuses) > 0 {
		body["task_statuses"] = statuses
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// CreateTask creates a task on the client's project.
func (c *Client) CreateTask(ctx context.Context, title, assigneeID, dueDate string) (Task, error) {
	body := map[string]any{"title": title}
	if assigneeID != "" {
		body["assignee_id"] = assigneeID
	}
	if dueDate != "" {
		body["due_date"] = dueDate
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), body, &resp)
	return resp, err
}

// MoveTask changes a task's status.
func (c *Client) MoveTask(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	endpoint := c.projectPath(fmt.Sprintf("tasks/%s", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// AssignTask sets a task's assignee. An empty assignee clears it.
func (c *Client) AssignTask(ctx context.Context, taskID, assigneeID string) (Task, error) {
	var body map[string]any
	if assigneeID == "" {
		body = map[string]any{"assignee_id": nil}
	} else {
		body = map[string]any{"assignee_id": assigneeID}
	}
	var resp Task
	endpoint := c.projectPath(fmt.Sprintf("tasks/%s", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := c.projectPath("tasks")
	if status != "" {
		endpoint = fmt.Sprintf("%s?status=%s", endpoint, url.QueryEscape(status))
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateAutomation creates an automation rule on the client's project.
func (c *Client) CreateAutomation(ctx context.Context, name string, trigger Trigger, action Action) (Automation, error) {
	body := map[string]any{
		"name":    name,
		"trigger": trigger,
		"action":  action,
	}
	var resp Automation
	err := c.do(ctx, http.MethodPost, c.projectPath("automations"), body, &resp)
	return resp, err
}

// Invite invites a user to the client's project.
func (c *Client) Invite(ctx context.Context, inviteeID string) (Invitation, error) {
	var resp Invitation
	err := c.do(ctx, http.MethodPost, c.projectPath("invitations"), map[string]any{"invitee_id": inviteeID}, &resp)
	return resp, err
}

// RespondInvitation accepts or declines an invitation addressed to the caller.
func (c *Client) RespondInvitation(ctx context.Context, invitationID string, accept bool) (Invitation, error) {
	var resp Invitation
	endpoint := fmt.Sprintf("v0/invitations/%s/respond", url.PathEscape(invitationID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"accept": accept}, &resp)
	return resp, err
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "v0/notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent audit events for the client's project.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
