package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flowboard/internal/automation"
	"flowboard/internal/config"
	"flowboard/internal/domain"
	"flowboard/internal/engine/auth"
	"flowboard/internal/events"
	"flowboard/internal/repo"
)

// Engine holds the application operations. All writes go through here so
// audit events and automation dispatch stay consistent.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Guard  auth.Guard
	Rules  automation.Service
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(conn *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	e := Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Config: cfg,
		Guard:  auth.Guard{DB: conn},
		Log:    log,
		Now:    time.Now,
	}
	e.Rules = automation.Service{Repo: e.Repo, Events: e.Events, Log: log}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// rules returns the automation service sharing the engine's clock.
func (e Engine) rules() automation.Service {
	s := e.Rules
	s.Now = e.Now
	return s
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Title        string
	Description  string
	TaskStatuses []string
	ActorID      string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Title == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if opts.ActorID == "" {
		return domain.Project{}, errors.New("actor is required")
	}
	statuses := opts.TaskStatuses
	if len(statuses) == 0 {
		statuses = domain.DefaultTaskStatuses()
	}
	if err := validateStatusList(statuses); err != nil {
		return domain.Project{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureUser(ctx, opts.ActorID, "", now); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:           uuid.New().String(),
		Title:        opts.Title,
		Description:  opts.Description,
		OwnerID:      opts.ActorID,
		TaskStatuses: statuses,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	if err := e.Guard.RequireMember(ctx, id, actorID); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

// ListProjects returns projects the actor owns or belongs to.
func (e Engine) ListProjects(ctx context.Context, actorID string) ([]domain.Project, error) {
	return e.Repo.ListProjectsForUser(ctx, actorID)
}

// ProjectUpdateOptions carries partial project updates. Nil fields are left
// untouched.
type ProjectUpdateOptions struct {
	ID           string
	Title        *string
	Description  *string
	TaskStatuses []string
	ActorID      string
}

// UpdateProject applies the update. Replacing the status list does not
// rewrite existing tasks; a task whose status was removed keeps it until
// the next status change.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if err := e.Guard.RequireOwner(ctx, opts.ID, opts.ActorID); err != nil {
		return domain.Project{}, err
	}
	if opts.Title != nil && *opts.Title == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if opts.TaskStatuses != nil {
		if err := validateStatusList(opts.TaskStatuses); err != nil {
			return domain.Project{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	u := repo.ProjectUpdate{Title: opts.Title, Description: opts.Description, TaskStatuses: opts.TaskStatuses}
	if err := e.Repo.UpdateProject(ctx, tx, opts.ID, u, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", opts.ID, "project", opts.ID, opts.ActorID, events.EventPayload{}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, opts.ID)
}

// DeleteProject removes the project and, via the schema, its tasks,
// automations, memberships and invitations.
func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	if err := e.Guard.RequireOwner(ctx, id, actorID); err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	if err := e.Events.AppendDB(ctx, "project.deleted", id, "project", id, actorID, events.EventPayload{}); err != nil {
		e.Log.Warn().Err(err).Str("project_id", id).Msg("audit append")
	}
	return nil
}

func (e Engine) ListMembers(ctx context.Context, projectID, actorID string) ([]string, error) {
	if err := e.Guard.RequireMember(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, projectID)
}

// RemoveMember drops a user from the project. The owner cannot be removed.
func (e Engine) RemoveMember(ctx context.Context, projectID, userID, actorID string) error {
	if err := e.Guard.RequireOwner(ctx, projectID, actorID); err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.OwnerID == userID {
		return errors.New("cannot remove the project owner")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveMember(ctx, tx, projectID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.removed", projectID, "member", userID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, projectID, evtType, entityKind, entityID)
}

func validateStatusList(statuses []string) error {
	if len(statuses) == 0 {
		return errors.New("at least one task status is required")
	}
	seen := map[string]bool{}
	for _, s := range statuses {
		if s == "" {
			return errors.New("task status names must be non-empty")
		}
		if seen[s] {
			return fmt.Errorf("duplicate task status %q", s)
		}
		seen[s] = true
	}
	return nil
}

func statusInList(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
