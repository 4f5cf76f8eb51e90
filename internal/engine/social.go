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

// InviteUser invites a user into a project. One pending invitation per
// (project, invitee) pair at a time.
func (e Engine) InviteUser(ctx context.Context, projectID, inviteeID, actorID string) (domain.Invitation, error) {
	if inviteeID == "" {
		return domain.Invitation{}, errors.New("invitee is required")
	}
	if err := e.Guard.RequireOwner(ctx, projectID, actorID); err != nil {
		return domain.Invitation{}, err
	}
	member, err := e.Repo.IsMember(ctx, projectID, inviteeID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if member {
		return domain.Invitation{}, fmt.Errorf("%s is already a project member", inviteeID)
	}
	pending, err := e.Repo.HasPendingInvitation(ctx, projectID, inviteeID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if pending {
		return domain.Invitation{}, fmt.Errorf("%s already has a pending invitation", inviteeID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureUser(ctx, inviteeID, "", now); err != nil {
		return domain.Invitation{}, err
	}
	inv := domain.Invitation{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		InviterID: actorID,
		InviteeID: inviteeID,
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, "invitation.created", projectID, "invitation", inv.ID, actorID, events.EventPayload{"invitee": inviteeID}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}

	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return inv, nil
	}
	n := domain.Notification{
		ID:           uuid.New().String(),
		RecipientID:  inviteeID,
		SenderID:     actorID,
		Type:         domain.NotificationProjectInvitation,
		Message:      fmt.Sprintf("You were invited to %s", p.Title),
		ProjectID:    &projectID,
		InvitationID: &inv.ID,
		CreatedAt:    now,
	}
	if err := e.Repo.InsertNotification(ctx, n); err != nil {
		e.Log.Warn().Err(err).Str("invitation_id", inv.ID).Msg("invitation notification")
	}
	return inv, nil
}

// RespondInvitation lets the invitee accept or decline. Accepting adds the
// membership in the same transaction as the status flip.
func (e Engine) RespondInvitation(ctx context.Context, invitationID string, accept bool, actorID string) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if inv.InviteeID != actorID {
		return inv, errors.New("only the invitee can respond to an invitation")
	}
	if inv.Status != "pending" {
		return inv, fmt.Errorf("invitation already %s", inv.Status)
	}
	status := "declined"
	if accept {
		status = "accepted"
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return inv, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetInvitationStatus(ctx, tx, inv.ID, status, now); err != nil {
		return inv, err
	}
	if accept {
		if err := e.Repo.AddMember(ctx, tx, inv.ProjectID, inv.InviteeID, now); err != nil {
			return inv, err
		}
	}
	if err := e.Events.Append(ctx, tx, "invitation."+status, inv.ProjectID, "invitation", inv.ID, actorID, events.EventPayload{}); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	inv.Status = status
	inv.UpdatedAt = now

	n := domain.Notification{
		ID:           uuid.New().String(),
		RecipientID:  inv.InviterID,
		SenderID:     actorID,
		Type:         domain.NotificationProjectInvitation,
		Message:      fmt.Sprintf("%s %s your invitation", actorID, status),
		ProjectID:    &inv.ProjectID,
		InvitationID: &inv.ID,
		CreatedAt:    now,
	}
	if err := e.Repo.InsertNotification(ctx, n); err != nil {
		e.Log.Warn().Err(err).Str("invitation_id", inv.ID).Msg("response notification")
	}
	return inv, nil
}

// ListInvitations returns invitations addressed to the actor, optionally
// filtered by status.
func (e Engine) ListInvitations(ctx context.Context, actorID, status string) ([]domain.Invitation, error) {
	return e.Repo.ListInvitationsForUser(ctx, actorID, status)
}

func (e Engine) ListNotifications(ctx context.Context, actorID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.ListNotifications(ctx, actorID, unreadOnly, limit)
}

// MarkNotificationRead flips the read flag. Only the recipient can do it.
func (e Engine) MarkNotificationRead(ctx context.Context, id, actorID string) error {
	n, err := e.Repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.RecipientID != actorID {
		return errors.New("not the notification recipient")
	}
	return e.Repo.MarkNotificationRead(ctx, id)
}

func (e Engine) MarkAllNotificationsRead(ctx context.Context, actorID string) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, actorID)
}

func (e Engine) ListBadges(ctx context.Context, userID string) ([]domain.Badge, error) {
	return e.Repo.ListBadges(ctx, userID)
}
