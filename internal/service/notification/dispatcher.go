package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/email"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/events"
)

// Dispatcher fans an absence status change out to in-app notifications,
// email and the event stream. Decision emails are sent in the background.
type Dispatcher struct {
	notifications notification.Service
	users         user.UserRepository
	email         email.EmailService
	publisher     events.Publisher
	loc           *time.Location
	baseURL       string

	mailing sync.WaitGroup
}

// NewDispatcher wires the delivery channels. email and publisher may be nil.
func NewDispatcher(
	notifications notification.Service,
	users user.UserRepository,
	emailService email.EmailService,
	publisher events.Publisher,
	loc *time.Location,
	baseURL string,
) *Dispatcher {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		email:         emailService,
		publisher:     publisher,
		loc:           loc,
		baseURL:       baseURL,
	}
}

// AbsenceStatusChanged implements absence.Notifier. Every channel is
// attempted; the returned error joins the failures. Decision email failures
// are only logged since delivery finishes after the call returns.
func (d *Dispatcher) AbsenceStatusChanged(ctx context.Context, change absence.StatusChange) error {
	var errs []error

	if err := d.notifyRequester(ctx, change); err != nil {
		errs = append(errs, fmt.Errorf("requester notification: %w", err))
	}
	if change.NewStatus == absence.StatusPending {
		if err := d.notifyAdmins(ctx, change); err != nil {
			errs = append(errs, fmt.Errorf("admin notification: %w", err))
		}
	}
	if change.NewStatus == absence.StatusApproved || change.NewStatus == absence.StatusRefused {
		d.mailDecision(ctx, change)
	}
	if err := d.publisher.PublishAbsenceStatusChanged(ctx, toEvent(change)); err != nil {
		errs = append(errs, fmt.Errorf("publish event: %w", err))
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) notifyRequester(ctx context.Context, change absence.StatusChange) error {
	notifType, title, message := requesterMessage(change)
	if notifType == "" {
		return nil
	}
	return d.notifications.Enqueue(ctx, notification.Draft{
		RecipientID: change.UserID,
		SenderID:    senderOf(change),
		RequestID:   &change.RequestID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		Data:        d.payload(change),
	})
}

func (d *Dispatcher) notifyAdmins(ctx context.Context, change absence.StatusChange) error {
	admins, err := d.users.ListByRole(ctx, user.Admin)
	if err != nil {
		return err
	}

	requester := change.UserID
	if u, err := d.users.GetByID(ctx, change.UserID); err == nil {
		requester = displayName(u)
	}

	drafts := make([]notification.Draft, 0, len(admins))
	for _, admin := range admins {
		if admin.ID == change.UserID {
			continue
		}
		drafts = append(drafts, notification.Draft{
			RecipientID: admin.ID,
			SenderID:    &change.UserID,
			RequestID:   &change.RequestID,
			Type:        notification.TypeAbsenceToReview,
			Title:       fmt.Sprintf("Nouvelle demande de %s", kindLabel(change.Kind)),
			Message:     fmt.Sprintf("%s a demandé %s (%s) : %s.", requester, kindLabel(change.Kind), change.Category, d.periodLabel(change)),
			Data:        d.payload(change),
		})
	}
	return d.notifications.Enqueue(ctx, drafts...)
}

// mailDecision sends on a context that outlives the request.
func (d *Dispatcher) mailDecision(ctx context.Context, change absence.StatusChange) {
	if d.email == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.mailing.Add(1)
	go func() {
		defer d.mailing.Done()
		if err := d.sendDecisionEmail(ctx, change); err != nil {
			slog.Error("Failed to send decision email", "request_id", change.RequestID, "user_id", change.UserID, "error", err)
		}
	}()
}

// Wait blocks until background emails have been handed to the mail server.
func (d *Dispatcher) Wait() {
	d.mailing.Wait()
}

func (d *Dispatcher) sendDecisionEmail(ctx context.Context, change absence.StatusChange) error {
	u, err := d.users.GetByID(ctx, change.UserID)
	if err != nil {
		return err
	}

	data := email.AbsenceDecisionData{
		FullName:  displayName(u),
		KindLabel: kindLabel(change.Kind),
		Category:  string(change.Category),
		Period:    d.periodLabel(change),
		Units:     change.Units.String(),
		Approved:  change.NewStatus == absence.StatusApproved,
		Link:      fmt.Sprintf("%s/absences/%s", d.baseURL, change.RequestID),
	}
	if change.RefusalReason != nil {
		data.RefusalReason = *change.RefusalReason
	}
	return d.email.SendAbsenceDecision(u.Email, data)
}

func (d *Dispatcher) payload(change absence.StatusChange) map[string]interface{} {
	return map[string]interface{}{
		"request_id": change.RequestID,
		"kind":       string(change.Kind),
		"category":   string(change.Category),
		"status":     string(change.NewStatus),
		"units":      change.Units.String(),
		"period":     d.periodLabel(change),
	}
}

func (d *Dispatcher) periodLabel(change absence.StatusChange) string {
	p := change.Period
	if p.IsZero() {
		return ""
	}
	if change.Kind == absence.KindLeave {
		return fmt.Sprintf("du %s au %s", p.Start.Format("02/01/2006"), p.End.Format("02/01/2006"))
	}
	s, e := p.Start.In(d.loc), p.End.In(d.loc)
	return fmt.Sprintf("le %s de %s à %s", s.Format("02/01/2006"), s.Format("15:04"), e.Format("15:04"))
}

func requesterMessage(change absence.StatusChange) (notification.Type, string, string) {
	label := kindLabel(change.Kind)
	switch change.NewStatus {
	case absence.StatusPending:
		return notification.TypeAbsenceSubmitted, "Demande envoyée",
			fmt.Sprintf("Votre demande de %s est en attente de validation.", label)
	case absence.StatusApproved:
		return notification.TypeAbsenceApproved, "Demande acceptée",
			fmt.Sprintf("Votre demande de %s a été acceptée.", label)
	case absence.StatusRefused:
		msg := fmt.Sprintf("Votre demande de %s a été refusée.", label)
		if change.RefusalReason != nil {
			msg += " Motif : " + *change.RefusalReason
		}
		return notification.TypeAbsenceRefused, "Demande refusée", msg
	case absence.StatusWithdrawn:
		return notification.TypeAbsenceWithdrawn, "Demande retirée",
			fmt.Sprintf("Votre demande de %s a été retirée.", label)
	case absence.StatusActive:
		return notification.TypeAbsenceStarted, "Absence commencée",
			fmt.Sprintf("Votre %s commence.", label)
	case absence.StatusCompleted:
		return notification.TypeAbsenceCompleted, "Absence terminée",
			fmt.Sprintf("Votre %s est terminée.", label)
	}
	return "", "", ""
}

func toEvent(change absence.StatusChange) events.AbsenceStatusChangedEvent {
	return events.AbsenceStatusChangedEvent{
		RequestID:     change.RequestID,
		UserID:        change.UserID,
		Kind:          string(change.Kind),
		Category:      string(change.Category),
		Status:        string(change.NewStatus),
		Units:         change.Units,
		ActorID:       change.ActorID,
		RefusalReason: change.RefusalReason,
		OccurredAt:    change.OccurredAt,
	}
}

// senderOf is nil for system transitions and self-service actions.
func senderOf(change absence.StatusChange) *string {
	if change.ActorID == "" || change.ActorID == change.UserID || change.ActorID == systemActorID {
		return nil
	}
	actor := change.ActorID
	return &actor
}

const systemActorID = "system"

func kindLabel(k absence.Kind) string {
	if k == absence.KindPermission {
		return "permission"
	}
	return "congé"
}

func displayName(u user.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
