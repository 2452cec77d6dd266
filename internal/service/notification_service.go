package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/mail"
	"github.com/spec-kit/uni-helpdesk/internal/observability"
)

const createdMailMessage = "Your Uni HelpDesk ticket %s has been created. We will notify you when there is an update."

// NotificationService decides whether and what to mail students when their
// ticket changes. It runs after the change is committed; a failed delivery
// never affects ticket state.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     mail.Sender
	logger     *zap.Logger
	metrics    *observability.Metrics
	baseURL    string
}

// NewNotificationService creates the service. baseURL prefixes the student's
// view link.
func NewNotificationService(dispatcher events.Dispatcher, sender mail.Sender, logger *zap.Logger, metrics *observability.Metrics, baseURL string) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		logger:     loggerOrNop(logger),
		metrics:    metrics,
		baseURL:    baseURL,
	}
}

// RegisterHandlers subscribes to events. Student notes notify nobody.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketReplyAdded, n.handleTicketReplyAdded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	message := fmt.Sprintf(createdMailMessage, payload.Ticket.PublicTicketID)
	return n.deliver(ctx, mail.KindTicketCreated, payload.Ticket, message, string(payload.Ticket.Status))
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	message := fmt.Sprintf("Your ticket status is now %s.", payload.NewStatus)
	return n.deliver(ctx, mail.KindStatusChanged, payload.Ticket, message, string(payload.NewStatus))
}

func (n *NotificationService) handleTicketReplyAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketReplyAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	status := string(payload.Ticket.Status)
	if payload.NewStatus != nil {
		status = string(*payload.NewStatus)
	}
	return n.deliver(ctx, mail.KindAdminReply, payload.Ticket, payload.Message, status)
}

// deliver skips silently when the student left no usable email address.
func (n *NotificationService) deliver(ctx context.Context, kind mail.Kind, ticket events.TicketSnapshot, message, status string) error {
	contact := strings.TrimSpace(ticket.StudentContact)
	if !strings.Contains(contact, "@") {
		n.logger.Debug("no student email; notification skipped",
			zap.String("public_ticket_id", ticket.PublicTicketID),
			zap.String("kind", string(kind)))
		n.metrics.RecordNotification(string(kind), "skipped")
		return nil
	}

	msg, err := mail.Render(kind, contact, mail.TicketData{
		PublicTicketID: ticket.PublicTicketID,
		Title:          ticket.Title,
		StudentName:    ticket.StudentName,
		Status:         status,
		Message:        message,
		ViewURL:        mail.ViewURL(n.baseURL, ticket.PublicTicketID, ticket.ViewToken),
	})
	if err != nil {
		n.metrics.RecordNotification(string(kind), "failed")
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.metrics.RecordNotification(string(kind), "failed")
		return fmt.Errorf("deliver %s for %s: %w", kind, ticket.PublicTicketID, err)
	}
	n.metrics.RecordNotification(string(kind), "sent")
	return nil
}
