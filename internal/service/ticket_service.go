package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

const createdEventMessage = "Ticket submitted"

// TicketService coordinates ticket creation and reads.
type TicketService struct {
	tickets    repository.TicketRepository
	validator  *Validator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Validator  *Validator
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// AdminTicketFilter describes dashboard listing filters.
type AdminTicketFilter struct {
	Status     *domain.TicketStatus
	IssueType  *domain.IssueType
	Department string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		validator:  deps.Validator,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrNow(deps.Clock),
	}
}

// CreateTicket validates a submission and stores it with its attachments and
// CREATED event. The returned ticket carries the freshly generated viewToken.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	trimCreateInput(&input)
	if err := s.validator.Check(input); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &domain.Ticket{
		IssueType:      domain.IssueType(input.IssueType),
		Department:     input.Department,
		StudentName:    input.StudentName,
		StudentID:      input.StudentID,
		StudentContact: input.StudentEmailOrPhone,
		Title:          input.Title,
		Description:    input.Description,
		Status:         domain.TicketStatusSubmitted,
		ViewToken:      auth.NewViewToken(),
		Attachments:    toAttachments(input.Attachments, now),
		Events: []domain.TicketEvent{{
			Type:    domain.EventTypeCreated,
			Message: createdEventMessage,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("public_ticket_id", ticket.PublicTicketID),
		zap.String("issue_type", string(ticket.IssueType)))

	publishEvent(ctx, s.dispatcher, s.logger, s.now, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload:  events.TicketCreatedPayload{Ticket: events.SnapshotOf(ticket)},
	})
	return ticket, nil
}

// AuthorizeStudent resolves a ticket for a capability holder. A missing token
// is UNAUTHORIZED; an unknown ticket and a wrong token are the same NOT_FOUND.
func (s *TicketService) AuthorizeStudent(ctx context.Context, publicTicketID, token string, include repository.Include) (*domain.Ticket, error) {
	if token == "" {
		return nil, apperrors.NewUnauthorized("Missing token")
	}
	ticket, err := s.tickets.GetByPublicID(ctx, publicTicketID, include)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// same work as a token mismatch
			auth.VerifyViewToken(token, token)
			return nil, ticketNotFound()
		}
		return nil, apperrors.MapError(err)
	}
	if !auth.VerifyViewToken(token, ticket.ViewToken) {
		return nil, ticketNotFound()
	}
	return ticket, nil
}

// GetForStudent returns the full projection for a capability holder.
func (s *TicketService) GetForStudent(ctx context.Context, publicTicketID, token string) (*domain.Ticket, error) {
	return s.AuthorizeStudent(ctx, publicTicketID, token, repository.Include{Attachments: true, Events: true})
}

// GetForAdmin returns the full projection by internal id.
func (s *TicketService) GetForAdmin(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID, repository.Include{Attachments: true, Events: true})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return ticket, nil
}

// ListForAdmin returns one dashboard page plus stats over all tickets.
func (s *TicketService) ListForAdmin(ctx context.Context, filter AdminTicketFilter) ([]domain.Ticket, repository.TicketStats, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Status:     filter.Status,
		IssueType:  filter.IssueType,
		Department: filter.Department,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, repository.TicketStats{}, apperrors.MapError(err)
	}
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return nil, repository.TicketStats{}, apperrors.MapError(err)
	}
	return tickets, stats, nil
}

// AppendAttachments adds file references to a ticket the caller holds the
// capability for. Existing attachments are never modified.
func (s *TicketService) AppendAttachments(ctx context.Context, publicTicketID, token string, input AppendAttachmentsInput) (*domain.Ticket, error) {
	ticket, err := s.AuthorizeStudent(ctx, publicTicketID, token, repository.Include{})
	if err != nil {
		return nil, err
	}
	if err := s.validator.Check(input); err != nil {
		return nil, err
	}

	updated, err := s.tickets.Mutate(ctx, ticket.ID, func(t *domain.Ticket) (repository.Mutation, error) {
		now := s.now()
		t.UpdatedAt = now
		return repository.Mutation{Attachments: toAttachments(input.Attachments, now)}, nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return updated, nil
}

func toAttachments(inputs []AttachmentInput, now time.Time) []domain.Attachment {
	if len(inputs) == 0 {
		return nil
	}
	attachments := make([]domain.Attachment, 0, len(inputs))
	for _, in := range inputs {
		attachments = append(attachments, domain.Attachment{
			FileName:  in.FileName,
			FileURL:   in.FileURL,
			FileMime:  in.FileMime,
			FileSize:  in.FileSize,
			CreatedAt: now,
		})
	}
	return attachments
}

func ticketNotFound() error {
	return apperrors.NewNotFound("Ticket", nil)
}

func mapRepoError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ticketNotFound()
	}
	return apperrors.MapError(err)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, now func() time.Time, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func adminActor(staff *domain.StaffMember) events.Actor {
	actor := events.Actor{Role: domain.RoleRef(domain.ActorRoleAdmin)}
	if staff != nil {
		id := staff.ID
		actor.StaffID = &id
	}
	return actor
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func clockOrNow(clock func() time.Time) func() time.Time {
	if clock == nil {
		return time.Now
	}
	return clock
}
