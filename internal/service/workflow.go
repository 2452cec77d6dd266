package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// strictTransitions is enforced only when the workflow runs in strict mode.
// Self transitions are always allowed.
var strictTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusSubmitted:      {domain.TicketStatusInReview, domain.TicketStatusWaitingStudent, domain.TicketStatusResolved, domain.TicketStatusRejected},
	domain.TicketStatusInReview:       {domain.TicketStatusWaitingStudent, domain.TicketStatusResolved, domain.TicketStatusRejected},
	domain.TicketStatusWaitingStudent: {domain.TicketStatusInReview, domain.TicketStatusResolved, domain.TicketStatusRejected},
	domain.TicketStatusResolved:       {domain.TicketStatusInReview},
	domain.TicketStatusRejected:       {domain.TicketStatusInReview},
}

// WorkflowService moves tickets through their statuses. Every operation
// writes its audit event in the same transaction as the ticket update and
// publishes a domain event only after commit.
type WorkflowService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	strict     bool
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	TicketRepo        repository.TicketRepository
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	Clock             func() time.Time
	StrictTransitions bool
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrNow(deps.Clock),
		strict:     deps.StrictTransitions,
	}
}

// ChangeStatus sets a new status and records a STATUS_CHANGED event. Setting
// the current status again is recorded as well.
func (s *WorkflowService) ChangeStatus(ctx context.Context, ticketID string, status domain.TicketStatus, actor *domain.StaffMember) (*domain.Ticket, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("Valid status is required", map[string]any{"status": string(status)})
	}

	var from domain.TicketStatus
	updated, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.Mutation, error) {
		from = t.Status
		event, err := s.transition(t, status, actor)
		if err != nil {
			return repository.Mutation{}, err
		}
		return repository.Mutation{Events: []domain.TicketEvent{event}}, nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("ticket status changed",
		zap.String("ticket_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(status)))

	publishEvent(ctx, s.dispatcher, s.logger, s.now, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    adminActor(actor),
		Payload: events.TicketStatusChangedPayload{
			Ticket:    events.SnapshotOf(updated),
			OldStatus: from,
			NewStatus: status,
		},
	})
	return updated, nil
}

// RecordReply appends an ADMIN_REPLY event. With escalateToWaiting the ticket
// also moves to WAITING_STUDENT in the same transaction; the STATUS_CHANGED
// event is written only when the status actually changes.
func (s *WorkflowService) RecordReply(ctx context.Context, ticketID, message string, escalateToWaiting bool, actor *domain.StaffMember) (*domain.Ticket, error) {
	var newStatus *domain.TicketStatus
	updated, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.Mutation, error) {
		t.UpdatedAt = s.now()
		reply := domain.TicketEvent{
			Type:         domain.EventTypeAdminReply,
			Message:      message,
			FromRole:     domain.RoleRef(domain.ActorRoleAdmin),
			ActorStaffID: staffID(actor),
		}
		mutation := repository.Mutation{Events: []domain.TicketEvent{reply}}

		if escalateToWaiting && t.Status != domain.TicketStatusWaitingStudent {
			event, err := s.transition(t, domain.TicketStatusWaitingStudent, actor)
			if err != nil {
				return repository.Mutation{}, err
			}
			mutation.Events = append(mutation.Events, event)
			status := t.Status
			newStatus = &status
		}
		return mutation, nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("admin reply recorded",
		zap.String("ticket_id", updated.ID),
		zap.Bool("status_changed", newStatus != nil))

	publishEvent(ctx, s.dispatcher, s.logger, s.now, events.Event{
		Type:     events.EventTicketReplyAdded,
		TicketID: updated.ID,
		Actor:    adminActor(actor),
		Payload: events.TicketReplyAddedPayload{
			Ticket:    events.SnapshotOf(updated),
			Message:   message,
			NewStatus: newStatus,
		},
	})
	return updated, nil
}

// RecordStudentNote appends a STUDENT_NOTE event and bumps updatedAt so the
// ticket surfaces as recently active. The status is unchanged.
func (s *WorkflowService) RecordStudentNote(ctx context.Context, ticketID, message string) (*domain.Ticket, error) {
	updated, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.Mutation, error) {
		t.UpdatedAt = s.now()
		return repository.Mutation{Events: []domain.TicketEvent{{
			Type:    domain.EventTypeStudentNote,
			Message: message,
		}}}, nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, s.now, events.Event{
		Type:     events.EventTicketNoteAdded,
		TicketID: updated.ID,
		Payload: events.TicketNoteAddedPayload{
			Ticket:  events.SnapshotOf(updated),
			Message: message,
		},
	})
	return updated, nil
}

// transition applies the status change to a locked ticket and builds its
// audit event.
func (s *WorkflowService) transition(t *domain.Ticket, to domain.TicketStatus, actor *domain.StaffMember) (domain.TicketEvent, error) {
	from := t.Status
	if s.strict && !transitionAllowed(from, to) {
		return domain.TicketEvent{}, apperrors.NewConflict(
			fmt.Sprintf("Cannot move ticket from %s to %s", from, to),
			map[string]any{"from": string(from), "to": string(to)})
	}
	t.Status = to
	t.UpdatedAt = s.now()
	return domain.TicketEvent{
		Type:         domain.EventTypeStatusChanged,
		Message:      fmt.Sprintf("Status changed to %s", to),
		FromRole:     domain.RoleRef(domain.ActorRoleAdmin),
		ActorStaffID: staffID(actor),
		Meta:         domain.StatusChangeMeta(from, to),
	}, nil
}

func transitionAllowed(from, to domain.TicketStatus) bool {
	if from == to {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func staffID(staff *domain.StaffMember) *string {
	if staff == nil {
		return nil
	}
	id := staff.ID
	return &id
}
