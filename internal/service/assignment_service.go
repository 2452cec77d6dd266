package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	tickets    repository.TicketRepository
	staff      repository.StaffRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	StaffRepo  repository.StaffRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		staff:      deps.StaffRepo,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrNow(deps.Clock),
	}
}

// AssignTicket points the ticket at assigneeStaffID, or clears the assignment
// when it is empty. Assignment is not part of the audit trail.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.StaffMember, ticketID, assigneeStaffID string) (*domain.Ticket, error) {
	if err := requireAssignPriv(actor); err != nil {
		return nil, err
	}

	var assignee *domain.StaffMember
	if id := strings.TrimSpace(assigneeStaffID); id != "" {
		staff, err := s.staff.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NewNotFound("Staff", map[string]any{"staffId": id})
			}
			return nil, apperrors.MapError(err)
		}
		if !staff.Active {
			return nil, apperrors.NewConflict("Assignee is inactive", map[string]any{"staffId": id})
		}
		assignee = staff
	}

	updated, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) (repository.Mutation, error) {
		t.AssignedToID, t.AssignedToName = nil, nil
		if assignee != nil {
			id, name := assignee.ID, assignee.Name
			t.AssignedToID, t.AssignedToName = &id, &name
		}
		t.UpdatedAt = s.now()
		return repository.Mutation{}, nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("ticket assignment changed",
		zap.String("ticket_id", updated.ID),
		zap.String("actor_staff_id", actor.ID),
		zap.Stringp("assignee_staff_id", updated.AssignedToID))

	publishEvent(ctx, s.dispatcher, s.logger, s.now, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: updated.ID,
		Actor:    adminActor(actor),
		Payload: events.TicketAssignedPayload{
			Ticket:          events.SnapshotOf(updated),
			AssigneeStaffID: updated.AssignedToID,
		},
	})
	return updated, nil
}

func requireAssignPriv(staff *domain.StaffMember) error {
	if staff == nil {
		return apperrors.NewUnauthorized("unauthorized")
	}
	if !staff.IsAdmin() {
		return apperrors.NewForbidden("Insufficient role for assignment")
	}
	return nil
}
