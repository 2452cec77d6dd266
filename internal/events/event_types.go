package events

import (
	"time"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketReplyAdded    EventType = "ticket_reply_added"
	EventTicketNoteAdded     EventType = "ticket_note_added"
	EventTicketAssigned      EventType = "ticket_assigned"
)

// Actor encapsulates actor metadata for an event. A nil Role means the
// student capability holder or the system.
type Actor struct {
	Role    *domain.ActorRole `json:"role,omitempty"`
	StaffID *string           `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketSnapshot carries what subscribers need to contact the student.
// ViewToken is excluded from serialisation.
type TicketSnapshot struct {
	PublicTicketID string              `json:"public_ticket_id"`
	Title          string              `json:"title"`
	Status         domain.TicketStatus `json:"status"`
	StudentName    string              `json:"student_name"`
	StudentContact string              `json:"-"`
	ViewToken      string              `json:"-"`
}

// SnapshotOf copies the notification-relevant fields of a ticket.
func SnapshotOf(ticket *domain.Ticket) TicketSnapshot {
	return TicketSnapshot{
		PublicTicketID: ticket.PublicTicketID,
		Title:          ticket.Title,
		Status:         ticket.Status,
		StudentName:    ticket.StudentName,
		StudentContact: ticket.StudentContact,
		ViewToken:      ticket.ViewToken,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket TicketSnapshot `json:"ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    TicketSnapshot      `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketReplyAddedPayload payload. NewStatus is set when the reply moved the
// ticket to another status.
type TicketReplyAddedPayload struct {
	Ticket    TicketSnapshot       `json:"ticket"`
	Message   string               `json:"message"`
	NewStatus *domain.TicketStatus `json:"new_status,omitempty"`
}

// TicketNoteAddedPayload payload.
type TicketNoteAddedPayload struct {
	Ticket  TicketSnapshot `json:"ticket"`
	Message string         `json:"message"`
}

// TicketAssignedPayload payload. A nil AssigneeStaffID means the ticket was
// unassigned.
type TicketAssignedPayload struct {
	Ticket          TicketSnapshot `json:"ticket"`
	AssigneeStaffID *string        `json:"assignee_staff_id,omitempty"`
}
