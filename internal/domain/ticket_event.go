package domain

import "time"

// TicketEventType captures what happened in an audit entry.
type TicketEventType string

const (
	EventTypeCreated       TicketEventType = "CREATED"
	EventTypeStatusChanged TicketEventType = "STATUS_CHANGED"
	EventTypeAdminReply    TicketEventType = "ADMIN_REPLY"
	EventTypeStudentNote   TicketEventType = "STUDENT_NOTE"
)

// ActorRole records who authored an event. Student-authored and system
// events carry no role.
type ActorRole string

const ActorRoleAdmin ActorRole = "ADMIN"

const (
	metaFrom = "from"
	metaTo   = "to"
)

// TicketEvent is an immutable audit trail entry. Seq orders events that share
// a timestamp.
type TicketEvent struct {
	ID           string
	TicketID     string
	Seq          int64
	Type         TicketEventType
	Message      string
	FromRole     *ActorRole
	ActorStaffID *string
	Meta         map[string]any
	CreatedAt    time.Time
}

// StatusChangeMeta builds the metadata stored with a STATUS_CHANGED event.
func StatusChangeMeta(from, to TicketStatus) map[string]any {
	return map[string]any{metaFrom: string(from), metaTo: string(to)}
}

// StatusTransition extracts the from/to pair of a STATUS_CHANGED event.
func (e TicketEvent) StatusTransition() (from, to TicketStatus, ok bool) {
	if e.Type != EventTypeStatusChanged || e.Meta == nil {
		return "", "", false
	}
	toVal, okTo := e.Meta[metaTo].(string)
	if !okTo {
		return "", "", false
	}
	fromVal, _ := e.Meta[metaFrom].(string)
	return TicketStatus(fromVal), TicketStatus(toVal), true
}

// Before reports whether e was recorded before other.
func (e TicketEvent) Before(other TicketEvent) bool {
	if e.CreatedAt.Equal(other.CreatedAt) {
		return e.Seq < other.Seq
	}
	return e.CreatedAt.Before(other.CreatedAt)
}

// DeriveStatus replays an event log and returns the status implied by its
// latest STATUS_CHANGED entry, or SUBMITTED when there is none. Events may be
// given in any order.
func DeriveStatus(events []TicketEvent) TicketStatus {
	status := TicketStatusSubmitted
	var latest *TicketEvent
	for i := range events {
		if _, _, ok := events[i].StatusTransition(); !ok {
			continue
		}
		if latest == nil || latest.Before(events[i]) {
			latest = &events[i]
		}
	}
	if latest != nil {
		_, status, _ = latest.StatusTransition()
	}
	return status
}

// RoleRef returns a pointer suitable for TicketEvent.FromRole.
func RoleRef(role ActorRole) *ActorRole {
	return &role
}
