package domain

import (
	"fmt"
	"regexp"
	"time"
)

// IssueType classifies what the student needs help with.
type IssueType string

const (
	IssueTypeAttendance IssueType = "ATTENDANCE"
	IssueTypeLetters    IssueType = "LETTERS"
	IssueTypeID         IssueType = "ID"
	IssueTypeFinance    IssueType = "FINANCE"
	IssueTypeTimetable  IssueType = "TIMETABLE"
	IssueTypeComplaints IssueType = "COMPLAINTS"
)

// IssueTypes lists every accepted issue type in display order.
var IssueTypes = []IssueType{
	IssueTypeAttendance,
	IssueTypeLetters,
	IssueTypeID,
	IssueTypeFinance,
	IssueTypeTimetable,
	IssueTypeComplaints,
}

var issueLabels = map[IssueType]string{
	IssueTypeAttendance: "Attendance",
	IssueTypeLetters:    "Letters",
	IssueTypeID:         "ID",
	IssueTypeFinance:    "Finance",
	IssueTypeTimetable:  "Timetable",
	IssueTypeComplaints: "Complaints",
}

// Valid reports whether t is one of IssueTypes.
func (t IssueType) Valid() bool {
	_, ok := issueLabels[t]
	return ok
}

// Label returns the human readable name.
func (t IssueType) Label() string {
	if label, ok := issueLabels[t]; ok {
		return label
	}
	return string(t)
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusSubmitted      TicketStatus = "SUBMITTED"
	TicketStatusInReview       TicketStatus = "IN_REVIEW"
	TicketStatusWaitingStudent TicketStatus = "WAITING_STUDENT"
	TicketStatusResolved       TicketStatus = "RESOLVED"
	TicketStatusRejected       TicketStatus = "REJECTED"
)

// TicketStatuses lists every status in workflow order.
var TicketStatuses = []TicketStatus{
	TicketStatusSubmitted,
	TicketStatusInReview,
	TicketStatusWaitingStudent,
	TicketStatusResolved,
	TicketStatusRejected,
}

var statusLabels = map[TicketStatus]string{
	TicketStatusSubmitted:      "Submitted",
	TicketStatusInReview:       "In Review",
	TicketStatusWaitingStudent: "Waiting Student",
	TicketStatusResolved:       "Resolved",
	TicketStatusRejected:       "Rejected",
}

// Valid reports whether s is one of TicketStatuses.
func (s TicketStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable name.
func (s TicketStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Open reports whether the ticket still needs staff attention.
func (s TicketStatus) Open() bool {
	return s != TicketStatusResolved && s != TicketStatusRejected
}

// Ticket is the aggregate for student support requests.
//
// ViewToken is a bearer secret. It must not reach logs, admin projections or
// any URL other than the one mailed to the student.
type Ticket struct {
	ID             string
	PublicTicketID string
	IssueType      IssueType
	Department     string
	StudentName    string
	StudentID      string
	StudentContact string
	Title          string
	Description    string
	Status         TicketStatus
	ViewToken      string
	AssignedToID   *string
	AssignedToName *string
	Attachments    []Attachment
	Events         []TicketEvent
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Attachment references an uploaded file. Rows are never modified.
type Attachment struct {
	ID        string
	TicketID  string
	FileName  string
	FileURL   string
	FileMime  string
	FileSize  int64
	CreatedAt time.Time
}

const publicTicketPrefix = "UHD"

var publicTicketPattern = regexp.MustCompile(`^UHD-\d{4}-\d{6,}$`)

// FormatPublicTicketID renders the human-facing identifier UHD-<year>-<seq>.
func FormatPublicTicketID(year int, sequence int64) string {
	return fmt.Sprintf("%s-%04d-%06d", publicTicketPrefix, year, sequence)
}

// ValidPublicTicketID reports whether id has the UHD-YYYY-NNNNNN shape.
func ValidPublicTicketID(id string) bool {
	return publicTicketPattern.MatchString(id)
}
