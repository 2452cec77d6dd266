package dto

import (
	"time"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

// CreateTicketResponse is returned once, right after submission. It is the
// only response that carries the viewToken.
type CreateTicketResponse struct {
	PublicTicketID string `json:"publicTicketId"`
	ViewToken      string `json:"viewToken"`
}

// TicketResponse is the ticket projection shared by the student and admin
// views. It never includes the viewToken.
type TicketResponse struct {
	ID                  string               `json:"id,omitempty"`
	PublicTicketID      string               `json:"publicTicketId"`
	IssueType           domain.IssueType     `json:"issueType"`
	Department          string               `json:"department"`
	StudentName         string               `json:"studentName"`
	StudentID           string               `json:"studentId"`
	StudentEmailOrPhone string               `json:"studentEmailOrPhone"`
	Title               string               `json:"title"`
	Description         string               `json:"description,omitempty"`
	Status              domain.TicketStatus  `json:"status"`
	AssignedTo          *AssigneeResponse    `json:"assignedTo"`
	Attachments         []AttachmentResponse `json:"attachments,omitempty"`
	Events              []EventResponse      `json:"events,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// AssigneeResponse names the staff member a ticket is assigned to.
type AssigneeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// AttachmentResponse describes one attached file.
type AttachmentResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	FileMime  string    `json:"fileMime"`
	FileSize  int64     `json:"fileSize"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventResponse is one timeline entry.
type EventResponse struct {
	ID        string                 `json:"id"`
	Type      domain.TicketEventType `json:"type"`
	Message   string                 `json:"message"`
	FromRole  *domain.ActorRole      `json:"fromRole"`
	Meta      map[string]any         `json:"meta,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// TicketEnvelope wraps a single ticket.
type TicketEnvelope struct {
	Ticket TicketResponse `json:"ticket"`
}

// TicketListResponse is one dashboard page.
type TicketListResponse struct {
	Tickets  []TicketResponse `json:"tickets"`
	Stats    TicketStats      `json:"stats"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// TicketStats summarises every ticket regardless of filters.
type TicketStats struct {
	Total   int `json:"total"`
	Open    int `json:"open"`
	Waiting int `json:"waiting"`
}

// NoteRequest is a student follow-up. The token may also be sent as a query
// parameter.
type NoteRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// AttachmentsRequest appends uploaded files to a ticket.
type AttachmentsRequest struct {
	Token       string              `json:"token"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest references a file returned by the upload endpoint.
type AttachmentRequest struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileMime string `json:"fileMime"`
	FileSize int64  `json:"fileSize"`
}

// StatusResponse acknowledges an admin workflow action.
type StatusResponse struct {
	OK     bool                `json:"ok"`
	Status domain.TicketStatus `json:"status"`
}

// AckResponse acknowledges a write with no other result.
type AckResponse struct {
	OK bool `json:"ok"`
}

// UploadResponse lists the stored files.
type UploadResponse struct {
	Files []AttachmentRequest `json:"files"`
}
