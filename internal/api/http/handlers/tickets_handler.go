package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/api/dto"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	"github.com/spec-kit/uni-helpdesk/internal/service"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// TicketsHandler serves the student-facing ticket endpoints. Access to an
// existing ticket is granted by its viewToken alone.
type TicketsHandler struct {
	tickets   *service.TicketService
	workflow  *service.WorkflowService
	validator *service.Validator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, workflow *service.WorkflowService, validator *service.Validator) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, workflow: workflow, validator: validator}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req service.CreateTicketInput
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.CreateTicketResponse{
		PublicTicketID: ticket.PublicTicketID,
		ViewToken:      ticket.ViewToken,
	})
}

// RequireViewToken answers 401 for a view request without a token, before
// the request reaches the rate limiter.
func (h *TicketsHandler) RequireViewToken(c *fiber.Ctx) error {
	if c.Query("token") == "" {
		return apperrors.NewUnauthorized("Missing token")
	}
	return c.Next()
}

// GetTicket GET /api/tickets/:publicTicketId?token=.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetForStudent(c.UserContext(), c.Params("publicTicketId"), c.Query("token"))
	if err != nil {
		return err
	}
	resp := ticketResponse(ticket)
	resp.ID = ""
	return c.JSON(dto.TicketEnvelope{Ticket: resp})
}

// AddNote POST /api/tickets/:publicTicketId/note?token=.
func (h *TicketsHandler) AddNote(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	token := firstNonEmpty(c.Query("token"), req.Token)
	ticket, err := h.tickets.AuthorizeStudent(c.UserContext(), c.Params("publicTicketId"), token, repository.Include{})
	if err != nil {
		return err
	}

	input := service.NoteInput{Message: req.Message}
	if err := h.validator.Check(input); err != nil {
		return err
	}
	if _, err := h.workflow.RecordStudentNote(c.UserContext(), ticket.ID, input.Message); err != nil {
		return err
	}
	return c.JSON(dto.AckResponse{OK: true})
}

// AddAttachments POST /api/tickets/:publicTicketId/attachments?token=.
func (h *TicketsHandler) AddAttachments(c *fiber.Ctx) error {
	var req dto.AttachmentsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	input := service.AppendAttachmentsInput{Attachments: make([]service.AttachmentInput, 0, len(req.Attachments))}
	for _, att := range req.Attachments {
		input.Attachments = append(input.Attachments, service.AttachmentInput{
			FileName: att.FileName,
			FileURL:  att.FileURL,
			FileMime: att.FileMime,
			FileSize: att.FileSize,
		})
	}

	token := firstNonEmpty(c.Query("token"), req.Token)
	updated, err := h.tickets.AppendAttachments(c.UserContext(), c.Params("publicTicketId"), token, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "attachments": attachmentResponses(updated.Attachments)})
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:                  ticket.ID,
		PublicTicketID:      ticket.PublicTicketID,
		IssueType:           ticket.IssueType,
		Department:          ticket.Department,
		StudentName:         ticket.StudentName,
		StudentID:           ticket.StudentID,
		StudentEmailOrPhone: ticket.StudentContact,
		Title:               ticket.Title,
		Description:         ticket.Description,
		Status:              ticket.Status,
		Attachments:         attachmentResponses(ticket.Attachments),
		Events:              eventResponses(ticket.Events),
		CreatedAt:           ticket.CreatedAt,
		UpdatedAt:           ticket.UpdatedAt,
	}
	if ticket.AssignedToID != nil {
		resp.AssignedTo = &dto.AssigneeResponse{ID: *ticket.AssignedToID}
		if ticket.AssignedToName != nil {
			resp.AssignedTo.Name = *ticket.AssignedToName
		}
	}
	return resp
}

func attachmentResponses(attachments []domain.Attachment) []dto.AttachmentResponse {
	if len(attachments) == 0 {
		return nil
	}
	resp := make([]dto.AttachmentResponse, 0, len(attachments))
	for _, att := range attachments {
		resp = append(resp, dto.AttachmentResponse{
			ID:        att.ID,
			FileName:  att.FileName,
			FileURL:   att.FileURL,
			FileMime:  att.FileMime,
			FileSize:  att.FileSize,
			CreatedAt: att.CreatedAt,
		})
	}
	return resp
}

// eventResponses renders the timeline newest first.
func eventResponses(events []domain.TicketEvent) []dto.EventResponse {
	if len(events) == 0 {
		return nil
	}
	ordered := append([]domain.TicketEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[j].Before(ordered[i]) })

	resp := make([]dto.EventResponse, 0, len(ordered))
	for _, event := range ordered {
		resp = append(resp, dto.EventResponse{
			ID:        event.ID,
			Type:      event.Type,
			Message:   event.Message,
			FromRole:  event.FromRole,
			Meta:      event.Meta,
			CreatedAt: event.CreatedAt,
		})
	}
	return resp
}

func invalidPayload() error {
	return apperrors.NewValidationError("Invalid request payload", nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
