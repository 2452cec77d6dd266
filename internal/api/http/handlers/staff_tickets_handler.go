package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/api/dto"
	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/service"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

const maxPageSize = 100

// StaffTicketsHandler serves the admin dashboard and workflow actions.
type StaffTicketsHandler struct {
	tickets     *service.TicketService
	workflow    *service.WorkflowService
	assignments *service.AssignmentService
	validator   *service.Validator
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(tickets *service.TicketService, workflow *service.WorkflowService, assignments *service.AssignmentService, validator *service.Validator) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: tickets, workflow: workflow, assignments: assignments, validator: validator}
}

// ListTickets GET /api/admin/tickets.
func (h *StaffTicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, page := parseAdminTicketFilter(c)
	tickets, stats, err := h.tickets.ListForAdmin(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		resp := ticketResponse(&tickets[i])
		resp.Description = ""
		items = append(items, resp)
	}
	return c.JSON(dto.TicketListResponse{
		Tickets:  items,
		Stats:    dto.TicketStats{Total: stats.Total, Open: stats.Open, Waiting: stats.Waiting},
		Page:     page,
		PageSize: filter.Limit,
	})
}

// GetTicket GET /api/admin/tickets/:id.
func (h *StaffTicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetForAdmin(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketEnvelope{Ticket: ticketResponse(ticket)})
}

// ChangeStatus POST /api/admin/tickets/:id/status. Form posts from the
// dashboard are redirected back to the ticket page.
func (h *StaffTicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var input service.StatusInput
	if isFormPost(c) {
		input.Status = c.FormValue("status")
	} else if err := c.BodyParser(&input); err != nil {
		return invalidPayload()
	}
	if err := h.validator.Check(input); err != nil {
		return err
	}

	ticket, err := h.workflow.ChangeStatus(c.UserContext(), c.Params("id"), domain.TicketStatus(input.Status), staff)
	if err != nil {
		return err
	}
	return h.acknowledge(c, ticket)
}

// Reply POST /api/admin/tickets/:id/reply.
func (h *StaffTicketsHandler) Reply(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var input service.ReplyInput
	if isFormPost(c) {
		input.Message = c.FormValue("message")
		input.SetWaiting = c.FormValue("setWaiting") != ""
	} else if err := c.BodyParser(&input); err != nil {
		return invalidPayload()
	}
	input.Message = strings.TrimSpace(input.Message)
	if err := h.validator.Check(input); err != nil {
		return err
	}

	ticket, err := h.workflow.RecordReply(c.UserContext(), c.Params("id"), input.Message, input.Escalates(), staff)
	if err != nil {
		return err
	}
	return h.acknowledge(c, ticket)
}

// Assign POST /api/admin/tickets/:id/assign. An empty staffId unassigns.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var input service.AssignInput
	if isFormPost(c) {
		input.StaffID = c.FormValue("staffId")
	} else if err := c.BodyParser(&input); err != nil {
		return invalidPayload()
	}
	if err := h.validator.Check(input); err != nil {
		return err
	}

	ticket, err := h.assignments.AssignTicket(c.UserContext(), staff, c.Params("id"), input.StaffID)
	if err != nil {
		return err
	}
	if isFormPost(c) {
		return c.Redirect("/admin/tickets/"+ticket.ID, fiber.StatusSeeOther)
	}
	return c.JSON(fiber.Map{"ok": true, "assignedTo": ticketResponse(ticket).AssignedTo})
}

func (h *StaffTicketsHandler) acknowledge(c *fiber.Ctx, ticket *domain.Ticket) error {
	if isFormPost(c) {
		return c.Redirect("/admin/tickets/"+ticket.ID, fiber.StatusSeeOther)
	}
	return c.JSON(dto.StatusResponse{OK: true, Status: ticket.Status})
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, apperrors.NewUnauthorized("unauthorized")
	}
	return principal.Staff, nil
}

func isFormPost(c *fiber.Ctx) bool {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	return strings.HasPrefix(contentType, fiber.MIMEApplicationForm) ||
		strings.HasPrefix(contentType, fiber.MIMEMultipartForm)
}

func parseAdminTicketFilter(c *fiber.Ctx) (service.AdminTicketFilter, int) {
	filter := service.AdminTicketFilter{Department: strings.TrimSpace(c.Query("department"))}
	if status := domain.TicketStatus(strings.ToUpper(c.Query("status"))); status.Valid() {
		filter.Status = &status
	}
	if issueType := domain.IssueType(strings.ToUpper(c.Query("type"))); issueType.Valid() {
		filter.IssueType = &issueType
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, page
}
