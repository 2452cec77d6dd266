package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/mail"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
)

const testEmailDomain = "britishuniversity.krd"

// stepClock advances one second per reading so event order is unambiguous.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// fakeSender stores messages instead of sending them.
type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}

type fixture struct {
	clock      *stepClock
	tickets    *repository.MemoryTicketRepository
	dispatcher events.Dispatcher
	recorded   *recorder
	ticketSvc  *TicketService
	workflow   *WorkflowService
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	clock := newStepClock()
	tickets := repository.NewMemoryTicketRepository(clock.Now)
	dispatcher := events.NewInMemoryDispatcher()
	rec := &recorder{}
	for _, et := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketReplyAdded,
		events.EventTicketNoteAdded,
	} {
		dispatcher.Subscribe(et, rec.handle)
	}

	return &fixture{
		clock:      clock,
		tickets:    tickets,
		dispatcher: dispatcher,
		recorded:   rec,
		ticketSvc: NewTicketService(TicketDependencies{
			TicketRepo: tickets,
			Validator:  NewValidator(testEmailDomain, []string{"/uploads/"}),
			Dispatcher: dispatcher,
			Clock:      clock.Now,
		}),
		workflow: NewWorkflowService(WorkflowDependencies{
			TicketRepo:        tickets,
			Dispatcher:        dispatcher,
			Clock:             clock.Now,
			StrictTransitions: strict,
		}),
	}
}

func validCreateInput() CreateTicketInput {
	return CreateTicketInput{
		IssueType:           string(domain.IssueTypeLetters),
		Department:          "Registry",
		Title:               "Enrollment letter",
		Description:         "I need an enrollment letter for my visa application.",
		StudentName:         "Sara Ahmed",
		StudentID:           "BU-1042",
		StudentEmailOrPhone: "sara@britishuniversity.krd",
		Attachments: []AttachmentInput{{
			FileName: "passport.pdf",
			FileURL:  "/uploads/1767225600000-abc-passport.pdf",
			FileMime: "application/pdf",
			FileSize: 2048,
		}},
	}
}

func (f *fixture) createTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.ticketSvc.CreateTicket(context.Background(), validCreateInput())
	require.NoError(t, err)
	return ticket
}

func testAdmin() *domain.StaffMember {
	return &domain.StaffMember{
		ID:     "0d9f4a57-1a8e-4c4f-9d0b-6f0c6c1d2e3f",
		Name:   "Registry Admin",
		Email:  "admin@britishuniversity.krd",
		Role:   domain.StaffRoleAdmin,
		Active: true,
	}
}
