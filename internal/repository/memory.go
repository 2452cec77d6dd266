package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. A single mutex
// serialises every write, which gives the same per-ticket atomicity as the
// row lock taken by the PostgreSQL implementation.
type MemoryTicketRepository struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	byPublic map[string]string
	sequence int64
	eventSeq int64
	now      func() time.Time
}

// NewMemoryTicketRepository builds an empty store. now stamps event rows; nil
// means time.Now.
func NewMemoryTicketRepository(now func() time.Time) *MemoryTicketRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryTicketRepository{
		tickets:  make(map[string]*domain.Ticket),
		byPublic: make(map[string]string),
		now:      now,
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	ticket.ID = uuid.NewString()
	ticket.PublicTicketID = domain.FormatPublicTicketID(ticket.CreatedAt.Year(), r.sequence)
	r.stampRows(ticket.ID, ticket.Attachments, ticket.Events)

	stored := cloneTicket(ticket, Include{Attachments: true, Events: true})
	r.tickets[ticket.ID] = stored
	r.byPublic[ticket.PublicTicketID] = ticket.ID
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string, include Include) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTicket(stored, include), nil
}

func (r *MemoryTicketRepository) GetByPublicID(ctx context.Context, publicID string, include Include) (*domain.Ticket, error) {
	r.mu.Lock()
	id, ok := r.byPublic[publicID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id, include)
}

func (r *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	department := strings.ToLower(strings.TrimSpace(filter.Department))
	var matched []domain.Ticket
	for _, stored := range r.tickets {
		if filter.Status != nil && stored.Status != *filter.Status {
			continue
		}
		if filter.IssueType != nil && stored.IssueType != *filter.IssueType {
			continue
		}
		if department != "" && !strings.Contains(strings.ToLower(stored.Department), department) {
			continue
		}
		matched = append(matched, *cloneTicket(stored, Include{}))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryTicketRepository) Stats(_ context.Context) (TicketStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats TicketStats
	for _, stored := range r.tickets {
		stats.Total++
		if stored.Status.Open() {
			stats.Open++
		}
		if stored.Status == domain.TicketStatusWaitingStudent {
			stats.Waiting++
		}
	}
	return stats, nil
}

func (r *MemoryTicketRepository) Mutate(_ context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}

	working := cloneTicket(stored, Include{})
	mutation, err := fn(working)
	if err != nil {
		return nil, err
	}
	r.stampRows(stored.ID, mutation.Attachments, mutation.Events)

	stored.Status = working.Status
	stored.AssignedToID = working.AssignedToID
	stored.AssignedToName = working.AssignedToName
	stored.UpdatedAt = working.UpdatedAt
	stored.Attachments = append(stored.Attachments, mutation.Attachments...)
	stored.Events = append(stored.Events, mutation.Events...)

	working.Attachments = append([]domain.Attachment(nil), mutation.Attachments...)
	working.Events = append([]domain.TicketEvent(nil), mutation.Events...)
	return working, nil
}

// stampRows fills the storage-assigned columns. Callers hold r.mu.
func (r *MemoryTicketRepository) stampRows(ticketID string, attachments []domain.Attachment, events []domain.TicketEvent) {
	for i := range attachments {
		attachments[i].ID = uuid.NewString()
		attachments[i].TicketID = ticketID
		if attachments[i].CreatedAt.IsZero() {
			attachments[i].CreatedAt = r.now()
		}
	}
	for i := range events {
		r.eventSeq++
		events[i].ID = uuid.NewString()
		events[i].TicketID = ticketID
		events[i].Seq = r.eventSeq
		events[i].CreatedAt = r.now()
	}
}

func cloneTicket(src *domain.Ticket, include Include) *domain.Ticket {
	dst := *src
	dst.Attachments = nil
	dst.Events = nil
	if include.Attachments && len(src.Attachments) > 0 {
		dst.Attachments = append([]domain.Attachment(nil), src.Attachments...)
	}
	if include.Events && len(src.Events) > 0 {
		dst.Events = append([]domain.TicketEvent(nil), src.Events...)
	}
	return &dst
}

// MemoryStaffRepository keeps staff accounts in process memory.
type MemoryStaffRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.StaffMember
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStaffRepository builds an empty store.
func NewMemoryStaffRepository(now func() time.Time) *MemoryStaffRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryStaffRepository{
		byID:    make(map[string]*domain.StaffMember),
		byEmail: make(map[string]string),
		now:     now,
	}
}

func (r *MemoryStaffRepository) Upsert(_ context.Context, staff *domain.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staff.Email = normalizeEmail(staff.Email)
	now := r.now()
	if id, ok := r.byEmail[staff.Email]; ok {
		existing := r.byID[id]
		staff.ID = existing.ID
		staff.CreatedAt = existing.CreatedAt
	} else {
		staff.ID = uuid.NewString()
		staff.CreatedAt = now
	}
	staff.UpdatedAt = now

	stored := *staff
	r.byID[staff.ID] = &stored
	r.byEmail[staff.Email] = staff.ID
	return nil
}

func (r *MemoryStaffRepository) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	staff := *stored
	return &staff, nil
}

func (r *MemoryStaffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	r.mu.RLock()
	id, ok := r.byEmail[normalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

var (
	_ TicketRepository = (*MemoryTicketRepository)(nil)
	_ StaffRepository  = (*MemoryStaffRepository)(nil)
)
