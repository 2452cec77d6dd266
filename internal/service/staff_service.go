package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

const minAdminPasswordLength = 8

// StaffService provisions helpdesk operator accounts.
type StaffService struct {
	staff      repository.StaffRepository
	logger     *zap.Logger
	bcryptCost int
}

// NewStaffService constructs the service.
func NewStaffService(staff repository.StaffRepository, bcryptCost int, logger *zap.Logger) *StaffService {
	return &StaffService{
		staff:      staff,
		logger:     loggerOrNop(logger),
		bcryptCost: bcryptCost,
	}
}

// EnsureAdmin creates or refreshes an active ADMIN account. Running it again
// with the same email resets the password and reactivates the account.
func (s *StaffService) EnsureAdmin(ctx context.Context, name, email, password string) (*domain.StaffMember, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperrors.NewValidationError("Admin email is required", nil)
	}
	if len(password) < minAdminPasswordLength {
		return nil, apperrors.NewValidationError("Admin password must be at least 8 characters", nil)
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.StaffRoleAdmin,
		Active:       true,
	}
	if err := s.staff.Upsert(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("admin account provisioned", zap.String("staff_id", staff.ID), zap.String("email", staff.Email))
	return staff, nil
}
