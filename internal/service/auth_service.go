package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// Session is the result of a successful login.
type Session struct {
	Staff     *domain.StaffMember
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates the admin login flow.
type AuthService struct {
	staff      repository.StaffRepository
	tokens     *auth.TokenManager
	validator  *Validator
	logger     *zap.Logger
	bcryptCost int

	dummyOnce sync.Once
	dummyHash string
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	StaffRepo    repository.StaffRepository
	TokenManager *auth.TokenManager
	Validator    *Validator
	Logger       *zap.Logger
	BcryptCost   int
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{
		staff:      deps.StaffRepo,
		tokens:     deps.TokenManager,
		validator:  deps.Validator,
		logger:     loggerOrNop(deps.Logger),
		bcryptCost: deps.BcryptCost,
	}
}

// LoginStaff authenticates an active admin. Every failure returns the same
// UNAUTHORIZED error so callers cannot probe which accounts exist.
func (s *AuthService) LoginStaff(ctx context.Context, input LoginInput) (*Session, error) {
	if err := s.validator.Check(input); err != nil {
		return nil, err
	}

	staff, err := s.staff.GetByEmail(ctx, input.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.MapError(err)
		}
		// burn a comparison so unknown emails cost the same as wrong passwords
		_ = auth.ComparePassword(s.placeholderHash(), input.Password)
		return nil, invalidCredentials()
	}
	if err := auth.ComparePassword(staff.PasswordHash, input.Password); err != nil {
		return nil, invalidCredentials()
	}
	if !staff.IsAdmin() {
		s.logger.Info("login refused for non-admin account", zap.String("staff_id", staff.ID))
		return nil, invalidCredentials()
	}

	token, expiresAt, err := s.tokens.GenerateToken(staff.ID, staff.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("staff logged in", zap.String("staff_id", staff.ID))
	return &Session{Staff: staff, Token: token, ExpiresAt: expiresAt}, nil
}

// SessionTTL reports how long issued sessions stay valid.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := auth.HashPassword("placeholder-password", s.bcryptCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func invalidCredentials() error {
	return apperrors.NewUnauthorized("Invalid email or password")
}
