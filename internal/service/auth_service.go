package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maplebug/helpdesk/internal/auth"
	"github.com/maplebug/helpdesk/internal/config"
	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/geoip"
	"github.com/maplebug/helpdesk/internal/repository"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

// AuthService coordinates registration and login flows. Passwords are
// bcrypt-hashed and the signing secret comes from configuration.
type AuthService struct {
	users      repository.UserRepository
	resolver   geoip.Resolver
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Resolver geoip.Resolver
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		resolver:   deps.Resolver,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// TokenManager exposes the token manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Register creates a new account. Contact is the unique login identifier.
func (s *AuthService) Register(ctx context.Context, username, contact, password, requestIP string) (*domain.User, string, time.Time, error) {
	if username == "" || contact == "" || password == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("username, contact, password required", nil)
	}

	if _, err := s.users.GetByContact(ctx, contact); err == nil {
		return nil, "", time.Time{}, apperrors.NewValidationError("contact already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, apperrors.NewStorageError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	ip := requestIP
	if ip == "" {
		ip = domain.LocationUnknown
	}
	user := &domain.User{
		Username:     username,
		Contact:      contact,
		PasswordHash: hash,
		IP:           ip,
		IPLocation:   s.resolver.Resolve(ctx, ip),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// a concurrent registration can win the race past the lookup above;
		// the unique constraint reports it as SQLSTATE 23505
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, "", time.Time{}, apperrors.NewValidationError("contact already registered", nil)
		}
		return nil, "", time.Time{}, apperrors.NewStorageError(err)
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// Login verifies credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, contact, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByContact(ctx, contact)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewNotFound("user", nil)
		}
		return nil, "", time.Time{}, apperrors.NewStorageError(err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewValidationError("incorrect password", nil)
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}
