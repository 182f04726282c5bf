package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/repository"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

const userKey = "auth_user"

// Middleware attaches the authenticated user to the request when a bearer
// token is present. Requests without a token continue anonymously; the
// ticket endpoints are open to everyone. A token that is present but
// invalid is rejected.
type Middleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, users repository.UserRepository) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// Handle resolves the optional bearer token.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Next()
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewForbidden("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewForbidden("invalid token")
	}

	user, err := m.users.GetByID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", nil)
		}
		return apperrors.MapError(err)
	}

	c.Locals(userKey, user)
	return c.Next()
}

// UserFromContext retrieves the authenticated user, if any.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	val := c.Locals(userKey)
	if val == nil {
		return nil, false
	}
	user, ok := val.(*domain.User)
	return user, ok
}
