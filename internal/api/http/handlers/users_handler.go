package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/maplebug/helpdesk/internal/api/dto"
	"github.com/maplebug/helpdesk/internal/service"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

// UsersHandler exposes registration and login endpoints.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, token, exp, err := h.auth.Register(c.UserContext(), req.Username, req.Contact, req.Password, clientIP(c))
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":  "registered",
		"username": user.Username,
		"auth":     dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}

// Login handles POST /api/auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Contact == "" || req.Password == "" {
		return apperrors.NewValidationError("contact and password required", nil)
	}

	user, token, exp, err := h.auth.Login(c.UserContext(), req.Contact, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message":  "logged in",
		"username": user.Username,
		"auth":     dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}
