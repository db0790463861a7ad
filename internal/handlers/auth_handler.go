package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	sessions       *services.SessionService
	requestTimeout time.Duration
}

func NewAuthHandler(sessions *services.SessionService, requestTimeout time.Duration) *AuthHandler {
	return &AuthHandler{sessions: sessions, requestTimeout: requestTimeout}
}

func (h *AuthHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.requestTimeout)
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := h.context(c)
	defer cancel()

	user, err := h.sessions.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	resp := dto.SignUpResponse{ID: user.ID, InviteCode: user.InviteCode}
	if user.Email != nil {
		resp.Email = *user.Email
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := h.context(c)
	defer cancel()

	pair, err := h.sessions.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Refresh reads the refresh token from the Authorization header.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	token, ok := bearerToken(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Missing refresh token",
		})
	}

	ctx, cancel := h.context(c)
	defer cancel()

	pair, err := h.sessions.Refresh(ctx, token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *AuthHandler) OAuthLogin(c *fiber.Ctx) error {
	provider := models.SocialProvider(strings.ToLower(c.Params("provider")))
	if !provider.Valid() || provider == models.ProviderEmail {
		return badRequest(c, "Unsupported social provider")
	}

	var req dto.OAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := h.context(c)
	defer cancel()

	pair, err := h.sessions.OAuthLogin(ctx, provider, services.Credential{
		AuthorizationCode: req.AuthorizationCode,
		AccessToken:       req.AccessToken,
		IdentityToken:     req.IdentityToken,
		RedirectURI:       req.RedirectURI,
		Nickname:          req.Nickname,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	if err := h.sessions.Logout(ctx, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Withdraw(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	if err := h.sessions.Withdraw(ctx, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Account deleted successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	user, err := h.sessions.Profile(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toUserResponse(user))
}

func toUserResponse(u *models.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:         u.ID,
		Provider:   string(u.SocialProvider),
		InviteCode: u.InviteCode,
		CreatedAt:  u.CreatedAt,
	}
	if u.Email != nil {
		resp.Email = *u.Email
	}
	if u.Nickname != nil {
		resp.Nickname = *u.Nickname
	}
	if u.ProfileImageURL != nil {
		resp.ProfileImageURL = *u.ProfileImageURL
	}
	return resp
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// respondError maps a session error to its HTTP status. Server-side failures
// are logged and answered with a generic message.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrKindValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrKindConflict):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrKindUnauthorized), errors.Is(err, services.ErrKindInvalidToken):
		status = fiber.StatusUnauthorized
	case errors.Is(err, services.ErrKindForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrKindNotFound):
		status = fiber.StatusNotFound
	}

	message := services.PublicMessage(err)
	if status >= fiber.StatusInternalServerError {
		if !errors.Is(err, services.ErrKindFederation) {
			message = "Internal server error"
		}
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", c.Locals("requestid"),
			"error", err,
		)
	}

	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}
