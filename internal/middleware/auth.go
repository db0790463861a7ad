package middleware

import (
	"errors"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const userLocalsKey = "user"

// JWTProtected admits requests carrying a valid access token. Refresh tokens
// are signed with the same key, so the typ claim is checked as well.
func JWTProtected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwt.SigningMethodHS256.Alg(), Key: []byte(secret)},
		ContextKey: userLocalsKey,
		SuccessHandler: func(c *fiber.Ctx) error {
			if _, err := UserID(c); err != nil {
				return unauthorized(c)
			}
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c)
		},
	})
}

// UserID returns the authenticated user's id from the access token claims.
func UserID(c *fiber.Ctx) (int64, error) {
	token, ok := c.Locals(userLocalsKey).(*jwt.Token)
	if !ok {
		return 0, errors.New("invalid token in context")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}
	if typ, _ := claims["typ"].(string); typ != "access" {
		return 0, errors.New("not an access token")
	}

	// userId is also present but would lose precision as a float64.
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, errors.New("missing sub claim")
	}
	return strconv.ParseInt(sub, 10, 64)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:   true,
		Message: "Unauthorized: invalid or expired token",
	})
}
