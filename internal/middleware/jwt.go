package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/socialpulse/socialpulse/internal/auth"
)

const (
	localUserID   = "user_id"
	localInternal = "internal_caller"

	internalTokenHeader = "X-Internal-Token"
)

// JWTAuth returns a middleware that validates access tokens and checks token version.
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		userID, err := tokens.Verify(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		c.Locals(localUserID, userID)
		return c.Next()
	}
}

// InternalOrJWT admits callers presenting the internal token and otherwise
// falls back to user authentication.
func InternalOrJWT(internalToken string, user fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := c.Get(internalTokenHeader)
		if internalToken != "" && presented != "" &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(internalToken)) == 1 {
			c.Locals(localInternal, true)
			return c.Next()
		}
		return user(c)
	}
}

// IsInternal reports whether the request was admitted with the internal token.
func IsInternal(c *fiber.Ctx) bool {
	v, _ := c.Locals(localInternal).(bool)
	return v
}
