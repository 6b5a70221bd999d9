package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func internalApp(token string) *fiber.App {
	app := fiber.New()
	user := func(c *fiber.Ctx) error {
		if c.Get("X-Test-User") == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		c.Locals(localUserID, c.Get("X-Test-User"))
		return c.Next()
	}
	app.Post("/reconcile", InternalOrJWT(token, user), func(c *fiber.Ctx) error {
		if IsInternal(c) {
			return c.SendString("internal")
		}
		return c.SendString("user")
	})
	return app
}

func TestInternalOrJWT(t *testing.T) {
	cases := []struct {
		name     string
		token    string
		headers  map[string]string
		wantCode int
	}{
		{"internal token", "secret", map[string]string{"X-Internal-Token": "secret"}, fiber.StatusOK},
		{"wrong internal token falls back to user", "secret", map[string]string{"X-Internal-Token": "nope"}, fiber.StatusUnauthorized},
		{"user token", "secret", map[string]string{"X-Test-User": "u1"}, fiber.StatusOK},
		{"no credentials", "secret", nil, fiber.StatusUnauthorized},
		{"internal disabled", "", map[string]string{"X-Internal-Token": ""}, fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/reconcile", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := internalApp(tc.token).Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantCode)
			}
		})
	}
}

func TestIsInternalOnlyForInternalCallers(t *testing.T) {
	app := internalApp("secret")
	req := httptest.NewRequest("POST", "/reconcile", nil)
	req.Header.Set("X-Test-User", "u1")
	req.Header.Set("X-Internal-Token", "wrong")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := string(body); got != "user" {
		t.Fatalf("body = %q, want user", got)
	}
}
