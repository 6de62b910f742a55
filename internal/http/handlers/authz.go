package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	applog "marketplace/internal/log"
	"marketplace/internal/services"
	"marketplace/internal/validate"
)

const (
	HeaderAccount = "X-Account"
	HeaderAPIKey  = "X-Api-Key"
)

// RequireAccount authenticates the caller from the identity headers and
// stores the normalized address in Locals("account").
func RequireAccount(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		addr, okAddr := validate.Address(c.Get(HeaderAccount))
		key, okKey := validate.APIKey(c.Get(HeaderAPIKey))
		if !okAddr || !okKey {
			applog.Security(c, "auth.missing", nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or malformed credentials"})
		}
		acc, err := auth.Authenticate(c.UserContext(), addr, key)
		if errors.Is(err, services.ErrBadCreds) {
			applog.Security(c, "auth.fail", map[string]any{"account": addr.String()})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return err
		}
		c.Locals("account", acc.Address.String())
		return c.Next()
	}
}

// RequireOwner admits only the ledger owner. It must run after RequireAccount.
func RequireOwner(l *ledger.Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if caller(c) != l.Owner() {
			applog.Security(c, "access.denied.owner", nil)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": ledger.ErrUnauthorized.Error()})
		}
		return c.Next()
	}
}

func caller(c *fiber.Ctx) domain.Address {
	s, _ := c.Locals("account").(string)
	return domain.Address(s)
}
