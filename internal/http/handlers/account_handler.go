package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "marketplace/internal/log"
	"marketplace/internal/repos"
	"marketplace/internal/services"
	"marketplace/internal/validate"
)

type AccountHandler struct {
	Auth     *services.AuthService
	Accounts *repos.AccountRepo
}

type registerRequest struct {
	Address string `json:"address"`
}

// Register issues an API key for a new address. The key is returned once.
func (h *AccountHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	addr, ok := validate.Address(req.Address)
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "address"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid address"})
	}
	key, err := h.Auth.Register(c.UserContext(), addr)
	if err != nil {
		return err
	}
	applog.Audit(c, "account.register", map[string]any{"address": addr.String()})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"address": addr, "api_key": key})
}

// Me reports the caller's wallet funds.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	addr := caller(c)
	funds, err := h.Accounts.Funds(c.UserContext(), addr)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"address": addr, "funds": funds})
}
