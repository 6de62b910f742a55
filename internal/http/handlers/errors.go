package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	applog "marketplace/internal/log"
	"marketplace/internal/services"
	"marketplace/internal/wallet"
)

const friendlyMessage = "Something went wrong. Please try again."

// statusFor maps business failures to HTTP statuses. ok is false for errors
// whose text must not reach the client.
func statusFor(err error) (status int, ok bool) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return fiber.StatusForbidden, true
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrOutOfRange):
		return fiber.StatusNotFound, true
	case errors.Is(err, ledger.ErrIncorrectPayment), errors.Is(err, wallet.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired, true
	case errors.Is(err, ledger.ErrTransferFailed):
		return fiber.StatusBadGateway, true
	case errors.Is(err, ledger.ErrDuplicateItem), errors.Is(err, ledger.ErrOutOfStock),
		errors.Is(err, services.ErrAlreadyExists):
		return fiber.StatusConflict, true
	case errors.Is(err, ledger.ErrInvalidItem), errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, wallet.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidAmount):
		return fiber.StatusBadRequest, true
	case errors.Is(err, services.ErrBadCreds):
		return fiber.StatusUnauthorized, true
	}
	return fiber.StatusInternalServerError, false
}

// ErrorHandler is the fiber error handler for the API. Known failures are
// reported as JSON with their message; anything else is logged and replaced
// by a friendly message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code >= fiber.StatusInternalServerError {
			applog.Error(c, "server.error", err, nil)
			return c.Status(fe.Code).JSON(fiber.Map{"error": friendlyMessage})
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	status, ok := statusFor(err)
	if !ok {
		applog.Error(c, "server.error", err, nil)
		return c.Status(status).JSON(fiber.Map{"error": friendlyMessage})
	}
	if status == fiber.StatusBadGateway {
		applog.Error(c, "transfer.error", err, nil)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
