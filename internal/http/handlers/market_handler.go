package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	applog "marketplace/internal/log"
	"marketplace/internal/services"
	"marketplace/internal/validate"
)

// History lists past withdrawals, newest first.
type History interface {
	Withdrawals(ctx context.Context, limit int) ([]domain.Withdrawal, error)
}

type MarketHandler struct {
	Ledger  *ledger.Ledger
	Market  *services.MarketService
	History History
}

type listRequest struct {
	ID       uint64        `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Image    string        `json:"image"`
	Cost     domain.Amount `json:"cost"`
	Rating   int           `json:"rating"`
	Stock    int64         `json:"stock"`
}

// Amounts may be sent as JSON numbers or, above 2^53, as decimal strings.
type buyRequest struct {
	Payment domain.Amount `json:"payment"`
}

func (h *MarketHandler) Project(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"project": h.Ledger.ProjectName(), "owner": h.Ledger.Owner()})
}

func (h *MarketHandler) Owner(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"owner": h.Ledger.Owner()})
}

func (h *MarketHandler) Items(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"items": h.Ledger.Items()})
}

func (h *MarketHandler) Item(c *fiber.Ctx) error {
	id, ok := validate.ItemID(c.Params("id"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "id"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid item id"})
	}
	item, err := h.Ledger.Item(id)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

// List adds or replaces a catalog entry. Owner only.
func (h *MarketHandler) List(c *fiber.Ctx) error {
	var req listRequest
	if err := c.BodyParser(&req); err != nil {
		applog.Security(c, "validation.fail", map[string]any{"field": "body"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	name, okName := validate.Text(req.Name, validate.MaxNameLen)
	category, okCat := validate.Text(req.Category, validate.MaxCategoryLen)
	image, okImg := validate.Text(req.Image, validate.MaxImageLen)
	rating, okRating := validate.Rating(req.Rating)
	stock, okStock := validate.Stock(req.Stock)
	if !okName || !okCat || !okImg || !okRating || !okStock {
		applog.Security(c, "validation.fail", map[string]any{"field": "item"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid item fields"})
	}

	item := domain.Item{
		ID:       req.ID,
		Name:     name,
		Category: category,
		Image:    image,
		Cost:     req.Cost,
		Rating:   rating,
		Stock:    stock,
	}
	if err := h.Ledger.List(c.UserContext(), caller(c), item); err != nil {
		return err
	}
	applog.Audit(c, "item.list", map[string]any{"item_id": item.ID, "cost": item.Cost.String()})
	return c.Status(fiber.StatusCreated).JSON(item)
}

// Buy settles a purchase paid from the caller's wallet.
func (h *MarketHandler) Buy(c *fiber.Ctx) error {
	id, ok := validate.ItemID(c.Params("id"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "id"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid item id"})
	}
	var req buyRequest
	if err := c.BodyParser(&req); err != nil {
		applog.Security(c, "validation.fail", map[string]any{"field": "body"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	payment, ok := validate.Amount(req.Payment)
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "payment"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment must not be negative"})
	}

	buyer := caller(c)
	order, err := h.Market.Purchase(c.UserContext(), buyer, id, payment)
	if err != nil {
		return err
	}
	applog.Audit(c, "item.buy", map[string]any{"item_id": id, "payment": payment.String()})
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *MarketHandler) Orders(c *fiber.Ctx) error {
	buyer, ok := validate.Address(c.Params("buyer"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid buyer"})
	}
	orders := h.Ledger.Orders(buyer)
	return c.JSON(fiber.Map{"buyer": buyer, "count": len(orders), "orders": orders})
}

func (h *MarketHandler) OrderCount(c *fiber.Ctx) error {
	buyer, ok := validate.Address(c.Params("buyer"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid buyer"})
	}
	return c.JSON(fiber.Map{"buyer": buyer, "count": h.Ledger.OrderCount(buyer)})
}

func (h *MarketHandler) Order(c *fiber.Ctx) error {
	buyer, ok := validate.Address(c.Params("buyer"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid buyer"})
	}
	index, ok := validate.Index(c.Params("index"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order index"})
	}
	order, err := h.Ledger.Order(buyer, index)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *MarketHandler) Balance(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"balance": h.Ledger.Balance(), "withdrawn": h.Ledger.Withdrawn()})
}

// Withdraw pays the held balance to the owner. Owner only.
func (h *MarketHandler) Withdraw(c *fiber.Ctx) error {
	w, err := h.Ledger.Withdraw(c.UserContext(), caller(c))
	if err != nil {
		return err
	}
	applog.Audit(c, "funds.withdraw", map[string]any{"withdrawal_id": w.ID, "amount": w.Amount.String()})
	return c.JSON(w)
}

func (h *MarketHandler) Withdrawals(c *fiber.Ctx) error {
	if h.History == nil {
		return c.JSON(fiber.Map{"withdrawals": []domain.Withdrawal{}})
	}
	ws, err := h.History.Withdrawals(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"withdrawals": ws})
}
