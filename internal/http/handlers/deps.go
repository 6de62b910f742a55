package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"marketplace/internal/ledger"
	applog "marketplace/internal/log"
	"marketplace/internal/repos"
	"marketplace/internal/services"
)

type Deps struct {
	Ledger         *ledger.Ledger
	Auth           *services.AuthService
	MarketHandler  *MarketHandler
	AccountHandler *AccountHandler
}

func NewDeps(l *ledger.Ledger, accounts *repos.AccountRepo, market *services.MarketService, history History) *Deps {
	auth := services.NewAuthService(accounts)
	return &Deps{
		Ledger:         l,
		Auth:           auth,
		MarketHandler:  &MarketHandler{Ledger: l, Market: market, History: history},
		AccountHandler: &AccountHandler{Auth: auth, Accounts: accounts},
	}
}

// Mount registers the API routes under r.
func Mount(r fiber.Router, d *Deps) {
	api := r.Group("/api/v1")
	account := RequireAccount(d.Auth)
	owner := RequireOwner(d.Ledger)

	// Public reads
	api.Get("/project", d.MarketHandler.Project)
	api.Get("/owner", d.MarketHandler.Owner)
	api.Get("/items", d.MarketHandler.Items)
	api.Get("/items/:id", d.MarketHandler.Item)
	api.Get("/orders/:buyer", d.MarketHandler.Orders)
	api.Get("/orders/:buyer/count", d.MarketHandler.OrderCount)
	api.Get("/orders/:buyer/:index", d.MarketHandler.Order)
	api.Get("/balance", d.MarketHandler.Balance)

	// Owner
	api.Post("/items", account, owner, d.MarketHandler.List)
	api.Post("/withdraw", account, owner, d.MarketHandler.Withdraw)
	api.Get("/withdrawals", account, owner, d.MarketHandler.Withdrawals)

	// Buyers
	api.Post("/items/:id/buy", account, d.MarketHandler.Buy)
	api.Get("/accounts/me", account, d.AccountHandler.Me)
	api.Post("/accounts", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.register.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many attempts, try again later"})
		},
	}), d.AccountHandler.Register)

	r.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
}
