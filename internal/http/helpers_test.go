package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"marketplace/internal/domain"
	"marketplace/internal/http/handlers"
	"marketplace/internal/ledger"
	"marketplace/internal/repos"
	"marketplace/internal/services"
)

const (
	ownerAddr = "0xowner"
	ownerKey  = "owner-key"
	buyerAddr = "0xbuyer"
	buyerKey  = "buyer-key"
)

type testEnv struct {
	app      *fiber.App
	db       *sqlx.DB
	ledger   *ledger.Ledger
	accounts *repos.AccountRepo
}

// newTestApp wires the API the way cmd/marketplace does, on an in-memory
// sqlite database with a funded buyer.
func newTestApp(t *testing.T, opts ...ledger.Option) *testEnv {
	t.Helper()
	ctx := context.Background()
	repos.BcryptCost = bcrypt.MinCost

	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repos.SeedAccounts(ctx, db, []repos.SeedAccount{
		{Address: ownerAddr, Key: ownerKey},
		{Address: buyerAddr, Key: buyerKey, Funds: domain.NewAmount(1000)},
	}))

	accounts := repos.NewAccountRepo(db)
	store := repos.NewLedgerRepo(db)
	l, err := ledger.New(ctx, ownerAddr, append([]ledger.Option{
		ledger.WithStore(store),
		ledger.WithWallet(accounts),
	}, opts...)...)
	require.NoError(t, err)

	market := services.NewMarketService(l, accounts, nil, nil)
	deps := handlers.NewDeps(l, accounts, market, store)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	handlers.Mount(app, deps)
	return &testEnv{app: app, db: db, ledger: l, accounts: accounts}
}

type creds struct{ addr, key string }

var (
	asOwner = &creds{ownerAddr, ownerKey}
	asBuyer = &creds{buyerAddr, buyerKey}
)

// call sends a JSON request and decodes the JSON response into a map.
func (e *testEnv) call(t *testing.T, method, path string, body any, who *creds) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set(handlers.HeaderAccount, who.addr)
		req.Header.Set(handlers.HeaderAPIKey, who.key)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && resp.Header.Get("Content-Type") != "" {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func item(id uint64, cost int64) map[string]any {
	return map[string]any{"id": id, "name": "Shoes", "category": "Footwear", "image": "https://img/1.png", "cost": cost, "rating": 4, "stock": 5}
}
