package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"marketplace/internal/domain"
	"marketplace/internal/repos"
)

var (
	ErrBadCreds      = errors.New("invalid account or api key")
	ErrAlreadyExists = errors.New("account already registered")
)

// AuthService checks API keys presented by callers. Keys are stored as bcrypt
// hashes next to the account's wallet funds.
type AuthService struct {
	Accounts *repos.AccountRepo
}

func NewAuthService(accounts *repos.AccountRepo) *AuthService {
	return &AuthService{Accounts: accounts}
}

func (s *AuthService) Authenticate(ctx context.Context, addr domain.Address, key string) (*domain.Account, error) {
	addr = domain.NewAddress(string(addr))
	if addr == "" || key == "" {
		return nil, ErrBadCreds
	}
	acc, err := s.Accounts.ByAddress(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBadCreds
	}
	if err != nil {
		return nil, err
	}
	if acc.KeyHash == "" || bcrypt.CompareHashAndPassword([]byte(acc.KeyHash), []byte(key)) != nil {
		return nil, ErrBadCreds
	}
	return acc, nil
}

// Register creates credentials for addr and returns the generated key. The
// key is shown once; only its hash is kept.
func (s *AuthService) Register(ctx context.Context, addr domain.Address) (string, error) {
	addr = domain.NewAddress(string(addr))
	if addr == "" {
		return "", ErrBadCreds
	}
	key := uuid.NewString()
	h, err := bcrypt.GenerateFromPassword([]byte(key), repos.BcryptCost)
	if err != nil {
		return "", err
	}
	if err := s.Accounts.Create(ctx, addr, string(h)); err != nil {
		if errors.Is(err, repos.ErrAccountExists) {
			return "", ErrAlreadyExists
		}
		return "", err
	}
	return key, nil
}
