package wallet

import (
	"context"
	"time"
)

// Account is an account the wallet can log in with.
type Account struct {
	ID string
}

// Rules are the constraints requested for a login grant.
type Rules struct {
	TTL   time.Duration
	Flags []string
}

// LoginRequest asks the wallet for a session grant.
type LoginRequest struct {
	AccountID string
	Rules     Rules
}

// Grant is what the wallet returns for a successful login. A zero ExpiresAt
// means the wallet did not report one.
type Grant struct {
	AccountID []byte
	ExpiresAt time.Time
	Flags     []string
}

// Provider is the external wallet capability. Implementations report a
// declined prompt as ErrUserRejected.
type Provider interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	RequestAccounts(ctx context.Context) ([]Account, error)
	Login(ctx context.Context, req LoginRequest) (Grant, error)
}
