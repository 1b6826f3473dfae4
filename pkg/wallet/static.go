package wallet

import (
	"context"
	"fmt"
	"time"
)

// StaticProvider is a wallet that holds fixed, pre-authorized accounts. It is
// meant for command-line use against development nodes, where no interactive
// wallet exists.
type StaticProvider struct {
	Accounts []Account
	Now      func() time.Time
}

func (p *StaticProvider) ListAccounts(ctx context.Context) ([]Account, error) {
	return append([]Account(nil), p.Accounts...), nil
}

// RequestAccounts has nobody to prompt, so it can only refuse.
func (p *StaticProvider) RequestAccounts(ctx context.Context) ([]Account, error) {
	return nil, ErrUserRejected
}

func (p *StaticProvider) Login(ctx context.Context, req LoginRequest) (Grant, error) {
	raw, err := ParseAccountID(req.AccountID)
	if err != nil {
		return Grant{}, err
	}
	known := false
	for _, acc := range p.Accounts {
		if acc.ID == req.AccountID {
			known = true
			break
		}
	}
	if !known {
		return Grant{}, fmt.Errorf("account %s not held by wallet", req.AccountID)
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return Grant{
		AccountID: raw,
		ExpiresAt: now().Add(req.Rules.TTL),
		Flags:     append([]string(nil), req.Rules.Flags...),
	}, nil
}
