package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"bookchain/pkg/domain"
)

const (
	DefaultTTL  = 2 * time.Hour
	DefaultFlag = "MySession"

	connectKey = "connect"
)

// Config configures an Authenticator.
type Config struct {
	// Provider is nil when no wallet is installed.
	Provider Provider
	TTL      time.Duration
	Flags    []string
	Now      func() time.Time
	Logger   *slog.Logger
}

// Authenticator turns a wallet into time-boxed sessions.
type Authenticator struct {
	provider Provider
	ttl      time.Duration
	flags    []string
	now      func() time.Time
	logger   *slog.Logger

	group singleflight.Group
}

// NewAuthenticator applies defaults to cfg.
func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if len(cfg.Flags) == 0 {
		cfg.Flags = []string{DefaultFlag}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authenticator{
		provider: cfg.Provider,
		ttl:      cfg.TTL,
		flags:    cfg.Flags,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// Connect logs in with the wallet. Concurrent calls share one wallet
// interaction and observe the same session or error. The interaction itself
// is not cancelled with ctx; a caller whose ctx ends stops waiting and gets
// ctx.Err().
func (a *Authenticator) Connect(ctx context.Context) (domain.Session, error) {
	if a.provider == nil {
		return domain.Session{}, ErrWalletUnavailable
	}
	ch := a.group.DoChan(connectKey, func() (any, error) {
		return a.connect(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return domain.Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Session{}, res.Err
		}
		return res.Val.(domain.Session), nil
	}
}

func (a *Authenticator) connect(ctx context.Context) (domain.Session, error) {
	accounts, err := a.provider.ListAccounts(ctx)
	if err != nil {
		return domain.Session{}, providerError("list accounts", err)
	}
	if len(accounts) == 0 {
		a.logger.Info("no authorized wallet accounts, requesting access")
		accounts, err = a.provider.RequestAccounts(ctx)
		if err != nil {
			return domain.Session{}, providerError("request accounts", err)
		}
		if len(accounts) == 0 {
			return domain.Session{}, ErrNoAccounts
		}
	}
	return a.login(ctx, accounts[0])
}

func (a *Authenticator) login(ctx context.Context, account Account) (domain.Session, error) {
	if _, err := ParseAccountID(account.ID); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	grant, err := a.provider.Login(ctx, LoginRequest{
		AccountID: account.ID,
		Rules:     Rules{TTL: a.ttl, Flags: a.flags},
	})
	if err != nil {
		if errors.Is(err, ErrUserRejected) || errors.Is(err, ErrWalletUnavailable) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if len(grant.AccountID) == 0 {
		return domain.Session{}, fmt.Errorf("%w: grant carries no account", ErrLoginFailed)
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	if !grant.ExpiresAt.IsZero() && grant.ExpiresAt.Before(expiresAt) {
		expiresAt = grant.ExpiresAt
	}
	flags := grant.Flags
	if len(flags) == 0 {
		flags = append([]string(nil), a.flags...)
	}
	sess := domain.Session{
		PublicKeyHex: PublicKeyHex(grant.AccountID),
		ExpiresAt:    expiresAt,
		GrantedFlags: flags,
	}
	a.logger.Info("wallet session granted", "publicKey", sess.PublicKeyHex, "expiresAt", sess.ExpiresAt)
	return sess, nil
}

func providerError(op string, err error) error {
	if errors.Is(err, ErrUserRejected) || errors.Is(err, ErrWalletUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrLoginFailed, op, err)
}
