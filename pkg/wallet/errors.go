package wallet

import "errors"

var (
	// ErrWalletUnavailable indicates no wallet capability is present.
	ErrWalletUnavailable = errors.New("wallet unavailable")
	// ErrUserRejected indicates the user declined an account or login request.
	ErrUserRejected = errors.New("wallet request rejected by user")
	// ErrNoAccounts indicates neither listing nor requesting produced an account.
	ErrNoAccounts = errors.New("no wallet accounts available")
	// ErrLoginFailed indicates the wallet/ledger login handshake was rejected.
	ErrLoginFailed = errors.New("wallet login failed")
	// ErrInvalidAccountID indicates an account id could not be decoded.
	ErrInvalidAccountID = errors.New("invalid account id")
)
