package services

import (
	"context"

	"github.com/ayushjava07/DripX/internal/models"
)

// AuthServiceInterface defines the interface for authentication services
type AuthServiceInterface interface {
	ValidateAPIKey(ctx context.Context, key string) (*models.APIKey, error)
}

// LedgerClient is the subset of the ledger RPC surface the faucet needs
type LedgerClient interface {
	// GetSlot is a cheap read-only call used as a liveness probe
	GetSlot(ctx context.Context) (uint64, error)
	// GetBalance returns the raw lamport balance of an identity
	GetBalance(ctx context.Context, identity models.Identity) (uint64, error)
	// RequestAirdrop asks the ledger faucet for lamports and returns the transaction signature
	RequestAirdrop(ctx context.Context, identity models.Identity, lamports uint64) (string, error)
	// ConfirmTransaction blocks until the transaction is confirmed. An on-ledger
	// failure is reported as an error wrapping ErrTransactionFailed.
	ConfirmTransaction(ctx context.Context, signature string) error
}

// Dialer builds a LedgerClient for an endpoint. Dialing does no network I/O.
type Dialer func(endpoint models.Endpoint) (LedgerClient, error)

// ConnectionSelector hands out verified connections
type ConnectionSelector interface {
	SelectConnection(ctx context.Context) (*Connection, error)
}

// BalanceRefresherInterface defines the interface for balance refreshes
type BalanceRefresherInterface interface {
	Refresh(ctx context.Context, identity models.Identity) error
	Snapshot() models.BalanceSnapshot
	Invalidate()
}

// IdentitySource reports the currently connected wallet, if any
type IdentitySource interface {
	Identity() (models.Identity, bool)
}
