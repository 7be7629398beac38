package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Identity is the base58 public key of a connected wallet
type Identity string

// String returns the base58 form of the identity
func (i Identity) String() string {
	return string(i)
}

// Endpoint is an upstream ledger RPC address with its position in the candidate list
type Endpoint struct {
	Address  string `json:"address"`
	Priority int    `json:"priority"`
}

// EndpointsFromAddresses builds endpoints in priority order
func EndpointsFromAddresses(addresses []string) []Endpoint {
	endpoints := make([]Endpoint, 0, len(addresses))
	for i, address := range addresses {
		endpoints = append(endpoints, Endpoint{Address: address, Priority: i})
	}
	return endpoints
}

// DisbursementRequest is an accepted airdrop request. It is never mutated after creation.
type DisbursementRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Lamports  uint64          `json:"lamports"`
	Requester Identity        `json:"requester"`
	CreatedAt time.Time       `json:"created_at"`
}

// BalanceSnapshot is the last published balance of the connected identity.
// Known is false while the balance is unknown.
type BalanceSnapshot struct {
	Known     bool      `json:"known"`
	Identity  Identity  `json:"identity,omitempty"`
	Lamports  uint64    `json:"lamports"`
	Display   string    `json:"display,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Severity of a user facing notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a message for the presentation layer to render
type Notification struct {
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"-"`
	At       time.Time     `json:"at"`
}

// MarshalJSON renders Duration as whole milliseconds
func (n Notification) MarshalJSON() ([]byte, error) {
	type alias Notification
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"duration_ms"`
	}{
		alias:      alias(n),
		DurationMs: n.Duration.Milliseconds(),
	})
}

// AirdropRequest is the body of POST /api/sessions/:id/airdrop
type AirdropRequest struct {
	Amount *string `json:"amount,omitempty"`
}

// AmountRequest is the body of PUT /api/sessions/:id/amount
type AmountRequest struct {
	Value string `json:"value"`
}

// WalletRequest is the body of PUT /api/sessions/:id/wallet
type WalletRequest struct {
	Address string `json:"address"`
}

// SessionResponse describes the state of a faucet session
type SessionResponse struct {
	ID          string          `json:"id"`
	Connected   bool            `json:"connected"`
	Identity    Identity        `json:"identity,omitempty"`
	Amount      string          `json:"amount"`
	InFlight    bool            `json:"in_flight"`
	State       string          `json:"state"`
	Balance     BalanceSnapshot `json:"balance"`
	LastOutcome *OutcomeView    `json:"last_outcome,omitempty"`
}

// OutcomeView is the JSON view of a finished disbursement attempt
type OutcomeView struct {
	State     string    `json:"state"`
	Category  string    `json:"category,omitempty"`
	Message   string    `json:"message"`
	Signature string    `json:"signature,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Finished  time.Time `json:"finished_at"`
}

// NotificationsResponse wraps drained notifications
type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}
