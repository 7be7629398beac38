package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmationTimeout = errors.New("transaction timeout")
)

// SolanaClient implements LedgerClient over the Solana JSON-RPC API
type SolanaClient struct {
	client   *rpc.Client
	endpoint string
	config   *config.RPCConfig
}

// NewSolanaClient creates a client for one RPC endpoint
func NewSolanaClient(endpoint string, cfg *config.RPCConfig) *SolanaClient {
	return &SolanaClient{
		client:   rpc.New(endpoint),
		endpoint: endpoint,
		config:   cfg,
	}
}

// NewSolanaDialer returns a Dialer producing SolanaClients
func NewSolanaDialer(cfg *config.RPCConfig) Dialer {
	return func(endpoint models.Endpoint) (LedgerClient, error) {
		if strings.TrimSpace(endpoint.Address) == "" {
			return nil, errors.New("empty endpoint address")
		}
		return NewSolanaClient(endpoint.Address, cfg), nil
	}
}

// Endpoint returns the RPC address of the client
func (s *SolanaClient) Endpoint() string {
	return s.endpoint
}

// GetSlot returns the current confirmed slot
func (s *SolanaClient) GetSlot(ctx context.Context) (uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slot, err := s.client.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// GetBalance fetches the lamport balance of a wallet at confirmed commitment
func (s *SolanaClient) GetBalance(ctx context.Context, identity models.Identity) (uint64, error) {
	pubKey, err := solana.PublicKeyFromBase58(identity.String())
	if err != nil {
		return 0, fmt.Errorf("invalid wallet address: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	balance, err := s.client.GetBalance(ctx, pubKey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance from RPC: %w", err)
	}
	if balance == nil {
		return 0, errors.New("failed to get balance from RPC: empty response")
	}
	return balance.Value, nil
}

// RequestAirdrop asks the cluster faucet for lamports
func (s *SolanaClient) RequestAirdrop(ctx context.Context, identity models.Identity, lamports uint64) (string, error) {
	pubKey, err := solana.PublicKeyFromBase58(identity.String())
	if err != nil {
		return "", fmt.Errorf("invalid wallet address: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	signature, err := s.client.RequestAirdrop(ctx, pubKey, lamports, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("airdrop request failed: %w", err)
	}
	return signature.String(), nil
}

// ConfirmTransaction polls the signature status until it reaches confirmed
// commitment, fails on the ledger, or ctx is done
func (s *SolanaClient) ConfirmTransaction(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	interval := time.Second
	if s.config != nil && s.config.PollInterval > 0 {
		interval = s.config.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := s.signatureDone(ctx, sig)
		if done || err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// signatureDone checks the status once. Unknown signatures and transport
// errors are not final; the caller keeps polling.
func (s *SolanaClient) signatureDone(ctx context.Context, sig solana.Signature) (bool, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetSignatureStatuses(callCtx, false, sig)
	if err != nil || out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return true, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}

// IsHealthy checks if the RPC endpoint is responsive
func (s *SolanaClient) IsHealthy(ctx context.Context) error {
	if _, err := s.GetSlot(ctx); err != nil {
		return fmt.Errorf("RPC health check failed: %w", err)
	}
	return nil
}

func (s *SolanaClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config == nil || s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}
