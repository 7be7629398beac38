package main

import (
	"context"
	"fmt"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

func newBalanceCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the balance of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseIdentity(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			conn, err := newSelector(cfg).SelectConnection(ctx)
			if err != nil {
				return err
			}
			lamports, err := conn.Client.GetBalance(ctx, identity)
			if err != nil {
				return fmt.Errorf("failed to get balance from %s: %w", conn.Endpoint.Address, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
				services.FormatUnits(lamports, cfg.Faucet.LamportsPerUnit, 4), cfg.Faucet.UnitSymbol)
			return nil
		},
	}
}

func parseIdentity(address string) (models.Identity, error) {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalidIdentity, err)
	}
	return models.Identity(pubKey.String()), nil
}
