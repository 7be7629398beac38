package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayushjava07/DripX/internal/services"

	"github.com/spf13/cobra"
)

func newAirdropCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop <address> <amount>",
		Short: "Request an airdrop and wait for its confirmation",
		Long: `Request an airdrop of <amount> units to <address> and wait until it is
confirmed or the confirmation timeout (FAUCET_CONFIRMATION_TIMEOUT) passes.
Progress notifications are printed as they happen.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()

			sessions := services.NewSessionManager(cfg, newSelector(cfg), nil)
			defer sessions.Stop()
			session := sessions.Create()

			out := cmd.OutOrStdout()
			updates, unsubscribe := session.Feed().Subscribe(32)
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				for n := range updates {
					fmt.Fprintf(out, "[%s] %s\n", n.Severity, n.Message)
				}
			}()

			outcome, err := func() (*services.Outcome, error) {
				defer func() {
					unsubscribe()
					<-printed
				}()
				if err := session.ConnectWallet(ctx, args[0]); err != nil {
					return nil, err
				}
				amount := args[1]
				return session.Submit(ctx, &amount)
			}()
			if err != nil {
				return err
			}
			if !outcome.Succeeded() {
				return fmt.Errorf("airdrop failed (%s): %s", outcome.Category, outcome.Message)
			}

			fmt.Fprintf(out, "signature: %s\n", outcome.Signature)
			if balance := session.Balance(); balance.Known {
				fmt.Fprintf(out, "balance: %s %s\n", balance.Display, cfg.Faucet.UnitSymbol)
			}
			return nil
		},
	}
}
