package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/ayushjava07/DripX/internal/services"

	"github.com/spf13/cobra"
)

func newProbeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe every configured RPC endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			checker := services.NewRPCHealthChecker(newSelector(cfg), cfg.RPC.HealthCheckWait)
			checks := checker.CheckEndpoints(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tSTATUS\tLATENCY\tDETAIL")
			for _, check := range checks {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", check.Service, check.Status, check.ResponseTime, check.Message)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			summary := checker.Summary(checks)
			fmt.Fprintln(cmd.OutOrStdout(), summary.Message)
			if summary.Status == services.HealthStatusUnhealthy {
				return fmt.Errorf("no RPC endpoint reachable")
			}
			return nil
		},
	}
}
