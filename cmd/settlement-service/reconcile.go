package main

import (
	"encoding/json"
	"os"

	"github.com/LavaJover/shvark-settlement-service/internal/app/setup"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			deps, err := setup.InitializeDependencies(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			useCases, err := setup.InitializeUseCases(deps)
			if err != nil {
				return err
			}

			report, err := useCases.SettlementUsecase.Reconcile(ctx)
			if report != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			}
			return err
		},
	}
}
