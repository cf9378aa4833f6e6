package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"psimaker/internal/ledger"
)

func newRunsCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded conversion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := ledger.Open(ctx, a.cfg.Ledger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() { _ = store.Close() }()

			if id != "" {
				rec, err := store.Get(ctx, id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			recs, err := store.List(ctx)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "show one run in full")
	return cmd
}
