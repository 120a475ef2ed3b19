package main

import (
	"encoding/json"
	"time"

	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
)

func reconcileCmd(open func() (*env, error)) *cobra.Command {
	var (
		grace time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Release reservations whose order was never stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			movements := persistence.NewGormMovementRepository(e.db.DB)
			inventory := inventoryapp.NewInventoryService(
				persistence.NewGormTransactionScope(e.db.DB, nil),
				movements,
				persistence.NewGormStockRepository(e.db.DB),
				inventoryapp.Options{CASRetryAttempts: e.cfg.Inventory.CASRetryAttempts},
			)
			reconciler := inventoryapp.NewReservationReconciler(movements,
				persistence.NewGormOrderRepository(e.db.DB), inventory, e.cfg.Inventory.ReservationGrace, e.log)
			reconciler.SetBatchSize(limit)

			stats, err := reconciler.ReconcileOrphanReservations(cmd.Context(), grace)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "minimum reservation age, 0 uses the configured grace period")
	cmd.Flags().IntVar(&limit, "limit", inventoryapp.DefaultReconcileBatchSize, "maximum reservations to inspect")
	return cmd
}
