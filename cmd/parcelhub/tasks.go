package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/geo"
	"github.com/bharathbbg/parcel-hub/internal/model"
	"github.com/bharathbbg/parcel-hub/internal/scheduler"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), storePostgres, false)
			if err != nil {
				return err
			}
			defer a.close()
			return a.stores.pg.Migrate(cmd.Context())
		},
	}
}

func seedGeoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-geo",
		Short: "Load the wilayas and communes reference data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), storePostgres, false)
			if err != nil {
				return err
			}
			defer a.close()

			wilayas, err := geo.Load()
			if err != nil {
				return err
			}
			nw, nc, err := a.stores.seeder.Seed(cmd.Context(), wilayas)
			if err != nil {
				return err
			}
			a.log.Info("geography seeded", zap.Int("wilayas", nw), zap.Int("cities", nc))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d wilayas and %d cities\n", nw, nc)
			return nil
		},
	}
}

func initPricesCmd() *cobra.Command {
	var wilaya string
	cmd := &cobra.Command{
		Use:   "init-prices",
		Short: "Create or reset every shipping route with the configured default prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), storePostgres, false)
			if err != nil {
				return err
			}
			defer a.close()

			sc := a.cfg.Shipping
			defaults, err := routePrices(sc.DefaultDesktopPrice, sc.DefaultHomePrice, sc.DefaultReturnPrice)
			if err != nil {
				return err
			}
			local, err := routePrices(sc.LocalDesktopPrice, sc.LocalHomePrice, sc.DefaultReturnPrice)
			if err != nil {
				return err
			}

			shipping := a.services.Shipping
			var res *model.BulkPriceResult
			if wilaya != "" {
				res, err = shipping.SetWilayaPrices(cmd.Context(), wilaya, defaults)
			} else {
				res, err = shipping.InitializeAll(cmd.Context(), defaults, local)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "routes: %d total, %d created, %d updated, %d failed\n",
				res.Total, res.Created, res.Updated, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", e.ID, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&wilaya, "wilaya", "", "only reset the routes leaving this wilaya code")
	return cmd
}

func cleanupLockersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-lockers",
		Short: "Release closets whose access code has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), storePostgres, false)
			if err != nil {
				return err
			}
			defer a.close()

			res := scheduler.RunLockerCleanup(cmd.Context(), a.services.Lockers, a.log)
			if res == nil {
				return errors.New("locker cleanup failed, see logs")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d closets, released %d, %d errors\n",
				res.Scanned, res.Released, len(res.Errors))
			return nil
		},
	}
}
