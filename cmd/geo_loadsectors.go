package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/shapeload"
)

var geoLoadSectorsCmd = &cobra.Command{
	Use:   "load-sectors <shapefile>",
	Short: "Load the census sector shapefile",
	Long:  "Replaces the sector table with the contents of an IBGE census-sector shapefile. Geometry is stored in WGS84 with a GiST index.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		ds := shapeload.Sectors
		ds.Table = cfg.Store.SectorTable

		n, err := shapeload.Load(ctx, pool, args[0], ds)
		if err != nil {
			return err
		}

		zap.L().Info("sectors loaded", zap.Int64("rows", n))
		fmt.Printf("Loaded %d sectors into %s\n", n, ds.Table)
		return nil
	},
}

func init() {
	geoCmd.AddCommand(geoLoadSectorsCmd)
}
