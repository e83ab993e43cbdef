package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/shapeload"
)

var geoLoadPOIsCmd = &cobra.Command{
	Use:   "load-pois <shapefile>",
	Short: "Load the metro station shapefile",
	Long:  "Replaces the POI table with the contents of the metro station shapefile. Coordinates are reprojected from the municipal projected CRS to WGS84.",
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

		ds := shapeload.MetroStations
		ds.Table = cfg.Store.POITable

		n, err := shapeload.Load(ctx, pool, args[0], ds)
		if err != nil {
			return err
		}

		zap.L().Info("pois loaded", zap.Int64("rows", n))
		fmt.Printf("Loaded %d stations into %s\n", n, ds.Table)
		return nil
	},
}

func init() {
	geoCmd.AddCommand(geoLoadPOIsCmd)
}
