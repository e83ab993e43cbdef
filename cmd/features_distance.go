package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geosampa/censo-cli/internal/features"
)

var featuresDistanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Compute nearest-metro distances",
	Long:  "Fills the distance column of every sector with the metric distance to the closest metro station. With --per-line, also one column per metro line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		perLine, _ := cmd.Flags().GetBool("per-line")
		column, _ := cmd.Flags().GetString("column")
		if column == "" {
			column = cfg.Features.DistanceColumn
		}

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := features.NearestMetroDistance(ctx, pool, features.DistanceOptions{
			SectorTable:    cfg.Store.SectorTable,
			POITable:       cfg.Store.POITable,
			DistanceColumn: column,
			MetricSRID:     cfg.Features.MetricSRID,
			PerLine:        perLine,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Updated %d sectors\n", res.SectorsUpdated)
		if perLine {
			fmt.Printf("Per-line columns for %d lines\n", len(res.Lines))
		}
		return nil
	},
}

func init() {
	featuresDistanceCmd.Flags().Bool("per-line", false, "also compute one distance column per metro line")
	featuresDistanceCmd.Flags().String("column", "", "distance column name (default from config)")
	featuresCmd.AddCommand(featuresDistanceCmd)
}
