package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geosampa/censo-cli/internal/metricstore"
)

var geoStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loaded tables and their columns",
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

		for _, table := range []string{cfg.Store.SectorTable, cfg.Store.POITable, cfg.Store.StagingTable} {
			cols, err := metricstore.ListColumns(ctx, pool, table)
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				fmt.Printf("%s: not loaded\n", table)
				continue
			}
			fmt.Printf("%s:\n", table)
			for _, c := range cols {
				fmt.Printf("  %-30s %s\n", c.Name, c.DataType)
			}
		}
		return nil
	},
}

func init() {
	geoCmd.AddCommand(geoStatusCmd)
}
