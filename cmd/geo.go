package main

import "github.com/spf13/cobra"

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Geographic dataset loading",
	Long:  "Loads shapefile datasets (census sectors, metro POIs) into PostGIS tables.",
}

func init() { rootCmd.AddCommand(geoCmd) }
