package main

import "github.com/spf13/cobra"

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Derived feature computation",
	Long:  "Computes per-sector features from loaded geography, such as distance to the nearest metro station.",
}

func init() { rootCmd.AddCommand(featuresCmd) }
