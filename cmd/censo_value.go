package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/harmonize"
	"github.com/geosampa/censo-cli/internal/ibge"
	"github.com/geosampa/censo-cli/internal/metricstore"
)

var censoValueCmd = &cobra.Command{
	Use:   "value",
	Short: "Harmonize a single-value series",
	Long: `Write an already-aggregated metric (one value per geographic unit) to the
metric column of the target table.

Input comes from a CSV (--csv, columns unit_code/value) or from the IBGE
Agregados API (--aggregate, --variable). With --chunked the municipality
codes present in the sector table are fetched in batches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "censo.value"))

		if err := cfg.Validate("harmonize"); err != nil {
			return err
		}

		csvPath, _ := cmd.Flags().GetString("csv")
		aggregate, _ := cmd.Flags().GetString("aggregate")
		variable, _ := cmd.Flags().GetString("variable")
		localities, _ := cmd.Flags().GetString("localities")
		period, _ := cmd.Flags().GetString("period")
		column, _ := cmd.Flags().GetString("column")
		table, _ := cmd.Flags().GetString("table")
		chunked, _ := cmd.Flags().GetBool("chunked")
		reportPath, _ := cmd.Flags().GetString("report")

		if period == "" {
			period = cfg.Censo.Period
		}
		if column == "" {
			column = cfg.Censo.MetricColumn
		}
		if table == "" {
			table = cfg.Store.SectorTable
		}

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		var rows []harmonize.ValueRow
		switch {
		case csvPath != "":
			rows, err = readValueCSV(csvPath)
		case aggregate != "" && variable != "" && chunked:
			codes, cerr := metricstore.DistinctCodes(ctx, pool, table, "CD_MUN")
			if cerr != nil {
				return cerr
			}
			log.Info("fetching series in chunks", zap.Int("municipalities", len(codes)))
			rows, err = ibgeClient().FetchSeriesChunked(ctx, ibge.SeriesQuery{
				Aggregate: aggregate,
				Variable:  variable,
				Period:    period,
			}, codes)
		case aggregate != "" && variable != "":
			if localities == "" {
				localities = "N6[all]"
			}
			rows, err = ibgeClient().FetchSeries(ctx, ibge.SeriesQuery{
				Aggregate:  aggregate,
				Variable:   variable,
				Period:     period,
				Localities: localities,
			})
		default:
			return eris.New("censo value: provide --csv or --aggregate/--variable")
		}
		if err != nil {
			return err
		}
		log.Info("input loaded", zap.Int("rows", len(rows)))

		h := harmonize.New(metricstore.NewPostgres(pool))
		report, err := h.HarmonizeValues(ctx, rows, harmonize.Options{
			TargetTable:  table,
			MetricColumn: column,
			StagingTable: cfg.Store.StagingTable,
		})
		if err != nil {
			return err
		}

		return writeReport(report, reportPath)
	},
}

func init() {
	censoValueCmd.Flags().String("csv", "", "single-value CSV (unit_code,value)")
	censoValueCmd.Flags().String("aggregate", "", "IBGE aggregate table id")
	censoValueCmd.Flags().String("variable", "", "IBGE variable id")
	censoValueCmd.Flags().String("localities", "", "IBGE localities expression (default N6[all])")
	censoValueCmd.Flags().Bool("chunked", false, "fetch per-municipality batches using codes from the sector table")
	censoValueCmd.Flags().String("period", "", "period, e.g. 2022 (default from config)")
	censoValueCmd.Flags().String("column", "", "metric column (default from config)")
	censoValueCmd.Flags().String("table", "", "target table (default from config)")
	censoValueCmd.Flags().String("report", "", "write the YAML run report to this file instead of stdout")
	censoCmd.AddCommand(censoValueCmd)
}
