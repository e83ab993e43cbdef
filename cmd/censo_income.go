package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/harmonize"
	"github.com/geosampa/censo-cli/internal/ibge"
	"github.com/geosampa/censo-cli/internal/metricstore"
)

var censoIncomeCmd = &cobra.Command{
	Use:   "income",
	Short: "Harmonize a grouped income distribution",
	Long: `Harmonize grouped income-class frequencies into one synthetic median per
geographic unit and write it to the metric column of the target table.

Input comes from a CSV (--csv, columns unit_code/label/value) or from the
IBGE Agregados API (--aggregate, --variable, --classification). Income-class
labels are parsed into monetary bounds; minimum-wage labels are scaled by the
period's minimum wage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "censo.income"))

		if err := cfg.Validate("harmonize"); err != nil {
			return err
		}

		csvPath, _ := cmd.Flags().GetString("csv")
		aggregate, _ := cmd.Flags().GetString("aggregate")
		variable, _ := cmd.Flags().GetString("variable")
		classification, _ := cmd.Flags().GetString("classification")
		period, _ := cmd.Flags().GetString("period")
		column, _ := cmd.Flags().GetString("column")
		table, _ := cmd.Flags().GetString("table")
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

		var rows []harmonize.Row
		var err error
		switch {
		case csvPath != "":
			rows, err = readGroupedCSV(csvPath)
		case aggregate != "" && variable != "" && classification != "":
			rows, err = ibgeClient().FetchClasses(ctx, ibge.ClassQuery{
				Aggregate:      aggregate,
				Variable:       variable,
				Period:         period,
				Classification: classification,
			})
		default:
			return eris.New("censo income: provide --csv or --aggregate/--variable/--classification")
		}
		if err != nil {
			return err
		}
		log.Info("input loaded", zap.Int("rows", len(rows)))

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		h := harmonize.New(metricstore.NewPostgres(pool))
		report, err := h.HarmonizeGrouped(ctx, rows, harmonize.Options{
			TargetTable:  table,
			MetricColumn: column,
			StagingTable: cfg.Store.StagingTable,
			MinimumWage:  harmonize.MinimumWageForPeriod(period, cfg.Censo.MinimumWages),
		})
		if err != nil {
			return err
		}

		return writeReport(report, reportPath)
	},
}

func init() {
	censoIncomeCmd.Flags().String("csv", "", "grouped-distribution CSV (unit_code,label,value)")
	censoIncomeCmd.Flags().String("aggregate", "", "IBGE aggregate table id")
	censoIncomeCmd.Flags().String("variable", "", "IBGE variable id")
	censoIncomeCmd.Flags().String("classification", "", "IBGE classification expression, e.g. 248[all]")
	censoIncomeCmd.Flags().String("period", "", "period, e.g. 2022 (default from config)")
	censoIncomeCmd.Flags().String("column", "", "metric column (default from config)")
	censoIncomeCmd.Flags().String("table", "", "target table (default from config)")
	censoIncomeCmd.Flags().String("report", "", "write the YAML run report to this file instead of stdout")
	censoCmd.AddCommand(censoIncomeCmd)
}
