package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/geosampa/censo-cli/internal/harmonize"
)

var censoCmd = &cobra.Command{
	Use:   "censo",
	Short: "Census income harmonization",
	Long:  "Harmonizes census income data (grouped distributions or single-value series) into metric columns of the sector table.",
}

func init() {
	rootCmd.AddCommand(censoCmd)
}

// readGroupedCSV reads grouped-distribution rows from a CSV with a header
// containing unit_code, label and value columns.
func readGroupedCSV(path string) ([]harmonize.Row, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	codeIdx, err := columnIndex(header, "unit_code", "codigo", "cod")
	if err != nil {
		return nil, err
	}
	labelIdx, err := columnIndex(header, "label", "classe", "faixa")
	if err != nil {
		return nil, err
	}
	valueIdx, err := columnIndex(header, "value", "valor", "freq")
	if err != nil {
		return nil, err
	}

	rows := make([]harmonize.Row, 0, len(records))
	for _, rec := range records {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueIdx]), 64)
		if err != nil {
			continue
		}
		rows = append(rows, harmonize.Row{
			UnitCode: strings.TrimSpace(rec[codeIdx]),
			Label:    rec[labelIdx],
			Value:    v,
		})
	}
	return rows, nil
}

// readValueCSV reads single-value rows from a CSV with unit_code and value
// columns.
func readValueCSV(path string) ([]harmonize.ValueRow, error) {
	records, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	codeIdx, err := columnIndex(header, "unit_code", "codigo", "cod")
	if err != nil {
		return nil, err
	}
	valueIdx, err := columnIndex(header, "value", "valor")
	if err != nil {
		return nil, err
	}

	rows := make([]harmonize.ValueRow, 0, len(records))
	for _, rec := range records {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueIdx]), 64)
		if err != nil {
			continue
		}
		rows = append(rows, harmonize.ValueRow{
			UnitCode: strings.TrimSpace(rec[codeIdx]),
			Value:    v,
		})
	}
	return rows, nil
}

func readCSV(path string) (records [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "censo: open csv %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err = r.Read()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "censo: read csv header %s", path)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrapf(err, "censo: read csv %s", path)
		}
		records = append(records, rec)
	}
	return records, header, nil
}

func columnIndex(header []string, names ...string) (int, error) {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i, nil
			}
		}
	}
	return 0, eris.Errorf("censo: csv is missing a %q column", names[0])
}

// writeReport prints the run report as YAML, to stdout or to a file.
func writeReport(report *harmonize.Report, path string) error {
	out, err := yaml.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "censo: marshal report")
	}
	if path == "" || path == "-" {
		fmt.Print(string(out))
		return nil
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrapf(err, "censo: write report %s", path)
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}
