package harmonize

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Row is one raw observation in grouped-distribution form: one income class of
// one geographic unit with its frequency.
type Row struct {
	UnitCode string
	Label    string
	Value    float64
}

// ValueRow is one raw observation in single-value form: an already-aggregated
// metric for one geographic unit.
type ValueRow struct {
	UnitCode string
	Value    float64
}

// StagedRow is one audit row written to the staging table regardless of
// whether the target update is applied.
type StagedRow struct {
	UnitCode string
	Label    string
	Value    float64
}

// Mapping is one (join key, metric value) pair of the final harmonized table.
type Mapping struct {
	UnitCode string
	Value    float64
}

// ApplyRequest carries the harmonized batch to the store collaborator.
// An empty JoinColumn means the granularity is unsupported: the store writes
// the staging table but applies no update.
type ApplyRequest struct {
	TargetTable  string
	MetricColumn string
	StagingTable string
	JoinColumn   string
	Staged       []StagedRow
	Mappings     []Mapping
}

// Store applies a harmonized batch to the sector table. Implementations must
// be all-or-nothing: a failed apply leaves no partial update visible.
type Store interface {
	Apply(ctx context.Context, req ApplyRequest) (rowsUpdated int64, err error)
}

// Options configures one harmonization run.
type Options struct {
	TargetTable  string
	MetricColumn string
	StagingTable string
	MinimumWage  float64 // grouped mode only
}

// Report is the structured outcome of one run. Partial-failure outcomes
// (dropped labels, undefined medians, skipped update) are carried here rather
// than only logged.
type Report struct {
	RunID            string  `yaml:"run_id" json:"run_id"`
	Mode             string  `yaml:"mode" json:"mode"`
	RowsSeen         int     `yaml:"rows_seen" json:"rows_seen"`
	RowsDropped      int     `yaml:"rows_dropped" json:"rows_dropped"`
	Units            int     `yaml:"units" json:"units"`
	UndefinedMedians int     `yaml:"undefined_medians" json:"undefined_medians"`
	Granularity      string  `yaml:"granularity" json:"granularity"`
	JoinColumn       string  `yaml:"join_column,omitempty" json:"join_column,omitempty"`
	RowsUpdated      int64   `yaml:"rows_updated" json:"rows_updated"`
	UpdateApplied    bool    `yaml:"update_applied" json:"update_applied"`
	MinimumWage      float64 `yaml:"minimum_wage,omitempty" json:"minimum_wage,omitempty"`
}

// Harmonizer orchestrates the parse → estimate → resolve → apply pipeline.
type Harmonizer struct {
	store Store
}

// New creates a Harmonizer backed by the given store.
func New(store Store) *Harmonizer {
	return &Harmonizer{store: store}
}

// HarmonizeGrouped reduces grouped-frequency rows to one synthetic median per
// unit and applies the result. Unparseable labels are dropped per class and
// units whose distribution has no usable mass are dropped per unit; both are
// counted in the report, never fatal. An empty input is fatal.
func (h *Harmonizer) HarmonizeGrouped(ctx context.Context, rows []Row, opts Options) (*Report, error) {
	if len(rows) == 0 {
		return nil, eris.New("harmonize: no input rows")
	}

	log := zap.L().With(zap.String("component", "harmonize"))
	report := &Report{
		RunID:       uuid.NewString(),
		Mode:        "grouped",
		RowsSeen:    len(rows),
		MinimumWage: opts.MinimumWage,
	}

	// Group by unit code, preserving first-seen order so staging output is
	// stable for a given input.
	order := make([]string, 0)
	groups := make(map[string][]Row)
	for _, r := range rows {
		if _, ok := groups[r.UnitCode]; !ok {
			order = append(order, r.UnitCode)
		}
		groups[r.UnitCode] = append(groups[r.UnitCode], r)
	}

	var staged []StagedRow
	var mappings []Mapping
	for _, unit := range order {
		classes := make([]WeightedClass, 0, len(groups[unit]))
		for _, r := range groups[unit] {
			b := ParseLabel(r.Label, opts.MinimumWage)
			if !b.Parseable() {
				report.RowsDropped++
				log.Debug("dropping unparseable class label",
					zap.String("unit", unit),
					zap.String("label", r.Label),
				)
				continue
			}
			classes = append(classes, WeightedClass{Bounds: b, Freq: r.Value})
			staged = append(staged, StagedRow{UnitCode: unit, Label: r.Label, Value: r.Value})
		}

		med := Median(classes)
		if math.IsNaN(med) {
			report.UndefinedMedians++
			continue
		}
		mappings = append(mappings, Mapping{UnitCode: unit, Value: med})
	}
	report.Units = len(mappings)

	return h.apply(ctx, report, staged, mappings, opts)
}

// HarmonizeValues applies already-aggregated per-unit values. No parsing or
// estimation happens; non-finite values are dropped and counted.
func (h *Harmonizer) HarmonizeValues(ctx context.Context, rows []ValueRow, opts Options) (*Report, error) {
	if len(rows) == 0 {
		return nil, eris.New("harmonize: no input rows")
	}

	report := &Report{
		RunID:    uuid.NewString(),
		Mode:     "single",
		RowsSeen: len(rows),
	}

	var staged []StagedRow
	var mappings []Mapping
	for _, r := range rows {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			report.RowsDropped++
			continue
		}
		staged = append(staged, StagedRow{UnitCode: r.UnitCode, Value: r.Value})
		mappings = append(mappings, Mapping{UnitCode: r.UnitCode, Value: r.Value})
	}
	report.Units = len(mappings)

	return h.apply(ctx, report, staged, mappings, opts)
}

func (h *Harmonizer) apply(ctx context.Context, report *Report, staged []StagedRow, mappings []Mapping, opts Options) (*Report, error) {
	log := zap.L().With(zap.String("component", "harmonize"))

	codes := make([]string, len(mappings))
	for i, m := range mappings {
		codes[i] = m.UnitCode
	}
	level := ResolveGranularity(codes)
	report.Granularity = level.String()
	report.JoinColumn = level.JoinColumn()

	if level == LevelUnsupported {
		log.Warn("unsupported granularity, staging only",
			zap.String("run_id", report.RunID),
			zap.Int("units", len(mappings)),
		)
	}

	rowsUpdated, err := h.store.Apply(ctx, ApplyRequest{
		TargetTable:  opts.TargetTable,
		MetricColumn: opts.MetricColumn,
		StagingTable: opts.StagingTable,
		JoinColumn:   level.JoinColumn(),
		Staged:       staged,
		Mappings:     mappings,
	})
	if err != nil {
		return nil, eris.Wrap(err, "harmonize: apply batch")
	}

	report.RowsUpdated = rowsUpdated
	report.UpdateApplied = level != LevelUnsupported

	log.Info("harmonization run complete",
		zap.String("run_id", report.RunID),
		zap.String("mode", report.Mode),
		zap.Int("rows_seen", report.RowsSeen),
		zap.Int("rows_dropped", report.RowsDropped),
		zap.Int("units", report.Units),
		zap.Int("undefined_medians", report.UndefinedMedians),
		zap.String("granularity", report.Granularity),
		zap.Int64("rows_updated", report.RowsUpdated),
		zap.Bool("update_applied", report.UpdateApplied),
	)

	return report, nil
}
