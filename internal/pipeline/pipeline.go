// Package pipeline wires the ETL stages together. Each stage reads the
// artifacts of the previous one from disk, so stages can run alone or in
// sequence through Run.
package pipeline

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/paveg/fruitflow/internal/audit"
	"github.com/paveg/fruitflow/internal/config"
	"github.com/paveg/fruitflow/internal/consolidate"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/finalize"
	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/monitoring"
	"github.com/paveg/fruitflow/internal/normalize"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/validate"
)

// Stage names used in logs and metrics
const (
	StageInventory = "inventory"
	StageSchema    = "schema"
	StageNormalize = "normalize"
	StageCombine   = "combine"
	StageAudit     = "audit"
	StageValidate  = "validate"
	StageClean     = "clean"
	StagePresent   = "present"
	StageSubset    = "subset"
)

// Runner executes stages against one configuration
type Runner struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *monitoring.MetricsCollector
	mem     memory.Allocator
	runID   string
	now     func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithAllocator sets the arrow allocator
func WithAllocator(mem memory.Allocator) Option {
	return func(r *Runner) { r.mem = mem }
}

// WithMetrics sets the metrics collector
func WithMetrics(mc *monitoring.MetricsCollector) Option {
	return func(r *Runner) { r.metrics = mc }
}

// WithClock sets the clock used for report timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a runner. Every log record carries the run id.
func NewRunner(cfg config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		metrics: monitoring.NewMetricsCollector(true),
		mem:     memory.NewGoAllocator(),
		runID:   uuid.NewString(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r.logger = logger.With("run_id", r.runID)
	return r
}

// RunID returns the run identifier
func (r *Runner) RunID() string { return r.runID }

// Metrics returns the collector holding the stage records
func (r *Runner) Metrics() *monitoring.MetricsCollector { return r.metrics }

func (r *Runner) stageLogger(stage string) *slog.Logger {
	return r.logger.With("stage", stage)
}

func (r *Runner) parquetOptions() io.ParquetOptions {
	return io.ParquetOptions{Compression: r.cfg.Parquet.Compression, BatchSize: r.cfg.Parquet.BatchSize}
}

func (r *Runner) record(stage string, fn func(logger *slog.Logger) (monitoring.Counts, error)) error {
	logger := r.stageLogger(stage)
	counts, err := r.metrics.RecordStage(stage, func() (monitoring.Counts, error) {
		return fn(logger)
	})
	if err != nil {
		logger.Error("stage failed", "error", err)
		return fmt.Errorf("%s: %w", stage, err)
	}
	logger.Debug("stage finished",
		"files", counts.FilesProcessed, "failed", counts.FilesFailed, "rows", counts.Rows)
	return nil
}

// CheckPrerequisites fails with ErrMissingInput when a path the stage needs
// does not exist
func CheckPrerequisites(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return errors.NewMissingInputError(p)
			}
			return fmt.Errorf("checking %s: %w", p, err)
		}
	}
	return nil
}

// Inventory scans the raw headers and writes the inventory artifacts
func (r *Runner) Inventory() (*inventory.Inventory, error) {
	var inv *inventory.Inventory
	err := r.record(StageInventory, func(logger *slog.Logger) (monitoring.Counts, error) {
		paths, err := inventory.ScanFiles(r.cfg.Paths.RawDir, r.cfg.Paths.RawExt)
		if err != nil {
			return monitoring.Counts{}, err
		}
		inv = inventory.Collect(paths, logger)
		incons := inv.Inconsistencies()
		for _, key := range slices.Sorted(maps.Keys(incons)) {
			logger.Warn("column spelled several ways", "normalized", key, "spellings", incons[key])
		}
		counts := monitoring.Counts{FilesProcessed: inv.Files(), FilesFailed: len(inv.Skipped)}
		if err := inv.Save(r.cfg.Paths.ArtifactsDir); err != nil {
			return counts, err
		}
		logger.Info("inventory written",
			"files", inv.Files(), "skipped", len(inv.Skipped), "columns", len(inv.Frequency))
		return counts, nil
	})
	return inv, err
}

// Schema infers the mapping from inv, or from the saved inventory when inv
// is nil, and writes schema_master.json
func (r *Runner) Schema(inv *inventory.Inventory) (*schema.Mapping, error) {
	var mapping *schema.Mapping
	err := r.record(StageSchema, func(logger *slog.Logger) (monitoring.Counts, error) {
		if inv == nil {
			loaded, err := inventory.Load(r.cfg.Paths.ArtifactsDir)
			if err != nil {
				return monitoring.Counts{}, err
			}
			inv = loaded
		}
		counts := monitoring.Counts{FilesProcessed: inv.Files()}

		opts := schema.DefaultOptions()
		opts.Threshold = r.cfg.Schema.Threshold
		m := schema.Infer(inv, opts)
		if err := m.CheckRequired(r.cfg.Schema.StrictRequired, logger); err != nil {
			return counts, err
		}
		if err := m.Save(r.cfg.Paths.SchemaPath()); err != nil {
			return counts, err
		}
		mapping = m
		logger.Info("schema mapping written",
			"path", r.cfg.Paths.SchemaPath(), "unmapped", len(m.Unmapped(false)))
		return counts, nil
	})
	return mapping, err
}

func (r *Runner) loadMapping() (*schema.Mapping, error) {
	return schema.Load(r.cfg.Paths.SchemaPath())
}

// Normalize writes one Parquet file per raw file using the saved mapping
func (r *Runner) Normalize() (normalize.DirStats, error) {
	var stats normalize.DirStats
	err := r.record(StageNormalize, func(logger *slog.Logger) (monitoring.Counts, error) {
		if err := CheckPrerequisites(r.cfg.Paths.RawDir, r.cfg.Paths.SchemaPath()); err != nil {
			return monitoring.Counts{}, err
		}
		mapping, err := r.loadMapping()
		if err != nil {
			return monitoring.Counts{}, err
		}
		stats, err = normalize.New(mapping, r.mem, logger).
			NormalizeDir(r.cfg.Paths.RawDir, r.cfg.Paths.RawExt, r.cfg.Paths.CleanDir, r.parquetOptions())
		return monitoring.Counts{
			FilesProcessed: stats.Files,
			FilesFailed:    len(stats.Failed),
			Rows:           int64(stats.Rows),
		}, err
	})
	return stats, err
}

// Combine consolidates the per-file tables into the master table
func (r *Runner) Combine() (consolidate.Stats, error) {
	var stats consolidate.Stats
	err := r.record(StageCombine, func(logger *slog.Logger) (monitoring.Counts, error) {
		c, err := consolidate.New(r.cfg.Consolidate.SourceWeekPattern, r.parquetOptions(), r.mem, logger)
		if err != nil {
			return monitoring.Counts{}, err
		}
		stats, err = c.Run(r.cfg.Paths.CleanDir, r.cfg.Paths.MasterPath())
		return monitoring.Counts{
			FilesProcessed: stats.Files,
			FilesFailed:    len(stats.Skipped),
			Rows:           int64(stats.Rows),
		}, err
	})
	return stats, err
}

// AuditResult holds the per-file records and their summary
type AuditResult struct {
	Records []audit.Record
	Summary audit.Summary
}

// Audit recomputes raw totals, compares them with the per-file tables and
// writes full_audit.csv
func (r *Runner) Audit() (AuditResult, error) {
	var res AuditResult
	err := r.record(StageAudit, func(logger *slog.Logger) (monitoring.Counts, error) {
		if err := CheckPrerequisites(r.cfg.Paths.RawDir, r.cfg.Paths.CleanDir); err != nil {
			return monitoring.Counts{}, err
		}
		mapping, err := r.loadMapping()
		if err != nil {
			return monitoring.Counts{}, err
		}
		records, err := audit.New(mapping, logger).
			AuditDir(r.cfg.Paths.RawDir, r.cfg.Paths.RawExt, r.cfg.Paths.CleanDir)
		if err != nil {
			return monitoring.Counts{}, err
		}
		if err := audit.WriteReport(r.cfg.Paths.AuditReportPath(), records); err != nil {
			return monitoring.Counts{FilesProcessed: len(records)}, err
		}

		res.Records = records
		res.Summary = audit.Summarize(records)
		if master, err := io.ReadParquetFile(r.cfg.Paths.MasterPath(), r.mem); err == nil {
			res.Summary.WithMaster(master)
			master.Release()
		}

		s := res.Summary
		logger.Info("audit finished",
			"files", s.Files, "ok", s.OK, "warning", s.Warning,
			"delta_boxes", s.DeltaBoxes, "delta_kilos", s.DeltaKilos)
		if s.Warning > 0 {
			logger.Warn("raw and normalized totals differ",
				"files", s.Warning, "pct_boxes", s.PctMismatchBoxes, "pct_kilos", s.PctMismatchKilos)
		}
		return monitoring.Counts{FilesProcessed: s.Files, FilesFailed: s.Warning, Rows: s.RowsCSV}, nil
	})
	return res, err
}

func (r *Runner) expected(records []audit.Record) validate.Expected {
	if len(records) > 0 {
		return validate.ExpectedFromAudit(records)
	}
	v := r.cfg.Validation
	return validate.ExpectedFromConfig(v.ExpectedRows, v.ExpectedBoxes, v.ExpectedKilos)
}

// Validate checks the master table and writes final_validation.json. Audit
// records passed in are the reference totals; when nil the saved audit
// report is used if there is one.
func (r *Runner) Validate(records []audit.Record) (validate.Report, error) {
	var report validate.Report
	err := r.record(StageValidate, func(logger *slog.Logger) (monitoring.Counts, error) {
		master, err := io.ReadParquetFile(r.cfg.Paths.MasterPath(), r.mem)
		if err != nil {
			return monitoring.Counts{}, err
		}
		defer master.Release()

		if records == nil {
			if saved, err := audit.ReadReport(r.cfg.Paths.AuditReportPath()); err == nil {
				records = saved
			}
		}

		report = validate.Validate(master, r.expected(records), records, validate.Options{
			RunID:          r.runID,
			MinYear:        r.cfg.Validation.MinYear,
			KilosTolerance: r.cfg.Validation.KilosTolerance,
			Now:            r.now,
		})
		for _, w := range report.Warnings {
			logger.Warn(w)
		}
		logger.Info("validation finished",
			"rows", report.TotalRows, "schema_ok", report.SchemaOK,
			"totals_match_csv", report.TotalsMatchCSV, "expected_source", report.ExpectedSource)
		return monitoring.Counts{Rows: report.TotalRows}, validate.WriteReport(r.cfg.Paths.ValidationReportPath(), report)
	})
	return report, err
}

func (r *Runner) transform(in, out string, fn func(*table.Table) (*table.Table, error)) (int, error) {
	src, err := io.ReadParquetFile(in, r.mem)
	if err != nil {
		return 0, err
	}
	defer src.Release()

	dst, err := fn(src)
	if err != nil {
		return 0, err
	}
	defer dst.Release()

	if err := io.WriteParquetFile(out, dst, r.parquetOptions()); err != nil {
		return 0, err
	}
	return dst.Len(), nil
}

// Clean fills nulls in the master table and writes the clean master
func (r *Runner) Clean() (finalize.FillReport, error) {
	var report finalize.FillReport
	err := r.record(StageClean, func(logger *slog.Logger) (monitoring.Counts, error) {
		policy := finalize.FillPolicy{
			StringSentinel: r.cfg.Cleanse.StringSentinel,
			FillNumeric:    r.cfg.Cleanse.FillNumeric,
		}
		var rep finalize.FillReport
		rows, err := r.transform(r.cfg.Paths.MasterPath(), r.cfg.Paths.CleanMasterPath(),
			func(t *table.Table) (*table.Table, error) {
				var out *table.Table
				out, rep = finalize.FillNulls(t, policy, r.mem)
				return out, nil
			})
		if err != nil {
			return monitoring.Counts{}, err
		}
		report = rep
		for col, n := range report.After {
			logger.Warn("nulls remain after filling", "column", col, "nulls", n)
		}
		logger.Info("clean master written", "path", r.cfg.Paths.CleanMasterPath(), "rows", rows, "modified", report.Modified)
		return monitoring.Counts{Rows: int64(rows)}, nil
	})
	return report, err
}

// Present adds season columns and outlier flags to the clean master
func (r *Runner) Present() error {
	return r.record(StagePresent, func(logger *slog.Logger) (monitoring.Counts, error) {
		opts := finalize.PresentOptions{
			PivotWeek:     r.cfg.Season.PivotWeek,
			MinUnitWeight: r.cfg.Season.MinUnitWeight,
			MaxUnitWeight: r.cfg.Season.MaxUnitWeight,
		}
		rows, err := r.transform(r.cfg.Paths.CleanMasterPath(), r.cfg.Paths.PresentationPath(),
			func(t *table.Table) (*table.Table, error) {
				return finalize.Present(t, opts, r.mem)
			})
		if err != nil {
			return monitoring.Counts{}, err
		}
		logger.Info("presentation table written", "path", r.cfg.Paths.PresentationPath(), "rows", rows)
		return monitoring.Counts{Rows: int64(rows)}, nil
	})
}

// Subset keeps the configured seasons of the presentation table and writes
// the subset with its metrics
func (r *Runner) Subset(seasons []string) (finalize.SubsetMetrics, error) {
	if len(seasons) == 0 {
		seasons = r.cfg.Season.MVPSeasons
	}
	var metrics finalize.SubsetMetrics
	err := r.record(StageSubset, func(logger *slog.Logger) (monitoring.Counts, error) {
		var m finalize.SubsetMetrics
		rows, err := r.transform(r.cfg.Paths.PresentationPath(), r.cfg.Paths.SubsetPath(),
			func(t *table.Table) (*table.Table, error) {
				out, sm, err := finalize.Subset(t, seasons, r.mem)
				m = sm
				return out, err
			})
		if err != nil {
			return monitoring.Counts{}, err
		}
		m.InputPath = r.cfg.Paths.PresentationPath()
		m.OutputPath = r.cfg.Paths.SubsetPath()
		if err := io.WriteJSON(r.cfg.Paths.SubsetMetricsPath(), m); err != nil {
			return monitoring.Counts{}, fmt.Errorf("writing subset metrics: %w", err)
		}
		metrics = m
		logger.Info("subset written", "seasons", metrics.SeasonsFound, "rows", rows)
		return monitoring.Counts{Rows: int64(rows)}, nil
	})
	return metrics, err
}

// Result collects what a full run produced
type Result struct {
	RunID       string
	Normalize   normalize.DirStats
	Combine     consolidate.Stats
	Audit       AuditResult
	Validation  validate.Report
	Fill        finalize.FillReport
	Subset      finalize.SubsetMetrics
	StageErrors []error
}

// Run executes every stage in order. A missing raw directory is fatal before
// any file is touched. After the master table exists, a failing stage is
// recorded and the remaining independent stages still run.
func (r *Runner) Run() (Result, error) {
	res := Result{RunID: r.runID}
	if err := CheckPrerequisites(r.cfg.Paths.RawDir); err != nil {
		r.logger.Error("missing prerequisite", "error", err)
		return res, err
	}
	r.logger.Info("run started", "raw_dir", r.cfg.Paths.RawDir, "data_dir", r.cfg.Paths.DataDir)

	inv, err := r.Inventory()
	if err != nil {
		return res, err
	}
	if _, err := r.Schema(inv); err != nil {
		return res, err
	}
	if res.Normalize, err = r.Normalize(); err != nil {
		return res, err
	}
	if res.Combine, err = r.Combine(); err != nil {
		return res, err
	}

	keep := func(err error) bool {
		if err != nil {
			res.StageErrors = append(res.StageErrors, err)
			return false
		}
		return true
	}

	res.Audit, err = r.Audit()
	keep(err)
	res.Validation, err = r.Validate(res.Audit.Records)
	keep(err)
	res.Fill, err = r.Clean()
	if keep(err) && keep(r.Present()) {
		res.Subset, err = r.Subset(nil)
		if stderrors.Is(err, errors.ErrEmptyTable) {
			r.logger.Warn("no rows in the configured seasons", "seasons", r.cfg.Season.MVPSeasons)
		} else {
			keep(err)
		}
	}

	summary := r.metrics.Summary()
	r.logger.Info("run finished",
		"stages", summary.Stages, "failed_stages", summary.FailedStages,
		"files_failed", summary.FilesFailed, "duration", summary.TotalDuration)
	return res, stderrors.Join(res.StageErrors...)
}
