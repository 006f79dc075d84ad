package pipeline_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/fruitflow/internal/audit"
	"github.com/paveg/fruitflow/internal/config"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/pipeline"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/paveg/fruitflow/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.RawDir = filepath.Join(root, "data_raw")
	cfg.Paths.CleanDir = filepath.Join(root, "data_clean")
	cfg.Paths.ArtifactsDir = filepath.Join(root, "scripts")
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.AuditDir = filepath.Join(root, "audit")
	return cfg
}

func writeExports(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	testutil.WriteCSV(t, dir, "datos_semana_01.csv", []string{
		testutil.ExportHeader,
		`2019-2020,35-2019,north america,usa,usa,maritime,kiwifruit,hayward,imp a,acme corp,philadelphia,"1.234","5.678"`,
		`2019-2020,36-2019,north america,usa,usa,maritime,kiwifruit,hayward,imp a,acme corp,philadelphia,"100","2.000"`,
	})
	testutil.WriteCSV(t, dir, "datos_semana_02.csv", []string{
		testutil.ExportHeader,
		`2024-2025,2-2025,far east,china,china,air,cherries,lapins,imp b,fruta sa,shanghai,10,20`,
	}, testutil.WithLatin1(), testutil.WithDelimiter(";"))
}

func newRunner(cfg config.Config, logs *bytes.Buffer) *pipeline.Runner {
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return pipeline.NewRunner(cfg, logger,
		pipeline.WithRunID("run-1"),
		pipeline.WithClock(testutil.FixedClock))
}

func TestRun_ConservesTotals(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.Paths.RawDir)

	var logs bytes.Buffer
	runner := newRunner(cfg, &logs)
	res, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	assert.Equal(t, 2, res.Normalize.Written)
	assert.Equal(t, 3, res.Combine.Rows)

	s := res.Audit.Summary
	assert.Equal(t, 2, s.OK)
	assert.Equal(t, int64(1344), s.BoxesCSV)
	assert.Equal(t, s.BoxesCSV, s.BoxesParquet)
	assert.InDelta(t, 7698.0, s.KilosCSV, 1e-9)
	require.NotNil(t, s.Master)
	assert.Equal(t, int64(1344), s.Master.Boxes)
	assert.Zero(t, s.Master.DeltaRows)

	v := res.Validation
	assert.True(t, v.SchemaOK)
	assert.True(t, v.TotalsMatchCSV)
	assert.True(t, v.RowCountOK)
	assert.Equal(t, validate.SourceAudit, v.ExpectedSource)
	assert.Equal(t, "run-1", v.RunID)

	assert.Equal(t, 1, res.Subset.RowCount)
	assert.Equal(t, []string{"2024-2025"}, res.Subset.SeasonsFound)
	assert.Equal(t, int64(10), res.Subset.TotalBoxes)

	for _, p := range []string{
		cfg.Paths.SchemaPath(),
		filepath.Join(cfg.Paths.CleanDir, "datos_semana_01.parquet"),
		cfg.Paths.MasterPath(),
		cfg.Paths.CleanMasterPath(),
		cfg.Paths.PresentationPath(),
		cfg.Paths.SubsetPath(),
		cfg.Paths.SubsetMetricsPath(),
		cfg.Paths.AuditReportPath(),
		cfg.Paths.ValidationReportPath(),
	} {
		assert.FileExists(t, p)
	}

	presented, err := io.ReadParquetFile(cfg.Paths.PresentationPath(), nil)
	require.NoError(t, err)
	defer presented.Release()
	assert.Equal(t, int64(1344), presented.ColumnSumInt("boxes"))
	assert.InDelta(t, 7698.0, presented.ColumnSumFloat("net_weight_kg"), 1e-9)
	assert.Equal(t, []any{"North America", "North America", "Far East"}, testutil.ColumnValues(t, presented, "region"))

	records, err := audit.ReadReport(cfg.Paths.AuditReportPath())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	summary := runner.Metrics().Summary()
	assert.Equal(t, 9, summary.Stages)
	assert.Empty(t, summary.FailedStages)
	assert.Contains(t, logs.String(), `"run_id":"run-1"`)
	assert.Contains(t, logs.String(), `"stage":"normalize"`)
}

func TestRun_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.Paths.RawDir)

	_, err := newRunner(cfg, &bytes.Buffer{}).Run()
	require.NoError(t, err)
	first, err := os.ReadFile(cfg.Paths.MasterPath())
	require.NoError(t, err)

	_, err = newRunner(cfg, &bytes.Buffer{}).Run()
	require.NoError(t, err)
	second, err := os.ReadFile(cfg.Paths.MasterPath())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_MissingRawDir(t *testing.T) {
	cfg := testConfig(t)

	runner := newRunner(cfg, &bytes.Buffer{})
	_, err := runner.Run()
	require.ErrorIs(t, err, errors.ErrMissingInput)
	assert.Empty(t, runner.Metrics().Stages(), "no stage runs before prerequisites hold")
	assert.NoDirExists(t, cfg.Paths.DataDir)
}

func TestStages_Prerequisites(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.Paths.RawDir)
	runner := newRunner(cfg, &bytes.Buffer{})

	_, err := runner.Normalize()
	require.ErrorIs(t, err, errors.ErrMissingInput, "normalize needs the schema artifact")

	_, err = runner.Validate(nil)
	require.ErrorIs(t, err, errors.ErrMissingInput, "validate needs the master table")

	_, err = runner.Schema(nil)
	require.ErrorIs(t, err, errors.ErrMissingInput, "schema needs an inventory")

	err = runner.Present()
	require.ErrorIs(t, err, errors.ErrMissingInput, "present needs the clean master")
}

func TestSubset_MetricsOnlyOnSuccess(t *testing.T) {
	cfg := testConfig(t)
	writeExports(t, cfg.Paths.RawDir)
	runner := newRunner(cfg, &bytes.Buffer{})
	_, err := runner.Run()
	require.NoError(t, err)

	// a non-empty directory in place of the metrics file makes the write fail
	metricsPath := cfg.Paths.SubsetMetricsPath()
	require.NoError(t, os.Remove(metricsPath))
	require.NoError(t, os.MkdirAll(filepath.Join(metricsPath, "blocked"), 0o755))

	m, err := runner.Subset(nil)
	require.Error(t, err)
	assert.Zero(t, m.RowCount)
	assert.Empty(t, m.SeasonsFound)

	stages := runner.Metrics().Stages()
	last := stages[len(stages)-1]
	assert.Equal(t, pipeline.StageSubset, last.Stage)
	assert.NotEmpty(t, last.Error)
	assert.Zero(t, last.Rows)

	_, err = runner.Subset([]string{"1999-2000"})
	require.ErrorIs(t, err, errors.ErrEmptyTable)
}
