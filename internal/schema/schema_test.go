package schema_test

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, files map[string]string) *inventory.Inventory {
	t.Helper()
	dir := t.TempDir()
	for name, header := range files {
		testutil.WriteCSV(t, dir, name, []string{header})
	}
	paths, err := inventory.ScanFiles(dir, ".csv")
	require.NoError(t, err)
	return inventory.Collect(paths, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestInfer_ExportHeader(t *testing.T) {
	inv := collect(t, map[string]string{
		"datos_semana_01.csv": testutil.ExportHeader,
		"datos_semana_02.csv": testutil.ExportHeader,
	})
	m := schema.Infer(inv, schema.DefaultOptions())

	expected := map[string]string{
		schema.Season:          "Season",
		schema.Week:            "ETD Week",
		schema.Year:            "ETD Week",
		schema.Region:          "Region",
		schema.Market:          "Market",
		schema.Country:         "Country",
		schema.Transport:       "Transport",
		schema.Product:         "Specie",
		schema.Variety:         "Variety",
		schema.Importer:        "Importer",
		schema.Exporter:        "Exporter",
		schema.PortDestination: "Arrival port",
		schema.Boxes:           "Boxes",
		schema.NetWeightKg:     "Kilograms",
	}
	for field, source := range expected {
		f, ok := m.Field(field)
		require.True(t, ok, field)
		assert.Equal(t, source, f.Source(), field)
		assert.Equal(t, 2, f.Frequency, field)
	}

	assert.Empty(t, m.Unmapped(false))
	assert.Equal(t, "int64", m.Schema[schema.Boxes].Type)
	assert.Equal(t, "float64", m.Schema[schema.NetWeightKg].Type)
	assert.Equal(t, "string", m.Schema[schema.Importer].Type)

	c, part, ok := m.Composite(schema.Year)
	require.True(t, ok)
	assert.Equal(t, "ETD Week", c.SourceColumn)
	assert.Equal(t, "-", c.Separator)
	assert.Equal(t, 1, part)

	_, part, ok = m.Composite(schema.Week)
	require.True(t, ok)
	assert.Equal(t, 0, part)

	assert.Equal(t, "arrival_port", m.ColumnMapping["Arrival port"])
	assert.Equal(t, 2, m.Metadata.TotalFilesAnalyzed)
	assert.Equal(t, schema.RulesVersion, m.Metadata.RulesVersion)
}

func TestInfer_PrefersMostFrequentSpelling(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d"} {
		files[n+".csv"] = "Season,Boxes"
	}
	files["e.csv"] = "Season,boxes "
	inv := collect(t, files)

	m := schema.Infer(inv, schema.DefaultOptions())
	assert.Equal(t, "Boxes", m.Schema[schema.Boxes].Source())
	assert.Equal(t, 4, m.Schema[schema.Boxes].Frequency)
	assert.Equal(t, "boxes", m.ColumnMapping["Boxes"])
	assert.Equal(t, "boxes", m.ColumnMapping["boxes"])
}

func TestInfer_Threshold(t *testing.T) {
	inv := collect(t, map[string]string{
		"a.csv": "Season,Boxes,Region",
		"b.csv": "Season,Boxes",
		"c.csv": "Season,Boxes",
	})
	m := schema.Infer(inv, schema.DefaultOptions())

	region := m.Schema[schema.Region]
	assert.False(t, region.Mapped(), "1 of 3 files is below the 50% threshold")
	assert.Equal(t, 0, region.Frequency)
	assert.Nil(t, region.SourceColumn)
	assert.Equal(t, "string", region.Type)

	assert.Equal(t, []string{schema.Week, schema.Year, schema.Country, schema.Product, schema.Exporter, schema.NetWeightKg},
		m.Unmapped(true))
}

func TestCheckRequired(t *testing.T) {
	inv := collect(t, map[string]string{"a.csv": "Season,Boxes"})
	m := schema.Infer(inv, schema.DefaultOptions())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	require.NoError(t, m.CheckRequired(false, logger))
	assert.Contains(t, logs.String(), "field=week")

	err := m.CheckRequired(true, logger)
	require.ErrorIs(t, err, errors.ErrUnmappedRequired)
}

func TestInferType(t *testing.T) {
	tests := map[string]table.DataType{
		"ETD Week":    table.Int64,
		"Año":         table.String,
		"anio":        table.Int64,
		"Boxes":       table.Int64,
		"Kilograms":   table.Float64,
		"Valor USD":   table.Float64,
		"HS Code":     table.String,
		"Exporter":    table.String,
		"Peso Neto":   table.Float64,
		"Fecha envio": table.String,
	}
	for name, want := range tests {
		assert.Equal(t, want, schema.InferType(schema.TypeRules, name), name)
	}
}

func TestSaveLoad(t *testing.T) {
	inv := collect(t, map[string]string{"datos_semana_01.csv": testutil.ExportHeader})
	m := schema.Infer(inv, schema.DefaultOptions())

	path := filepath.Join(t.TempDir(), schema.FileName)
	require.NoError(t, m.Save(path))

	loaded, err := schema.Load(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
	assert.Equal(t, table.Float64, loaded.Type(schema.NetWeightKg))

	_, err = schema.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, errors.ErrMissingInput)
}

func TestCanonicalNames(t *testing.T) {
	assert.Equal(t, []string{
		"season", "week", "year", "region", "market", "country", "transport", "product",
		"variety", "importer", "exporter", "port_destination", "boxes", "net_weight_kg",
	}, schema.CanonicalNames())
	assert.Equal(t, "source_week", schema.MasterNames()[14])
}
