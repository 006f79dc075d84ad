package inventory_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"ETD Week":        "etd_week",
		"Boxes ":          "boxes",
		"boxes":           "boxes",
		"Arrival port":    "arrival_port",
		"Net-Weight (kg)": "net_weight_kg",
		"  __Región__ ":   "regin",
		"A  -  B":         "a_b",
	}
	for in, want := range tests {
		assert.Equal(t, want, inventory.NormalizeName(in), in)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	for i := range 4 {
		testutil.WriteCSV(t, dir, "w"+string(rune('a'+i))+".csv", []string{"Season,Boxes,Kilograms", "2019-2020,1,1"})
	}
	testutil.WriteCSV(t, dir, "z.csv", []string{"Season,boxes ,Kilograms", "2019-2020,1,1"})
	testutil.WriteCSV(t, dir, "latin.csv", []string{"País;Boxes", "Chile;1"}, testutil.WithLatin1())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.csv"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	paths, err := inventory.ScanFiles(dir, ".csv")
	require.NoError(t, err)
	assert.Len(t, paths, 7)

	inv := inventory.Collect(paths, discard())
	assert.Equal(t, 6, inv.Files())
	require.Len(t, inv.Skipped, 1)
	assert.Equal(t, "empty.csv", inv.Skipped[0].File)

	assert.Equal(t, 5, inv.Frequency["Boxes"])
	assert.Equal(t, 1, inv.Frequency["boxes"])
	assert.Equal(t, 1, inv.Frequency["País"])
	assert.Equal(t, []string{"Boxes", "boxes"}, inv.Variations["boxes"])

	incons := inv.Inconsistencies()
	assert.Contains(t, incons, "boxes")
	assert.NotContains(t, incons, "season")

	top := inv.FrequencyList()[0]
	assert.Equal(t, inventory.NameCount{Name: "Boxes", Count: 5}, top)

	summary := inv.Summary(1)
	require.Len(t, summary, 1)
	assert.InDelta(t, 100*5.0/6.0, summary[0].Percent, 0.001)
}

func TestReadHeaders_KeepsOrderAndTrims(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteCSV(t, dir, "a.csv", []string{"\ufeffSeason; ETD Week ;\"Boxes\"", "x;y;z"}, testutil.WithCRLF())

	headers, err := inventory.ReadHeaders(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Season", "ETD Week", "Boxes"}, headers)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, "a.csv", []string{"Season,Boxes"})
	testutil.WriteCSV(t, dir, "b.csv", []string{"Season,Kilograms"})
	paths, err := inventory.ScanFiles(dir, ".csv")
	require.NoError(t, err)
	inv := inventory.Collect(paths, discard())

	out := filepath.Join(dir, "artifacts")
	require.NoError(t, inv.Save(out))

	freq, err := os.ReadFile(filepath.Join(out, inventory.FrequencyFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Season": 2, "Boxes": 1, "Kilograms": 1}`, string(freq))
	assert.Less(t, strings.Index(string(freq), "Season"), strings.Index(string(freq), "Boxes"), "ordered by count")

	loaded, err := inventory.Load(out)
	require.NoError(t, err)
	assert.Equal(t, inv.Frequency, loaded.Frequency)
	assert.Equal(t, inv.Entries, loaded.Entries)

	_, err = inventory.Load(filepath.Join(dir, "nowhere"))
	require.ErrorIs(t, err, errors.ErrMissingInput)
}

func TestScanFiles_MissingDir(t *testing.T) {
	_, err := inventory.ScanFiles(filepath.Join(t.TempDir(), "absent"), ".csv")
	require.ErrorIs(t, err, errors.ErrMissingInput)
}
