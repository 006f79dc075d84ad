package finalize_test

import (
	"math"
	"testing"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/finalize"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillNulls(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	master := testutil.CanonicalTable(t, mem.Allocator)
	defer master.Release()

	tests := []struct {
		name       string
		policy     finalize.FillPolicy
		wantBoxes  []any
		wantFilled map[string]int
		wantAfter  map[string]int
	}{
		{
			name:       "strings only",
			policy:     finalize.FillPolicy{StringSentinel: "SN"},
			wantBoxes:  []any{int64(1234), int64(100), nil},
			wantFilled: map[string]int{"region": 1},
			wantAfter:  map[string]int{"boxes": 1},
		},
		{
			name:       "numeric too",
			policy:     finalize.FillPolicy{StringSentinel: "SN", FillNumeric: true},
			wantBoxes:  []any{int64(1234), int64(100), int64(0)},
			wantFilled: map[string]int{"region": 1, "boxes": 1},
			wantAfter:  map[string]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, report := finalize.FillNulls(master, tt.policy, mem.Allocator)
			defer out.Release()

			assert.Equal(t, master.Len(), out.Len())
			assert.Equal(t, master.Columns(), out.Columns())
			assert.Equal(t, []any{"North America", "Far East", "SN"}, testutil.ColumnValues(t, out, "region"))
			assert.Equal(t, tt.wantBoxes, testutil.ColumnValues(t, out, "boxes"))
			assert.Equal(t, map[string]int{"region": 1, "boxes": 1}, report.Before)
			assert.Equal(t, tt.wantFilled, report.Filled)
			assert.Equal(t, tt.wantAfter, report.After)
			assert.True(t, report.Modified)
			assert.Equal(t, int64(1334), out.ColumnSumInt("boxes"))
		})
	}
}

func TestFillNulls_SourceWeekUntouched(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	in, err := table.New(table.Int64s("source_week", []int64{1, 0}, []bool{true, false}, mem.Allocator))
	require.NoError(t, err)
	defer in.Release()

	out, report := finalize.FillNulls(in, finalize.FillPolicy{StringSentinel: "SN", FillNumeric: true}, mem.Allocator)
	defer out.Release()

	assert.Equal(t, []any{int64(1), nil}, testutil.ColumnValues(t, out, "source_week"))
	assert.False(t, report.Modified)
	assert.Empty(t, report.Before)
}

func TestPresent(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	in, err := table.New(
		table.Strings("season", []string{"2020-2021", "2019-2020", "2019-2020", "2019-2020", "bad"}, nil, mem.Allocator),
		table.Int64s("week", []int64{36, 2, 35, 40, 0}, []bool{true, true, true, true, false}, mem.Allocator),
		table.Strings("exporter", []string{"  acme CORP ", "fruta sa", "x", "y", "z"}, nil, mem.Allocator),
		table.Strings("country", []string{"usa", "USA", "USA", "USA", "USA"}, nil, mem.Allocator),
		table.Int64s("boxes", []int64{10, 0, 0, 4, 1}, []bool{true, true, true, true, false}, mem.Allocator),
		table.Float64s("net_weight_kg", []float64{50, 0, 10, 200, 1}, nil, mem.Allocator),
	)
	require.NoError(t, err)
	defer in.Release()

	out, err := finalize.Present(in, finalize.DefaultPresentOptions(), mem.Allocator)
	require.NoError(t, err)
	defer out.Release()

	testutil.AssertTableHasColumns(t, out, []string{
		"season", "week", "exporter", "country", "boxes", "net_weight_kg",
		"season_start_year", "season_end_year", "absolute_season_week", "unit_weight_kg", "is_data_outlier",
	})

	// sorted by season then absolute week: 35 -> 1, 40 -> 6, 2 -> 21
	assert.Equal(t, []any{"2019-2020", "2019-2020", "2019-2020", "2020-2021", "bad"}, testutil.ColumnValues(t, out, "season"))
	assert.Equal(t, []any{int64(1), int64(6), int64(21), int64(2), nil}, testutil.ColumnValues(t, out, "absolute_season_week"))
	assert.Equal(t, []any{"X", "Y", "Fruta Sa", "Acme Corp", "Z"}, testutil.ColumnValues(t, out, "exporter"))
	assert.Equal(t, []any{"USA", "USA", "USA", "usa", "USA"}, testutil.ColumnValues(t, out, "country"), "country is not re-cased")
	assert.Equal(t, []any{int64(2019), int64(2019), int64(2019), int64(2020), nil}, testutil.ColumnValues(t, out, "season_start_year"))
	assert.Equal(t, []any{int64(2020), int64(2020), int64(2020), int64(2021), nil}, testutil.ColumnValues(t, out, "season_end_year"))

	weights, _ := out.Column("unit_weight_kg")
	w0, _ := weights.Float(0)
	assert.True(t, math.IsInf(w0, 1), "x/0 is +Inf")
	w2, _ := weights.Float(2)
	assert.Equal(t, 0.0, w2, "0/0 is reported as 0")
	assert.True(t, weights.IsNull(4))
	assert.Equal(t, []any{true, true, true, false, false}, testutil.ColumnValues(t, out, "is_data_outlier"))

	assert.Equal(t, in.ColumnSumInt("boxes"), out.ColumnSumInt("boxes"))
}

func TestSubset(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	master := testutil.CanonicalTable(t, mem.Allocator)
	defer master.Release()

	out, metrics, err := finalize.Subset(master, []string{"2019-2020", "2030-2031"}, mem.Allocator)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 2, metrics.RowCount)
	assert.Equal(t, 1, metrics.SeasonCount)
	assert.Equal(t, []string{"2019-2020"}, metrics.SeasonsFound)
	assert.Equal(t, int64(1334), metrics.TotalBoxes)
	assert.InDelta(t, 6178.0, metrics.TotalNetWeightKg, 1e-9)

	_, _, err = finalize.Subset(master, []string{"1999-2000"}, mem.Allocator)
	require.ErrorIs(t, err, errors.ErrEmptyTable)

	_, _, err = finalize.Subset(master, nil, mem.Allocator)
	require.Error(t, err)
}

func TestParseSeasons(t *testing.T) {
	assert.Equal(t, []string{"2024-2025", "2023-2024"}, finalize.ParseSeasons(" 2024-2025, ,2023-2024,"))
	assert.Nil(t, finalize.ParseSeasons(""))
}
