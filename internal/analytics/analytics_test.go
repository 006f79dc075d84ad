package analytics_test

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/analytics"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Get(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	loads := 0
	cache := analytics.NewCache("master.parquet",
		func(_ string, alloc memory.Allocator) (*table.Table, error) {
			loads++
			return testutil.CanonicalTable(t, alloc), nil
		}, mem.Allocator)
	defer cache.Release()

	assert.True(t, cache.LoadedAt().IsZero())

	first, err := cache.Get(false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"season", "week", "year", "country", "product", "exporter", "port_destination", "boxes", "net_weight_kg",
	}, first.Columns())
	assert.False(t, cache.LoadedAt().IsZero())

	second, err := cache.Get(false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, loads)

	_, err = cache.Get(true)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestCache_Parquet(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	master := testutil.CanonicalTable(t, mem.Allocator)
	path := filepath.Join(t.TempDir(), "master.parquet")
	require.NoError(t, io.WriteParquetFile(path, master, io.DefaultParquetOptions()))
	master.Release()
	mem.Release()

	cache := analytics.NewCache(path, nil, nil)
	defer cache.Release()

	tbl, err := cache.Get(false)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, int64(1334), tbl.ColumnSumInt("boxes"))
	assert.WithinDuration(t, time.Now(), cache.LoadedAt(), time.Minute)
}

func TestCache_MissingColumn(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	cache := analytics.NewCache("master.parquet",
		func(_ string, alloc memory.Allocator) (*table.Table, error) {
			full := testutil.CanonicalTable(t, alloc)
			defer full.Release()
			kept := slices.DeleteFunc(full.Columns(), func(name string) bool { return name == "port_destination" })
			return full.Select(kept...)
		}, mem.Allocator)
	defer cache.Release()

	_, err := cache.Get(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port_destination")
	assert.True(t, cache.LoadedAt().IsZero())
}

func TestCache_ReadError(t *testing.T) {
	cache := analytics.NewCache(filepath.Join(t.TempDir(), "absent.parquet"), nil, nil)
	_, err := cache.Get(false)
	require.Error(t, err)
}

func TestQueries(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	master := testutil.CanonicalTable(t, mem.Allocator)
	defer master.Release()

	t.Run("distinct", func(t *testing.T) {
		years, err := analytics.Distinct(master, "year")
		require.NoError(t, err)
		assert.Equal(t, []any{int64(2019), int64(2020)}, years)

		countries, err := analytics.Distinct(master, "country")
		require.NoError(t, err)
		assert.Equal(t, []any{"CHINA", "USA"}, countries)

		boxes, err := analytics.Distinct(master, "boxes")
		require.NoError(t, err)
		assert.Equal(t, []any{int64(100), int64(1234)}, boxes, "nulls are left out")

		_, err = analytics.Distinct(master, "nope")
		require.Error(t, err)
	})

	t.Run("filter eq", func(t *testing.T) {
		out, err := analytics.FilterEq(master, mem.Allocator, analytics.Eq("country", "USA"), analytics.Eq("year", 2020))
		require.NoError(t, err)
		defer out.Release()
		assert.Equal(t, 1, out.Len())
		assert.Equal(t, []any{"2020-2021"}, testutil.ColumnValues(t, out, "season"))
	})

	t.Run("filter range", func(t *testing.T) {
		out, err := analytics.FilterRange(master, "year", 2020, 2021, mem.Allocator)
		require.NoError(t, err)
		defer out.Release()
		assert.Equal(t, 2, out.Len())

		heavy, err := analytics.FilterRange(master, "net_weight_kg", 100.0, 1000.0, mem.Allocator)
		require.NoError(t, err)
		defer heavy.Release()
		assert.Equal(t, []any{500.0}, testutil.ColumnValues(t, heavy, "net_weight_kg"))
	})

	t.Run("kpis", func(t *testing.T) {
		k, err := analytics.ComputeKPIs(master)
		require.NoError(t, err)
		assert.Equal(t, analytics.KPIs{
			Totals:    analytics.Totals{Boxes: 1334, Kilos: 6198, Rows: 3},
			Exporters: 2,
			Products:  2,
			Countries: 2,
		}, k)
	})

	t.Run("totals by", func(t *testing.T) {
		usa, err := analytics.TotalsBy(master, "country", "USA")
		require.NoError(t, err)
		assert.Equal(t, analytics.Totals{Boxes: 1234, Kilos: 5698, Rows: 2}, usa)

		none, err := analytics.TotalsBy(master, "country", "PERU")
		require.NoError(t, err)
		assert.Zero(t, none)
	})

	t.Run("top n", func(t *testing.T) {
		tests := []struct {
			name    string
			n       int
			filters []analytics.Filter
			want    []analytics.Group
		}{
			{
				name: "all years",
				n:    10,
				want: []analytics.Group{
					{Key: "Acme Corp", Totals: analytics.Totals{Boxes: 1234, Kilos: 5698, Rows: 2}},
					{Key: "Fruta Sa", Totals: analytics.Totals{Boxes: 100, Kilos: 500, Rows: 1}},
				},
			},
			{
				name: "head",
				n:    1,
				want: []analytics.Group{
					{Key: "Acme Corp", Totals: analytics.Totals{Boxes: 1234, Kilos: 5698, Rows: 2}},
				},
			},
			{
				name:    "single year",
				n:       10,
				filters: []analytics.Filter{analytics.Eq("year", 2020)},
				want: []analytics.Group{
					{Key: "Fruta Sa", Totals: analytics.Totals{Boxes: 100, Kilos: 500, Rows: 1}},
					{Key: "Acme Corp", Totals: analytics.Totals{Boxes: 0, Kilos: 20, Rows: 1}},
				},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := analytics.TopN(master, "exporter", tt.n, tt.filters...)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("time series", func(t *testing.T) {
		got, err := analytics.TimeSeries(master)
		require.NoError(t, err)
		assert.Equal(t, []analytics.Group{
			{Key: int64(2019), Totals: analytics.Totals{Boxes: 1234, Kilos: 5678, Rows: 1}},
			{Key: int64(2020), Totals: analytics.Totals{Boxes: 100, Kilos: 520, Rows: 2}},
		}, got)

		cherries, err := analytics.TimeSeries(master, analytics.Eq("product", "Cherries"))
		require.NoError(t, err)
		require.Len(t, cherries, 1)
		assert.Equal(t, int64(2020), cherries[0].Key)
	})

	t.Run("unknown filter column", func(t *testing.T) {
		_, err := analytics.TopN(master, "exporter", 5, analytics.Eq("nope", 1))
		var pe *errors.PipelineError
		require.ErrorAs(t, err, &pe)
	})
}

func TestProductVarieties(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	tbl, err := table.New(
		table.Strings("product", []string{"Cherries", "Kiwifruit", "Cherries", "", "Cherries"}, []bool{true, true, true, false, true}, mem.Allocator),
		table.Strings("variety", []string{"Lapins", "Hayward", "Bing", "X", ""}, []bool{true, true, true, true, false}, mem.Allocator),
	)
	require.NoError(t, err)
	defer tbl.Release()

	got, err := analytics.ProductVarieties(tbl)
	require.NoError(t, err)
	assert.Equal(t, []analytics.ProductVariety{
		{Product: "Cherries", Records: 3, Varieties: []analytics.VarietyCount{
			{Variety: "Bing", Records: 1}, {Variety: "Lapins", Records: 1}, {Variety: "Unknown", Records: 1},
		}},
		{Product: "Kiwifruit", Records: 1, Varieties: []analytics.VarietyCount{{Variety: "Hayward", Records: 1}}},
		{Product: "Unknown", Records: 1, Varieties: []analytics.VarietyCount{{Variety: "X", Records: 1}}},
	}, got)
}
