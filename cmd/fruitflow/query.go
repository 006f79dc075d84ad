package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/analytics"
	fio "github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/version"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	input    string
	jsonOut  bool
	year     int64
	country  string
	product  string
	exporter string
}

func (q *queryOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&q.input, "input", "", "Master table to query (default: the clean master)")
	f.BoolVar(&q.jsonOut, "json", false, "Print JSON instead of a table")
	f.Int64Var(&q.year, "year", 0, "Only rows of this year")
	f.StringVar(&q.country, "country", "", "Only rows of this country")
	f.StringVar(&q.product, "product", "", "Only rows of this product")
	f.StringVar(&q.exporter, "exporter", "", "Only rows of this exporter")
}

func (q *queryOptions) filters() []analytics.Filter {
	var out []analytics.Filter
	if q.year != 0 {
		out = append(out, analytics.Eq(schema.Year, q.year))
	}
	for col, v := range map[string]string{
		schema.Country:  q.country,
		schema.Product:  q.product,
		schema.Exporter: q.exporter,
	} {
		if v != "" {
			out = append(out, analytics.Eq(col, v))
		}
	}
	return out
}

// load opens the query cache and returns the master table. The returned
// release func must be called when done.
func (q *queryOptions) load(opts *globalOptions) (*table.Table, func(), error) {
	path := q.input
	if path == "" {
		path = opts.cfg.Paths.CleanMasterPath()
	}
	cache := analytics.NewCache(path, fio.ReadParquetFile, nil)
	t, err := cache.Get(false)
	if err != nil {
		return nil, nil, err
	}
	opts.logger.Debug("master table loaded", "path", path, "rows", t.Len(), "loaded_at", cache.LoadedAt())
	return t, cache.Release, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printGroups(out io.Writer, label string, groups []analytics.Group) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\tBOXES\tKILOS\tROWS\t\n", label)
	for _, g := range groups {
		key := "null"
		if g.Key != nil {
			key = fmt.Sprint(g.Key)
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%d\t\n", key, g.Boxes, g.Kilos, g.Rows)
	}
	return w.Flush()
}

func newTopCmd(opts *globalOptions) *cobra.Command {
	var (
		q   queryOptions
		dim string
		n   int
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Rank a dimension by boxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, release, err := q.load(opts)
			if err != nil {
				return err
			}
			defer release()

			groups, err := analytics.TopN(t, dim, n, q.filters()...)
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(cmd.OutOrStdout(), groups)
			}
			return printGroups(cmd.OutOrStdout(), dim, groups)
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&dim, "by", schema.Exporter, "Dimension to rank")
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "Number of entries")
	return cmd
}

func newSeriesCmd(opts *globalOptions) *cobra.Command {
	var q queryOptions
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Boxes and kilos per year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, release, err := q.load(opts)
			if err != nil {
				return err
			}
			defer release()

			groups, err := analytics.TimeSeries(t, q.filters()...)
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(cmd.OutOrStdout(), groups)
			}
			return printGroups(cmd.OutOrStdout(), "YEAR", groups)
		},
	}
	q.bind(cmd)
	return cmd
}

func newKPIsCmd(opts *globalOptions) *cobra.Command {
	var q queryOptions
	cmd := &cobra.Command{
		Use:   "kpis",
		Short: "Headline totals of the master table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, release, err := q.load(opts)
			if err != nil {
				return err
			}
			defer release()

			if filters := q.filters(); len(filters) > 0 {
				filtered, err := analytics.FilterEq(t, memory.DefaultAllocator, filters...)
				if err != nil {
					return err
				}
				defer filtered.Release()
				t = filtered
			}
			k, err := analytics.ComputeKPIs(t)
			if err != nil {
				return err
			}
			if q.jsonOut {
				return writeJSON(cmd.OutOrStdout(), k)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "boxes: %d\nkilos: %.2f\nrows: %d\n", k.Boxes, k.Kilos, k.Rows)
			fmt.Fprintf(out, "exporters: %d\nproducts: %d\ncountries: %d\n", k.Exporters, k.Products, k.Countries)
			return nil
		},
	}
	q.bind(cmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// version needs no configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Info()
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprint(cmd.OutOrStdout(), info.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func newVarietiesCmd(opts *globalOptions) *cobra.Command {
	var (
		input   string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "varieties",
		Short: "Products with their recorded varieties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" {
				input = opts.cfg.Paths.CleanMasterPath()
			}
			t, err := fio.ReadParquetFile(input, memory.DefaultAllocator)
			if err != nil {
				return err
			}
			defer t.Release()

			products, err := analytics.ProductVarieties(t)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), products)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "PRODUCT\tVARIETY\tRECORDS\n")
			for _, p := range products {
				fmt.Fprintf(w, "%s\t\t%d\n", p.Product, p.Records)
				for _, v := range p.Varieties {
					fmt.Fprintf(w, "\t%s\t%d\n", v.Variety, v.Records)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Table to read (default: the clean master)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON instead of a table")
	return cmd
}
