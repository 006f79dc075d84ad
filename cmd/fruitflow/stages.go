package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/paveg/fruitflow/internal/finalize"
	"github.com/paveg/fruitflow/internal/monitoring"
	"github.com/paveg/fruitflow/internal/pipeline"
	"github.com/spf13/cobra"
)

func stageCmd(use, short string, run func(cmd *cobra.Command, r *pipeline.Runner) error, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts.runner())
		},
	}
}

func newInventoryCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("inventory", "Scan raw headers and write the column inventory",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			inv, err := r.Inventory()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "COLUMN\tFILES\tSHARE\n")
			for _, c := range inv.Summary(0) {
				fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", c.Name, c.Count, c.Percent)
			}

			incons := inv.Inconsistencies()
			if len(incons) > 0 {
				fmt.Fprintf(w, "\nNORMALIZED\tSPELLINGS\t\n")
				for _, key := range slices.Sorted(maps.Keys(incons)) {
					spellings := make([]string, len(incons[key]))
					for i, s := range incons[key] {
						spellings[i] = strconv.Quote(s)
					}
					fmt.Fprintf(w, "%s\t%s\t\n", key, strings.Join(spellings, ", "))
				}
			}
			return w.Flush()
		}, opts)
}

func newSchemaCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("schema", "Infer the schema mapping from the saved inventory",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			m, err := r.Schema(nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mapping written to %s (%d unmapped fields)\n",
				opts.cfg.Paths.SchemaPath(), len(m.Unmapped(false)))
			return nil
		}, opts)
}

func newNormalizeCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("normalize", "Normalize every raw file into a per-file Parquet table",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			ds, err := r.Normalize()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files: %d  written: %d  failed: %d  rows: %d\n",
				ds.Files, ds.Written, len(ds.Failed), ds.Rows)
			return nil
		}, opts)
}

func newCombineCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("combine", "Consolidate per-file tables into the master table",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			s, err := r.Combine()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files: %d  skipped: %d  rows: %d  boxes: %d  kilos: %.2f\n",
				s.Files, len(s.Skipped), s.Rows, s.Boxes, s.Kilos)
			return nil
		}, opts)
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("audit", "Recompute raw totals and compare them with the normalized tables",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			res, err := r.Audit()
			if err != nil {
				return err
			}
			s := res.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "files: %d  ok: %d  warning: %d  delta boxes: %d  delta kilos: %.2f\n",
				s.Files, s.OK, s.Warning, s.DeltaBoxes, s.DeltaKilos)
			return nil
		}, opts)
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("validate", "Check the master table and write the validation report",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			rep, err := r.Validate(nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows: %d  schema ok: %t  totals match: %t\n", rep.TotalRows, rep.SchemaOK, rep.TotalsMatchCSV)
			for _, w := range rep.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		}, opts)
}

func newCleanCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("clean", "Fill nulls in the master table",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			rep, err := r.Clean()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rows: %d  filled columns: %d  modified: %t\n",
				rep.Rows, len(rep.Filled), rep.Modified)
			return nil
		}, opts)
}

func newPresentCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("present", "Add season columns and outlier flags to the clean master",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			if err := r.Present(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "presentation table written to %s\n", opts.cfg.Paths.PresentationPath())
			return nil
		}, opts)
}

func newSubsetCmd(opts *globalOptions) *cobra.Command {
	var seasons string
	cmd := stageCmd("subset", "Keep selected seasons of the presentation table",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			m, err := r.Subset(finalize.ParseSeasons(seasons))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seasons: %v  rows: %d  boxes: %d  kilos: %.2f\n",
				m.SeasonsFound, m.RowCount, m.TotalBoxes, m.TotalNetWeightKg)
			return nil
		}, opts)
	cmd.Flags().StringVar(&seasons, "seasons", "", "Comma-separated seasons (default: configured MVP seasons)")
	return cmd
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	return stageCmd("run", "Run every stage in order",
		func(cmd *cobra.Command, r *pipeline.Runner) error {
			_, err := r.Run()
			printStages(cmd.OutOrStdout(), r.Metrics())
			return err
		}, opts)
}

func printStages(out io.Writer, mc *monitoring.MetricsCollector) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STAGE\tDURATION\tFILES\tFAILED\tROWS\tERROR\n")
	for _, s := range mc.Stages() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", s.Stage, s.Duration, s.FilesProcessed, s.FilesFailed, s.Rows, s.Error)
	}
	sum := mc.Summary()
	fmt.Fprintf(w, "total\t%s\t%d\t%d\t%d\t\n", sum.TotalDuration, sum.FilesProcessed, sum.FilesFailed, sum.Rows)
	_ = w.Flush()
}
