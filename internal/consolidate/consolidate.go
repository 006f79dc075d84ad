// Package consolidate merges the per-file normalized tables into the master
// table, tagging each row with the week number of its source file.
package consolidate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
)

// UnknownSourceWeek marks rows whose file name carries no week number
const UnknownSourceWeek = -1

// SourceWeek extracts the week number from a file name, or -1
func SourceWeek(name string, pattern *regexp.Regexp) int64 {
	m := pattern.FindStringSubmatch(name)
	if len(m) < 2 {
		return UnknownSourceWeek
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return UnknownSourceWeek
	}
	return v
}

// Part is one normalized file loaded for consolidation
type Part struct {
	File       string
	SourceWeek int64
	Table      *table.Table
}

// Stats summarizes a consolidation
type Stats struct {
	Files          int
	Skipped        []string
	Rows           int
	Boxes          int64
	Kilos          float64
	SchemaWarnings int
	CastFailures   map[string]int
	MissingColumns []string
}

// Consolidator loads, combines and writes the master table
type Consolidator struct {
	pattern *regexp.Regexp
	mem     memory.Allocator
	logger  *slog.Logger
	options io.ParquetOptions
}

// New creates a consolidator. pattern must have one capture group holding
// the source week.
func New(pattern string, options io.ParquetOptions, mem memory.Allocator, logger *slog.Logger) (*Consolidator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling source week pattern: %w", err)
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Consolidator{pattern: re, mem: mem, logger: logger, options: options}, nil
}

// Load reads every Parquet file in cleanDir in name order. Unreadable files
// are skipped and listed.
func (c *Consolidator) Load(cleanDir string) ([]Part, []string, error) {
	entries, err := os.ReadDir(cleanDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewMissingInputError(cleanDir)
		}
		return nil, nil, fmt.Errorf("listing %s: %w", cleanDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".parquet") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var parts []Part
	var skipped []string
	for _, name := range names {
		t, err := io.ReadParquetFile(filepath.Join(cleanDir, name), c.mem)
		if err != nil {
			c.logger.Error("skipping unreadable normalized file", "file", name, "error", err)
			skipped = append(skipped, name)
			continue
		}
		parts = append(parts, Part{File: name, SourceWeek: SourceWeek(name, c.pattern), Table: t})
	}
	return parts, skipped, nil
}

// Combine concatenates the parts into the master table. The first usable
// part's schema is the reference; parts whose column names or types differ
// are kept with a warning. Parts that cannot be typed are skipped and listed.
// Columns are cast to their canonical types, projected to the canonical
// order followed by source_week, and sorted by (year, week, source_week).
func (c *Consolidator) Combine(parts []Part) (*table.Table, Stats, error) {
	stats := Stats{CastFailures: make(map[string]int)}
	typed := make([]*table.Table, 0, len(parts))
	defer func() {
		for _, t := range typed {
			t.Release()
		}
	}()

	var reference []table.Field
	var referenceFile string
	for _, p := range parts {
		t, failures, err := c.enforceTypes(p)
		if err != nil {
			c.logger.Warn("skipping normalized file", "file", p.File, "error", err)
			stats.Skipped = append(stats.Skipped, p.File)
			continue
		}

		fields := dataFields(p.Table)
		if reference == nil {
			reference, referenceFile = fields, p.File
		} else if missing, extra, retyped := diff(reference, fields); len(missing)+len(extra)+len(retyped) > 0 {
			stats.SchemaWarnings++
			c.logger.Warn("schema differs from reference",
				"file", p.File, "reference", referenceFile,
				"missing", missing, "extra", extra, "retyped", retyped)
		}

		for k, v := range failures {
			stats.CastFailures[k] += v
		}
		typed = append(typed, t)
	}
	stats.Files = len(typed)
	if len(typed) == 0 {
		return nil, stats, errors.ErrEmptyTable
	}

	merged, err := table.Concat(c.mem, typed...)
	if err != nil {
		return nil, stats, err
	}
	defer merged.Release()

	projected := merged.SelectPresent(schema.MasterNames()...)
	for _, spec := range schema.Canonical {
		if spec.Required && !projected.HasColumn(spec.Name) {
			stats.MissingColumns = append(stats.MissingColumns, spec.Name)
			c.logger.Warn("required column missing from every file", "column", spec.Name)
		}
	}

	out := projected
	if projected.HasColumn(schema.Year) && projected.HasColumn(schema.Week) {
		out, err = projected.Sort(c.mem, table.Asc(schema.Year, schema.Week, schema.SourceWeek)...)
		projected.Release()
		if err != nil {
			return nil, stats, err
		}
	}

	stats.Rows = out.Len()
	stats.Boxes = out.ColumnSumInt(schema.Boxes)
	stats.Kilos = out.ColumnSumFloat(schema.NetWeightKg)
	return out, stats, nil
}

// enforceTypes casts canonical columns to their final types, drops anything
// else and appends the source_week column.
func (c *Consolidator) enforceTypes(p Part) (*table.Table, map[string]int, error) {
	if p.Table == nil {
		return nil, nil, errors.NewInvalidInputError("Combine", "part has no table")
	}
	failures := make(map[string]int)
	cols := make([]*table.Column, 0, p.Table.Width()+1)
	for _, f := range p.Table.Fields() {
		want, ok := schema.TypeOf(f.Name)
		if !ok || f.Name == schema.SourceWeek {
			continue
		}
		src, _ := p.Table.Column(f.Name)
		casted, failed := table.Cast(src, want, c.mem)
		if failed > 0 {
			failures[f.Name] += failed
			c.logger.Warn("type enforcement produced nulls", "file", p.File, "column", f.Name, "failed", failed)
		}
		cols = append(cols, casted)
	}
	cols = append(cols, table.Constant(schema.SourceWeek, p.SourceWeek, p.Table.Len(), c.mem))
	t, err := table.New(cols...)
	if err != nil {
		for _, col := range cols {
			col.Release()
		}
		return nil, nil, err
	}
	return t, failures, nil
}

// dataFields returns the non-metadata fields sorted by name
func dataFields(t *table.Table) []table.Field {
	var out []table.Field
	for _, f := range t.Fields() {
		if !schema.IsMetadata(f.Name) {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b table.Field) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func lookupField(fields []table.Field, name string) (table.Field, bool) {
	i := slices.IndexFunc(fields, func(f table.Field) bool { return f.Name == name })
	if i < 0 {
		return table.Field{}, false
	}
	return fields[i], true
}

// diff lists the columns missing from or added to fields, and the columns
// present in both with a different type
func diff(reference, fields []table.Field) (missing, extra, retyped []string) {
	for _, r := range reference {
		f, ok := lookupField(fields, r.Name)
		switch {
		case !ok:
			missing = append(missing, r.Name)
		case f.Type != r.Type:
			retyped = append(retyped, fmt.Sprintf("%s: %s -> %s", r.Name, r.Type, f.Type))
		}
	}
	for _, f := range fields {
		if _, ok := lookupField(reference, f.Name); !ok {
			extra = append(extra, f.Name)
		}
	}
	return missing, extra, retyped
}

// Run loads cleanDir, combines it and writes the master table to masterPath
func (c *Consolidator) Run(cleanDir, masterPath string) (Stats, error) {
	parts, skipped, err := c.Load(cleanDir)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		for _, p := range parts {
			p.Table.Release()
		}
	}()

	master, stats, err := c.Combine(parts)
	stats.Skipped = append(skipped, stats.Skipped...)
	if err != nil {
		return stats, err
	}
	defer master.Release()

	if err := io.WriteParquetFile(masterPath, master, c.options); err != nil {
		return stats, fmt.Errorf("writing master table: %w", err)
	}

	c.logger.Info("master table written",
		"path", masterPath,
		"files", stats.Files,
		"skipped", len(stats.Skipped),
		"rows", stats.Rows,
		"boxes", stats.Boxes,
		"kilos", stats.Kilos,
		"schema_warnings", stats.SchemaWarnings)
	return stats, nil
}
