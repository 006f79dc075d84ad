// Package normalize turns one raw export file into a table in the canonical
// schema: columns are renamed, composite fields split, text trimmed and cased,
// and thousands-grouped numbers de-localized before non-strict casting.
package normalize

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/coerce"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stats describes the normalization of one file
type Stats struct {
	File string
	Rows int
	// CastFailures counts non-null source values that became null, per field
	CastFailures map[string]int
	// Missing lists canonical fields absent from the file
	Missing []string
}

// Failures returns the total cast failures across fields
func (s Stats) Failures() int {
	n := 0
	for _, v := range s.CastFailures {
		n += v
	}
	return n
}

// Normalizer applies a schema mapping to raw files. It is not safe for
// concurrent use.
type Normalizer struct {
	mapping *schema.Mapping
	mem     memory.Allocator
	logger  *slog.Logger
	title   cases.Caser
	upper   cases.Caser
}

// New creates a normalizer for a loaded mapping
func New(mapping *schema.Mapping, mem memory.Allocator, logger *slog.Logger) *Normalizer {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Normalizer{
		mapping: mapping,
		mem:     mem,
		logger:  logger,
		title:   cases.Title(language.Und),
		upper:   cases.Upper(language.Und),
	}
}

// NormalizeFile reads and normalizes one raw file. A file that cannot be
// decoded or parsed returns a file error.
func (n *Normalizer) NormalizeFile(path string) (*table.Table, Stats, error) {
	raw, err := io.ReadRaw(path)
	if err != nil {
		return nil, Stats{File: filepath.Base(path)}, errors.NewFileError("Normalize", filepath.Base(path), err)
	}
	t, stats, err := n.Normalize(raw)
	if err != nil {
		return nil, stats, errors.NewFileError("Normalize", stats.File, err)
	}
	return t, stats, nil
}

// Normalize converts a raw record set. Only canonical fields present in the
// file are emitted, in canonical order.
func (n *Normalizer) Normalize(raw *io.RawRecordSet) (*table.Table, Stats, error) {
	stats := Stats{
		File:         filepath.Base(raw.Path),
		Rows:         raw.Len(),
		CastFailures: make(map[string]int),
	}
	logger := n.logger.With("file", stats.File)

	cols := make([]*table.Column, 0, len(schema.Canonical))
	for _, spec := range schema.Canonical {
		var col *table.Column
		var failed int

		if comp, part, ok := n.mapping.Composite(spec.Name); ok {
			idx := n.resolve(raw, comp.SourceColumn)
			if idx < 0 {
				stats.Missing = append(stats.Missing, spec.Name)
				continue
			}
			col, failed = n.compositePart(raw, idx, spec.Name, comp.Separator, part)
			if failed > 0 {
				logger.Warn("composite extraction produced nulls",
					"field", spec.Name, "source", comp.SourceColumn, "failed", failed)
			}
		} else {
			fm, _ := n.mapping.Field(spec.Name)
			idx := -1
			if fm.Mapped() {
				idx = n.resolve(raw, fm.Source())
			}
			if idx < 0 {
				stats.Missing = append(stats.Missing, spec.Name)
				continue
			}
			col, failed = n.convert(raw, idx, spec)
		}

		if failed > 0 {
			stats.CastFailures[spec.Name] = failed
		}
		cols = append(cols, col)
	}

	out, err := table.New(cols...)
	if err != nil {
		for _, c := range cols {
			c.Release()
		}
		return nil, stats, err
	}
	return out, stats, nil
}

// resolve finds a source column by exact name, then by normalized key
func (n *Normalizer) resolve(raw *io.RawRecordSet, source string) int {
	if idx := raw.ColumnIndex(source); idx >= 0 {
		return idx
	}
	key := inventory.NormalizeName(source)
	for i, h := range raw.Header {
		if inventory.NormalizeName(h) == key {
			return i
		}
	}
	return -1
}

func (n *Normalizer) compositePart(raw *io.RawRecordSet, idx int, name, sep string, part int) (*table.Column, int) {
	b := table.NewBuilder(name, table.Int64, n.mem)
	b.Reserve(raw.Len())
	failed := 0
	for row := range raw.Len() {
		v, ok := raw.Cell(row, idx)
		if !ok {
			b.AppendNull()
			continue
		}
		p, ok := coerce.SplitPart(v, sep, part)
		if !ok {
			failed++
			b.AppendNull()
			continue
		}
		r := coerce.Int(p)
		if !r.Valid {
			failed++
			b.AppendNull()
			continue
		}
		b.AppendInt(r.Value)
	}
	return b.Finish(), failed
}

func (n *Normalizer) convert(raw *io.RawRecordSet, idx int, spec schema.FieldSpec) (*table.Column, int) {
	b := table.NewBuilder(spec.Name, spec.Type, n.mem)
	b.Reserve(raw.Len())
	var counter coerce.Counter
	for row := range raw.Len() {
		v, ok := raw.Cell(row, idx)
		if !ok {
			b.AppendNull()
			continue
		}
		switch spec.Type {
		case table.Int64, table.Int32:
			r := n.parseInt(spec.Name, v)
			coerce.Observe(&counter, r)
			if r.Valid {
				b.AppendInt(r.Value)
			} else {
				b.AppendNull()
			}
		case table.Float64:
			r := n.parseFloat(spec.Name, v)
			coerce.Observe(&counter, r)
			if r.Valid {
				b.AppendFloat(r.Value)
			} else {
				b.AppendNull()
			}
		default:
			b.AppendString(n.text(spec.Name, v))
		}
	}
	return b.Finish(), counter.Failed
}

func (n *Normalizer) parseInt(field, v string) coerce.Result[int64] {
	if field == schema.Boxes {
		return coerce.DelocalizedInt(v)
	}
	return coerce.Int(v)
}

func (n *Normalizer) parseFloat(field, v string) coerce.Result[float64] {
	if field == schema.NetWeightKg {
		return coerce.DelocalizedFloat(v)
	}
	return coerce.Float(v)
}

// text trims and cases a categorical value. season is trimmed only.
func (n *Normalizer) text(field, v string) string {
	v = strings.TrimSpace(v)
	switch field {
	case schema.Season:
		return v
	case schema.Country:
		return n.upper.String(v)
	default:
		return n.title.String(v)
	}
}
