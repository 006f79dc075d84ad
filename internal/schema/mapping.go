package schema

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/table"
)

// FileName is the schema artifact name
const FileName = "schema_master.json"

// FieldMapping is the chosen source for one canonical field
type FieldMapping struct {
	Type         string  `json:"type"`
	Required     bool    `json:"required"`
	SourceColumn *string `json:"source_column"`
	Frequency    int     `json:"frequency"`
	// Composite names the composite rule feeding this field, if any
	Composite string `json:"composite,omitempty"`
}

// Mapped reports whether the field has a source column
func (f FieldMapping) Mapped() bool {
	return f.SourceColumn != nil && *f.SourceColumn != ""
}

// Source returns the source column or the empty string
func (f FieldMapping) Source() string {
	if f.SourceColumn == nil {
		return ""
	}
	return *f.SourceColumn
}

// Composite is a raw column split into several canonical fields
type Composite struct {
	Name         string   `json:"name"`
	SourceColumn string   `json:"source_column"`
	Separator    string   `json:"separator"`
	Parts        []string `json:"parts"`
}

// Metadata describes how a mapping was produced
type Metadata struct {
	TotalFilesAnalyzed int     `json:"total_files_analyzed"`
	TotalUniqueColumns int     `json:"total_unique_columns"`
	Threshold          float64 `json:"threshold"`
	RulesVersion       int     `json:"rules_version"`
}

// Mapping is the schema_master.json artifact. It is treated as immutable
// once loaded.
type Mapping struct {
	Schema        map[string]FieldMapping `json:"schema"`
	ColumnMapping map[string]string       `json:"column_mapping"`
	Composites    []Composite             `json:"composites,omitempty"`
	Metadata      Metadata                `json:"metadata"`
}

// Field returns the mapping of a canonical field
func (m *Mapping) Field(name string) (FieldMapping, bool) {
	f, ok := m.Schema[name]
	return f, ok
}

// Composite returns the composite feeding a field and the field's part index
func (m *Mapping) Composite(field string) (Composite, int, bool) {
	f, ok := m.Schema[field]
	if !ok || f.Composite == "" {
		return Composite{}, 0, false
	}
	for _, c := range m.Composites {
		if c.Name != f.Composite {
			continue
		}
		for i, p := range c.Parts {
			if p == field {
				return c, i, true
			}
		}
	}
	return Composite{}, 0, false
}

// Type returns the declared type of a canonical field, falling back to the
// canonical type when the artifact holds an unknown name
func (m *Mapping) Type(field string) table.DataType {
	spec, _ := Spec(field)
	f, ok := m.Schema[field]
	if !ok {
		return spec.Type
	}
	t, err := table.ParseDataType(f.Type)
	if err != nil {
		return spec.Type
	}
	return t
}

// Unmapped lists canonical fields without a source column, in canonical order
func (m *Mapping) Unmapped(requiredOnly bool) []string {
	var out []string
	for _, spec := range Canonical {
		f, ok := m.Schema[spec.Name]
		if ok && f.Mapped() {
			continue
		}
		required := spec.Required
		if ok {
			required = f.Required
		}
		if requiredOnly && !required {
			continue
		}
		out = append(out, spec.Name)
	}
	return out
}

// CheckRequired returns ErrUnmappedRequired for unmapped required fields when
// strict is set. Otherwise each unmapped required field is logged as a warning.
func (m *Mapping) CheckRequired(strict bool, logger *slog.Logger) error {
	missing := m.Unmapped(true)
	if len(missing) == 0 {
		return nil
	}
	if strict {
		return errors.NewUnmappedRequiredError(missing)
	}
	for _, f := range missing {
		logger.Warn("required field has no source column", "field", f)
	}
	return nil
}

// Save writes the mapping as JSON
func (m *Mapping) Save(path string) error {
	return io.WriteJSON(path, m)
}

// Load reads a mapping artifact. A missing file is ErrMissingInput.
func Load(path string) (*Mapping, error) {
	var m Mapping
	if err := io.ReadJSON(path, &m); err != nil {
		return nil, err
	}
	if len(m.Schema) == 0 {
		return nil, errors.NewInvalidInputError("LoadSchema", fmt.Sprintf("%s has no schema section", path))
	}
	if m.ColumnMapping == nil {
		m.ColumnMapping = map[string]string{}
	}
	return &m, nil
}

// Options control inference
type Options struct {
	// Threshold is the minimum share of files a column must appear in
	Threshold float64
	Rules     []TypeRule
}

// DefaultOptions returns the standard inference options
func DefaultOptions() Options {
	return Options{Threshold: 0.5, Rules: TypeRules}
}

type candidate struct {
	name  string
	key   string
	freq  int
	exact bool
}

// better orders candidates by frequency, exact pattern match, then name
func (c candidate) better(o candidate) bool {
	if c.freq != o.freq {
		return c.freq > o.freq
	}
	if c.exact != o.exact {
		return c.exact
	}
	return c.name < o.name
}

// Infer builds a mapping from an inventory. For every canonical field the
// most frequent raw column whose normalized key contains, or is contained in,
// one of the field's patterns is chosen, provided it appears in at least
// Threshold of the files. A column whose key is exactly another field's
// pattern belongs to that field and is not considered for others.
func Infer(inv *inventory.Inventory, opts Options) *Mapping {
	if opts.Rules == nil {
		opts.Rules = TypeRules
	}
	files := inv.Files()
	minFreq := opts.Threshold * float64(files)

	owner := patternOwners()
	names := make([]string, 0, len(inv.Frequency))
	for name := range inv.Frequency {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Mapping{
		Schema:        make(map[string]FieldMapping, len(Canonical)),
		ColumnMapping: make(map[string]string, len(names)),
		Metadata: Metadata{
			TotalFilesAnalyzed: files,
			TotalUniqueColumns: len(names),
			Threshold:          opts.Threshold,
			RulesVersion:       RulesVersion,
		},
	}
	for _, name := range names {
		m.ColumnMapping[name] = inventory.NormalizeName(name)
	}

	for _, spec := range Canonical {
		best, found := bestCandidate(spec, names, inv.Frequency, owner, minFreq, files)
		fm := FieldMapping{
			Type:     spec.Type.String(),
			Required: spec.Required,
		}
		if found {
			src := best.name
			fm.SourceColumn = &src
			fm.Frequency = best.freq
			fm.Type = InferType(opts.Rules, best.name).String()
		}
		m.Schema[spec.Name] = fm
	}

	m.applyComposites(names, inv.Frequency, minFreq, files)
	return m
}

func bestCandidate(
	spec FieldSpec, names []string, freq map[string]int, owner map[string]string, minFreq float64, files int,
) (candidate, bool) {
	var best candidate
	found := false
	for _, name := range names {
		key := inventory.NormalizeName(name)
		if key == "" {
			continue
		}
		if o, ok := owner[key]; ok && o != spec.Name {
			continue
		}
		matched, exact := matchPatterns(key, spec.Patterns)
		if !matched {
			continue
		}
		c := candidate{name: name, key: key, freq: freq[name], exact: exact}
		if files == 0 || float64(c.freq) < minFreq {
			continue
		}
		if !found || c.better(best) {
			best = c
			found = true
		}
	}
	return best, found
}

func matchPatterns(key string, patterns []string) (matched, exact bool) {
	for _, p := range patterns {
		if key == p {
			return true, true
		}
		if strings.Contains(key, p) || strings.Contains(p, key) {
			matched = true
		}
	}
	return matched, false
}

// patternOwners maps every pattern to the field declaring it
func patternOwners() map[string]string {
	owner := make(map[string]string)
	for _, spec := range Canonical {
		for _, p := range spec.Patterns {
			if _, taken := owner[p]; !taken {
				owner[p] = spec.Name
			}
		}
	}
	return owner
}

// applyComposites points composite targets at a matching composite column
// when the target is unmapped or already uses that column.
func (m *Mapping) applyComposites(names []string, freq map[string]int, minFreq float64, files int) {
	for _, rule := range CompositeRules {
		var best candidate
		found := false
		for _, name := range names {
			key := inventory.NormalizeName(name)
			if key == "" || !strings.Contains(key, rule.Pattern) {
				continue
			}
			c := candidate{name: name, key: key, freq: freq[name], exact: key == rule.Pattern}
			if files == 0 || float64(c.freq) < minFreq {
				continue
			}
			if !found || c.better(best) {
				best = c
				found = true
			}
		}
		if !found {
			continue
		}

		used := false
		for _, target := range rule.Parts {
			fm := m.Schema[target]
			if fm.Mapped() && fm.Source() != best.name {
				continue
			}
			src := best.name
			fm.SourceColumn = &src
			fm.Frequency = best.freq
			fm.Composite = rule.Name
			if spec, ok := Spec(target); ok {
				fm.Type = spec.Type.String()
			}
			m.Schema[target] = fm
			used = true
		}
		if used {
			m.Composites = append(m.Composites, Composite{
				Name:         rule.Name,
				SourceColumn: best.name,
				Separator:    rule.Separator,
				Parts:        append([]string(nil), rule.Parts...),
			})
		}
	}
}
