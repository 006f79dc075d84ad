// Package schema infers the mapping from raw export column names to the
// canonical schema and persists it as the schema_master.json artifact.
package schema

import "github.com/paveg/fruitflow/internal/table"

// Canonical field names
const (
	Season          = "season"
	Week            = "week"
	Year            = "year"
	Region          = "region"
	Market          = "market"
	Country         = "country"
	Transport       = "transport"
	Product         = "product"
	Variety         = "variety"
	Importer        = "importer"
	Exporter        = "exporter"
	PortDestination = "port_destination"
	Boxes           = "boxes"
	NetWeightKg     = "net_weight_kg"

	// SourceWeek is the provenance column added by consolidation
	SourceWeek = "source_week"
)

// FieldSpec describes one canonical field
type FieldSpec struct {
	Name     string
	Type     table.DataType
	Required bool
	// Patterns are normalized name fragments that identify a raw column
	Patterns []string
}

// Canonical is the canonical schema in output order
var Canonical = []FieldSpec{
	{Name: Season, Type: table.String, Required: true, Patterns: []string{"season", "temporada", "estacion"}},
	{Name: Week, Type: table.Int64, Required: true, Patterns: []string{"week", "semana", "week_number", "etd_week"}},
	{Name: Year, Type: table.Int64, Required: true, Patterns: []string{"year", "ano", "anio"}},
	{Name: Region, Type: table.String, Patterns: []string{"region", "zona"}},
	{Name: Market, Type: table.String, Patterns: []string{"market", "mercado"}},
	{Name: Country, Type: table.String, Required: true, Patterns: []string{"country", "pais", "pais_destino", "destino"}},
	{Name: Transport, Type: table.String, Patterns: []string{"transport", "transporte"}},
	{Name: Product, Type: table.String, Required: true, Patterns: []string{"product", "producto", "specie", "especie"}},
	{Name: Variety, Type: table.String, Patterns: []string{"variety", "variedad"}},
	{Name: Importer, Type: table.String, Patterns: []string{"importer", "importador", "consignee"}},
	{Name: Exporter, Type: table.String, Required: true, Patterns: []string{"exporter", "exportador", "empresa_exportadora"}},
	{Name: PortDestination, Type: table.String, Patterns: []string{"port_destination", "arrival_port", "puerto_destino", "port", "puerto"}},
	{Name: Boxes, Type: table.Int64, Required: true, Patterns: []string{"boxes", "cajas", "bultos"}},
	{Name: NetWeightKg, Type: table.Float64, Required: true, Patterns: []string{"net_weight_kg", "net_weight", "peso_neto", "kilograms", "kilogramos", "kilos", "weight", "peso"}},
}

// CompositeRule describes a raw column holding several canonical fields
type CompositeRule struct {
	Name      string
	Pattern   string
	Separator string
	Parts     []string
}

// CompositeRules lists the known composite columns
var CompositeRules = []CompositeRule{
	{Name: "etd_week", Pattern: "etd_week", Separator: "-", Parts: []string{Week, Year}},
}

var canonicalIndex = func() map[string]int {
	idx := make(map[string]int, len(Canonical))
	for i, f := range Canonical {
		idx[f.Name] = i
	}
	return idx
}()

// Spec returns the canonical field spec by name
func Spec(name string) (FieldSpec, bool) {
	i, ok := canonicalIndex[name]
	if !ok {
		return FieldSpec{}, false
	}
	return Canonical[i], true
}

// CanonicalNames returns the canonical field names in order
func CanonicalNames() []string {
	names := make([]string, len(Canonical))
	for i, f := range Canonical {
		names[i] = f.Name
	}
	return names
}

// MasterNames returns the canonical names followed by source_week
func MasterNames() []string {
	return append(CanonicalNames(), SourceWeek)
}

// IsCanonical reports whether name is a canonical field
func IsCanonical(name string) bool {
	_, ok := canonicalIndex[name]
	return ok
}

// IsMetadata reports whether a column is pipeline metadata rather than data
func IsMetadata(name string) bool {
	return name == SourceWeek
}

// TypeOf returns the final type of a master table column
func TypeOf(name string) (table.DataType, bool) {
	if name == SourceWeek {
		return table.Int64, true
	}
	f, ok := Spec(name)
	return f.Type, ok
}
