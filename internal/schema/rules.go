package schema

import (
	"strings"

	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/table"
)

// RulesVersion identifies the TypeRules table recorded in the artifact
const RulesVersion = 2

// TypeRule assigns a type to column names containing any of the keywords
type TypeRule struct {
	Keywords []string
	Type     table.DataType
}

// TypeRules are evaluated in order; the first matching rule wins
var TypeRules = []TypeRule{
	{Keywords: []string{"week", "semana", "year", "anio", "ano"}, Type: table.Int64},
	{Keywords: []string{"box", "caja", "bulto"}, Type: table.Int64},
	{Keywords: []string{"weight", "peso", "kilo", "kg"}, Type: table.Float64},
	{Keywords: []string{"value", "valor", "usd", "dollar", "precio"}, Type: table.Float64},
	{Keywords: []string{"code", "codigo", "date", "fecha"}, Type: table.String},
}

// InferType applies rules to a raw column name. Names matching no rule are strings.
func InferType(rules []TypeRule, column string) table.DataType {
	key := inventory.NormalizeName(column)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(key, kw) {
				return r.Type
			}
		}
	}
	return table.String
}
