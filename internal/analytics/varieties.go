package analytics

import (
	"cmp"
	"slices"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
)

// UnknownName stands in for a missing product or variety
const UnknownName = "Unknown"

// VarietyCount is the number of records of one variety
type VarietyCount struct {
	Variety string `json:"variety"`
	Records int    `json:"records"`
}

// ProductVariety lists the varieties recorded for a product
type ProductVariety struct {
	Product   string         `json:"product"`
	Records   int            `json:"records"`
	Varieties []VarietyCount `json:"varieties"`
}

// ProductVarieties returns every product with its varieties, products by
// record count descending and varieties by name. Empty names become Unknown.
func ProductVarieties(t *table.Table) ([]ProductVariety, error) {
	products, ok := t.Column(schema.Product)
	if !ok {
		return nil, errors.NewColumnNotFoundError("ProductVarieties", schema.Product)
	}
	varieties, ok := t.Column(schema.Variety)
	if !ok {
		return nil, errors.NewColumnNotFoundError("ProductVarieties", schema.Variety)
	}

	index := make(map[string]int)
	var out []ProductVariety
	counts := make([]map[string]int, 0)
	for row := range t.Len() {
		p := nameAt(products, row)
		v := nameAt(varieties, row)
		pi, seen := index[p]
		if !seen {
			pi = len(out)
			index[p] = pi
			out = append(out, ProductVariety{Product: p})
			counts = append(counts, make(map[string]int))
		}
		out[pi].Records++
		counts[pi][v]++
	}

	for i := range out {
		for v, n := range counts[i] {
			out[i].Varieties = append(out[i].Varieties, VarietyCount{Variety: v, Records: n})
		}
		slices.SortFunc(out[i].Varieties, func(a, b VarietyCount) int {
			return cmp.Compare(a.Variety, b.Variety)
		})
	}
	slices.SortStableFunc(out, func(a, b ProductVariety) int {
		return cmp.Compare(b.Records, a.Records)
	})
	return out, nil
}

func nameAt(c *table.Column, row int) string {
	s, ok := c.Str(row)
	if !ok || s == "" {
		return UnknownName
	}
	return s
}
