package finalize

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
)

// SubsetMetrics describes a season subset and is written next to it
type SubsetMetrics struct {
	InputPath        string   `json:"input_path"`
	OutputPath       string   `json:"output_path"`
	RowCount         int      `json:"row_count"`
	SeasonCount      int      `json:"season_count"`
	SeasonsFound     []string `json:"seasons_found"`
	TotalBoxes       int64    `json:"total_boxes"`
	TotalNetWeightKg float64  `json:"total_net_weight_kg"`
}

// ParseSeasons splits a comma-separated season list, dropping blanks
func ParseSeasons(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Subset keeps the rows whose season is in seasons. An empty season list or
// an empty result is an error.
func Subset(t *table.Table, seasons []string, mem memory.Allocator) (*table.Table, SubsetMetrics, error) {
	if len(seasons) == 0 {
		return nil, SubsetMetrics{}, errors.NewInvalidInputError("Subset", "at least one season is required")
	}
	col, ok := t.Column(schema.Season)
	if !ok {
		return nil, SubsetMetrics{}, errors.NewColumnNotFoundError("Subset", schema.Season)
	}

	found := make(map[string]bool)
	out := t.Filter(func(row int) bool {
		s, ok := col.Str(row)
		if ok && slices.Contains(seasons, s) {
			found[s] = true
			return true
		}
		return false
	}, mem)

	if out.Len() == 0 {
		out.Release()
		return nil, SubsetMetrics{}, fmt.Errorf("no rows for seasons %v: %w", seasons, errors.ErrEmptyTable)
	}

	metrics := SubsetMetrics{
		RowCount:         out.Len(),
		SeasonCount:      len(found),
		TotalBoxes:       out.ColumnSumInt(schema.Boxes),
		TotalNetWeightKg: out.ColumnSumFloat(schema.NetWeightKg),
	}
	for s := range found {
		metrics.SeasonsFound = append(metrics.SeasonsFound, s)
	}
	sort.Strings(metrics.SeasonsFound)
	return out, metrics, nil
}
