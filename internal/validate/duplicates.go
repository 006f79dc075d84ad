package validate

import (
	"encoding/binary"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/paveg/fruitflow/internal/table"
)

// Duplicates counts the rows that have at least one identical row, counting
// every member of a duplicate group. Rows are bucketed by an xxhash of their
// cells and compared exactly within a bucket.
func Duplicates(t *table.Table) int {
	buckets := make(map[uint64][]int, t.Len())
	d := xxhash.New()
	for row := range t.Len() {
		d.Reset()
		hashRow(d, t, row)
		h := d.Sum64()
		buckets[h] = append(buckets[h], row)
	}

	total := 0
	for _, rows := range buckets {
		if len(rows) < 2 {
			continue
		}
		total += duplicatesIn(t, rows)
	}
	return total
}

func hashRow(d *xxhash.Digest, t *table.Table, row int) {
	var lenBuf [8]byte
	for i := range t.Width() {
		c := t.ColumnAt(i)
		if c.IsNull(row) {
			_, _ = d.Write([]byte{0})
			continue
		}
		s := c.Format(row)
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
		_, _ = d.Write([]byte{1})
		_, _ = d.Write(lenBuf[:])
		_, _ = d.WriteString(s)
	}
}

// duplicatesIn groups rows sharing a hash by exact equality
func duplicatesIn(t *table.Table, rows []int) int {
	var groups [][]int
	for _, r := range rows {
		placed := false
		for gi, g := range groups {
			if rowsEqual(t, g[0], r) {
				groups[gi] = append(g, r)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{r})
		}
	}
	n := 0
	for _, g := range groups {
		if len(g) > 1 {
			n += len(g)
		}
	}
	return n
}

func rowsEqual(t *table.Table, a, b int) bool {
	for i := range t.Width() {
		c := t.ColumnAt(i)
		an, bn := c.IsNull(a), c.IsNull(b)
		if an != bn {
			return false
		}
		if !an && c.Value(a) != c.Value(b) {
			return false
		}
	}
	return true
}
