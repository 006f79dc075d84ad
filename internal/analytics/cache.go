// Package analytics is the read-only query layer over the cleaned master
// table: a load-once cache with schema enforcement plus filters, totals,
// rankings and time series.
package analytics

import (
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
)

// Schema is the column set every analysis query relies on
var Schema = []table.Field{
	{Name: schema.Season, Type: table.String},
	{Name: schema.Week, Type: table.Int64},
	{Name: schema.Year, Type: table.Int64},
	{Name: schema.Country, Type: table.String},
	{Name: schema.Product, Type: table.String},
	{Name: schema.Exporter, Type: table.String},
	{Name: schema.PortDestination, Type: table.String},
	{Name: schema.Boxes, Type: table.Int64},
	{Name: schema.NetWeightKg, Type: table.Float64},
}

// Enforce projects t onto Schema and casts columns to its types. A missing
// column is an error.
func Enforce(t *table.Table, mem memory.Allocator) (*table.Table, error) {
	cols := make([]*table.Column, 0, len(Schema))
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}
	for _, f := range Schema {
		src, ok := t.Column(f.Name)
		if !ok {
			release()
			return nil, errors.NewColumnNotFoundError("Enforce", f.Name)
		}
		casted, _ := table.Cast(src, f.Type, mem)
		cols = append(cols, casted)
	}
	out, err := table.New(cols...)
	if err != nil {
		release()
		return nil, err
	}
	return out, nil
}

// ReadFunc loads a table from a path
type ReadFunc func(path string, mem memory.Allocator) (*table.Table, error)

// Cache loads the master table once and serves it until a reload is forced.
// It is safe for concurrent use.
type Cache struct {
	path     string
	read     ReadFunc
	mem      memory.Allocator
	now      func() time.Time
	mu       sync.Mutex
	data     *table.Table
	loadedAt time.Time
}

// NewCache creates a cache over the table at path, loaded with read.
// A nil read loads a Parquet file.
func NewCache(path string, read ReadFunc, mem memory.Allocator) *Cache {
	if read == nil {
		read = io.ReadParquetFile
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Cache{path: path, read: read, mem: mem, now: time.Now}
}

// Get returns the cached table, loading it on first use or when forceReload
// is set. The table belongs to the cache and stays valid until the next
// forced reload or Release.
func (c *Cache) Get(forceReload bool) (*table.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil && !forceReload {
		return c.data, nil
	}

	raw, err := c.read(c.path, c.mem)
	if err != nil {
		return nil, err
	}
	defer raw.Release()

	enforced, err := Enforce(raw, c.mem)
	if err != nil {
		return nil, err
	}
	c.data.Release()
	c.data = enforced
	c.loadedAt = c.now()
	return c.data, nil
}

// LoadedAt returns when the table was last loaded, zero before the first load
func (c *Cache) LoadedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedAt
}

// Release drops the cached table
func (c *Cache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Release()
	c.data = nil
	c.loadedAt = time.Time{}
}
