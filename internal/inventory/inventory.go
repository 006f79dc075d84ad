// Package inventory scans raw export headers and records which column names
// occur in which files, how often each name occurs, and which spellings
// collapse to the same normalized key.
package inventory

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/paveg/fruitflow/internal/detect"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
)

// Artifact file names
const (
	InventoryFile = "column_inventory.json"
	FrequencyFile = "column_frequency.json"
)

var (
	separatorRun  = regexp.MustCompile(`[\s\-]+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// NormalizeName maps a raw header to its grouping key, e.g. "ETD Week" to
// "etd_week" and "Boxes " to "boxes".
func NormalizeName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = separatorRun.ReplaceAllString(key, "_")
	key = disallowed.ReplaceAllString(key, "")
	key = underscoreRun.ReplaceAllString(key, "_")
	return strings.Trim(key, "_")
}

// Entry is the header list of one file, in file order
type Entry struct {
	File    string
	Headers []string
}

// Skipped records a file whose header could not be read
type Skipped struct {
	File   string
	Reason string
}

// Inventory is the result of a header scan
type Inventory struct {
	Entries    []Entry
	Frequency  map[string]int      // raw name -> number of files containing it
	Variations map[string][]string // normalized key -> raw spellings, sorted
	Skipped    []Skipped
}

// Files returns the number of files with a readable header
func (inv *Inventory) Files() int { return len(inv.Entries) }

// ScanFiles lists files with the given extension in dir, sorted by name.
// A missing directory is a missing input.
func ScanFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingInputError(dir)
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadHeaders reads only the header line of a raw file
func ReadHeaders(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	line, err := detect.FirstLine(f)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	det := detect.DetectLine(line)

	r := csv.NewReader(detect.NewDecodingReader(bytes.NewReader(line), det.Encoding))
	r.Comma = det.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	headers := make([]string, 0, len(fields))
	for i, h := range fields {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers = append(headers, strings.TrimSpace(h))
	}
	if len(headers) == 0 || (len(headers) == 1 && headers[0] == "") {
		return nil, fmt.Errorf("empty header")
	}
	return headers, nil
}

// Collect reads the header of every path. Unreadable files are skipped and
// reported, never fatal.
func Collect(paths []string, logger *slog.Logger) *Inventory {
	inv := &Inventory{
		Frequency:  make(map[string]int),
		Variations: make(map[string][]string),
	}
	for _, path := range paths {
		name := filepath.Base(path)
		headers, err := ReadHeaders(path)
		if err != nil {
			logger.Error("skipping file with unreadable header", "file", name, "error", err)
			inv.Skipped = append(inv.Skipped, Skipped{File: name, Reason: err.Error()})
			continue
		}
		inv.add(Entry{File: name, Headers: headers})
	}
	logger.Info("column inventory collected",
		"files", inv.Files(),
		"skipped", len(inv.Skipped),
		"distinct_columns", len(inv.Frequency))
	return inv
}

func (inv *Inventory) add(e Entry) {
	inv.Entries = append(inv.Entries, e)
	seen := make(map[string]bool, len(e.Headers))
	for _, h := range e.Headers {
		if seen[h] {
			continue
		}
		seen[h] = true
		if inv.Frequency[h] == 0 {
			key := NormalizeName(h)
			inv.Variations[key] = insertSorted(inv.Variations[key], h)
		}
		inv.Frequency[h]++
	}
}

func insertSorted(list []string, v string) []string {
	i, found := slices.BinarySearch(list, v)
	if found {
		return list
	}
	return slices.Insert(list, i, v)
}

// NameCount is one row of the frequency table
type NameCount struct {
	Name  string
	Count int
}

// FrequencyList returns names ordered by count descending, then name
func (inv *Inventory) FrequencyList() []NameCount {
	list := make([]NameCount, 0, len(inv.Frequency))
	for name, count := range inv.Frequency {
		list = append(list, NameCount{Name: name, Count: count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Inconsistencies returns normalized keys spelled more than one way
func (inv *Inventory) Inconsistencies() map[string][]string {
	out := make(map[string][]string)
	for key, names := range inv.Variations {
		if len(names) > 1 {
			out[key] = names
		}
	}
	return out
}

// ColumnShare is a column with the share of files containing it
type ColumnShare struct {
	Name    string
	Count   int
	Percent float64
}

// Summary returns the top n columns by frequency with their share of files
func (inv *Inventory) Summary(n int) []ColumnShare {
	list := inv.FrequencyList()
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	out := make([]ColumnShare, len(list))
	for i, nc := range list {
		pct := 0.0
		if inv.Files() > 0 {
			pct = 100 * float64(nc.Count) / float64(inv.Files())
		}
		out[i] = ColumnShare{Name: nc.Name, Count: nc.Count, Percent: pct}
	}
	return out
}

// Save writes column_inventory.json and column_frequency.json into dir
func (inv *Inventory) Save(dir string) error {
	files := make(map[string][]string, len(inv.Entries))
	for _, e := range inv.Entries {
		files[e.File] = e.Headers
	}
	if err := io.WriteJSON(filepath.Join(dir, InventoryFile), files); err != nil {
		return err
	}
	return io.WriteJSON(filepath.Join(dir, FrequencyFile), orderedFrequency(inv.FrequencyList()))
}

// Load rebuilds an inventory from column_inventory.json in dir
func Load(dir string) (*Inventory, error) {
	var files map[string][]string
	if err := io.ReadJSON(filepath.Join(dir, InventoryFile), &files); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	inv := &Inventory{
		Frequency:  make(map[string]int),
		Variations: make(map[string][]string),
	}
	for _, name := range names {
		inv.add(Entry{File: name, Headers: files[name]})
	}
	return inv, nil
}

// orderedFrequency marshals as a JSON object preserving list order
type orderedFrequency []NameCount

func (o orderedFrequency) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nc := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nc.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", nc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
