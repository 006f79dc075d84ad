package normalize

import (
	"path/filepath"
	"strings"

	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/io"
)

// DirStats summarizes a directory run
type DirStats struct {
	Files   int
	Written int
	Rows    int
	Failed  []string
	PerFile []Stats
}

// OutputName returns the per-file Parquet name for a raw file
func OutputName(rawPath string) string {
	base := filepath.Base(rawPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".parquet"
}

// NormalizeDir normalizes every raw file in rawDir, in name order, writing one
// Parquet file per input into cleanDir. Files that fail are logged, counted and
// skipped. Only a missing rawDir is an error.
func (n *Normalizer) NormalizeDir(rawDir, ext, cleanDir string, options io.ParquetOptions) (DirStats, error) {
	paths, err := inventory.ScanFiles(rawDir, ext)
	if err != nil {
		return DirStats{}, err
	}

	var ds DirStats
	for _, path := range paths {
		ds.Files++
		name := filepath.Base(path)

		t, stats, err := n.NormalizeFile(path)
		if err != nil {
			n.logger.Error("skipping file", "file", name, "error", err)
			ds.Failed = append(ds.Failed, name)
			continue
		}
		if t.Width() == 0 {
			t.Release()
			n.logger.Error("skipping file without canonical columns", "file", name)
			ds.Failed = append(ds.Failed, name)
			continue
		}

		out := filepath.Join(cleanDir, OutputName(path))
		err = io.WriteParquetFile(out, t, options)
		t.Release()
		if err != nil {
			n.logger.Error("writing normalized file failed", "file", name, "error", err)
			ds.Failed = append(ds.Failed, name)
			continue
		}

		ds.Written++
		ds.Rows += stats.Rows
		ds.PerFile = append(ds.PerFile, stats)
		n.logger.Info("file normalized",
			"file", name,
			"rows", stats.Rows,
			"cast_failures", stats.Failures(),
			"missing_fields", len(stats.Missing))
	}

	n.logger.Info("normalization finished",
		"files", ds.Files, "written", ds.Written, "failed", len(ds.Failed), "rows", ds.Rows)
	return ds, nil
}
