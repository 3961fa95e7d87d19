package history

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ProcessedSuffix marks enriched per-file outputs.
const ProcessedSuffix = "_processed.csv"

// Combine merges all processed files in dir into a single CSV at outPath.
// Files whose header disagrees with the first file are skipped with a
// warning rather than corrupting the combined output. Returns the number of
// files merged.
func Combine(dir, outPath string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read directory: %w", err)
	}

	var paths []string
	outBase := filepath.Base(outPath)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == outBase {
			continue
		}
		if IsProcessed(name) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no processed files in %s", dir)
	}
	sort.Strings(paths)

	var combined *Table
	merged := 0
	for _, path := range paths {
		table, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Skipping unreadable file")
			continue
		}

		if combined == nil {
			combined = &Table{Header: table.Header, Rows: table.Rows}
			merged++
			continue
		}
		if !slices.Equal(table.Header, combined.Header) {
			log.Warn().Str("file", filepath.Base(path)).Msg("Skipping file with mismatched header")
			continue
		}
		combined.Rows = append(combined.Rows, table.Rows...)
		merged++
	}
	if combined == nil {
		return 0, fmt.Errorf("no readable processed files in %s", dir)
	}

	if err := combined.Save(outPath); err != nil {
		return 0, err
	}

	log.Info().
		Int("files", merged).
		Int("rows", len(combined.Rows)).
		Str("output", outPath).
		Msg("Combined processed files")

	return merged, nil
}

// ProcessedPath derives the enriched output path for a history file.
func ProcessedPath(outDir, inputPath string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	return filepath.Join(outDir, base[:len(base)-len(ext)]+ProcessedSuffix)
}

// IsProcessed reports whether the file name is an enrichment output.
func IsProcessed(name string) bool {
	return strings.HasSuffix(name, ProcessedSuffix)
}
