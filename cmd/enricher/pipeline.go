package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sgriggs3/spotify-history-enricher/pkg/fetch"
	"github.com/sgriggs3/spotify-history-enricher/pkg/history"
	"github.com/sgriggs3/spotify-history-enricher/pkg/spotify"
)

// CombinedName is the final merged output file.
const CombinedName = "spotify_history_combined.csv"

// Pipeline enriches every history file in a directory and combines the
// results. Files are independent, so they are processed by a small worker
// pool; a file that fails is logged and skipped without stopping the run.
type Pipeline struct {
	Fetcher   *fetch.Fetcher[spotify.AudioFeatures]
	DataDir   string
	OutputDir string
	Workers   int
	Logger    zerolog.Logger
}

// Run processes all pending history files and merges the outputs. It
// returns an error only when nothing could be processed or the context was
// cancelled; per-file failures degrade to warnings.
func (p *Pipeline) Run(ctx context.Context) error {
	paths, err := p.pendingFiles()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		p.Logger.Info().Str("dir", p.DataDir).Msg("No history files to process")
		return nil
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if err := p.processFile(ctx, path); err != nil {
					if ctx.Err() != nil {
						return
					}
					p.Logger.Warn().Err(err).
						Str("file", filepath.Base(path)).
						Msg("Skipping file")
				}
			}
		}()
	}

	for _, path := range paths {
		select {
		case jobs <- path:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("processing interrupted: %w", err)
	}

	if _, err := history.Combine(p.OutputDir, filepath.Join(p.OutputDir, CombinedName)); err != nil {
		return fmt.Errorf("combine outputs: %w", err)
	}
	return nil
}

// pendingFiles lists history CSVs that still need enrichment, skipping
// files whose processed output already exists so reruns resume cheaply.
func (p *Pipeline) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") || history.IsProcessed(name) {
			continue
		}

		outPath := history.ProcessedPath(p.OutputDir, name)
		if _, err := os.Stat(outPath); err == nil {
			p.Logger.Debug().Str("file", name).Msg("Already processed, skipping")
			continue
		}

		paths = append(paths, filepath.Join(p.DataDir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// processFile enriches one history file and writes its processed output.
func (p *Pipeline) processFile(ctx context.Context, path string) error {
	table, err := history.Load(path)
	if err != nil {
		return err
	}

	uris, err := table.TrackURIs()
	if err != nil {
		return err
	}

	features, err := p.Fetcher.Fetch(ctx, spotify.TrackIDsFromURIs(uris))
	if err != nil {
		return err
	}

	if err := table.Enrich(features); err != nil {
		return err
	}

	outPath := history.ProcessedPath(p.OutputDir, path)
	if err := table.Save(outPath); err != nil {
		return err
	}

	resolved := 0
	for _, f := range features {
		if f != nil {
			resolved++
		}
	}
	p.Logger.Info().
		Str("file", filepath.Base(path)).
		Int("rows", len(table.Rows)).
		Int("resolved", resolved).
		Str("output", filepath.Base(outPath)).
		Msg("Processed history file")

	return nil
}
