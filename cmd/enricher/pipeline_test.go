package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgriggs3/spotify-history-enricher/internal/testutil"
	"github.com/sgriggs3/spotify-history-enricher/pkg/fetch"
	"github.com/sgriggs3/spotify-history-enricher/pkg/history"
	"github.com/sgriggs3/spotify-history-enricher/pkg/spotify"
)

const (
	trackA = "4uLU6hMCjMI75M1A2tKUQC"
	trackB = "0VjIjW4GlUZAMYd2vXMi3b"
	trackC = "7qiZfU4dY1lWllzX7mPBI3"
)

func writeHistory(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// newTestPipeline wires a pipeline against a mock Spotify server.
func newTestPipeline(t *testing.T, mock *testutil.MockSpotify, dataDir, outDir string) *Pipeline {
	t.Helper()

	client, err := spotify.New(spotify.Config{
		HTTPClient: mock.Client(),
		BaseURL:    mock.URL(),
		UserAgent:  "enricher-test/1.0",
	})
	if err != nil {
		t.Fatalf("spotify.New() error = %v", err)
	}

	fetcher := fetch.New(client.GetAudioFeatures, fetch.Config{
		BatchSize:  100,
		MaxRetries: 3,
		BaseDelay:  5 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})

	return &Pipeline{
		Fetcher:   fetcher,
		DataDir:   dataDir,
		OutputDir: outDir,
		Workers:   2,
		Logger:    zerolog.Nop(),
	}
}

func TestPipeline_Run(t *testing.T) {
	mock := testutil.NewMockSpotify()
	defer mock.Close()
	mock.SetAudioFeaturesHandler()

	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeHistory(t, dataDir, "history_2023.csv",
		"ts,spotify_track_uri\nt1,spotify:track:"+trackA+"\nt2,spotify:track:"+trackB+"\n")
	writeHistory(t, dataDir, "history_2024.csv",
		"ts,spotify_track_uri\nt3,spotify:track:"+trackC+"\nt4,\n")

	pipeline := newTestPipeline(t, mock, dataDir, outDir)
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, name := range []string{"history_2023_processed.csv", "history_2024_processed.csv"} {
		table, err := history.Load(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if len(table.Header) <= 2 {
			t.Errorf("%s: header not widened, got %v", name, table.Header)
		}
	}

	combined, err := history.Load(filepath.Join(outDir, CombinedName))
	if err != nil {
		t.Fatalf("Load(combined) error = %v", err)
	}
	if len(combined.Rows) != 4 {
		t.Errorf("Combined rows = %d, want 4", len(combined.Rows))
	}

	// The empty reference row must stay, with empty feature cells.
	var found bool
	for _, row := range combined.Rows {
		if row[0] == "t4" {
			found = true
			if row[2] != "" {
				t.Errorf("Absent row feature cell = %q, want empty", row[2])
			}
		}
	}
	if !found {
		t.Error("Row with absent reference missing from combined output")
	}
}

func TestPipeline_SkipsProcessedFiles(t *testing.T) {
	mock := testutil.NewMockSpotify()
	defer mock.Close()
	mock.SetAudioFeaturesHandler()

	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeHistory(t, dataDir, "history.csv",
		"ts,spotify_track_uri\nt1,spotify:track:"+trackA+"\n")
	// Enrichment outputs in the data directory are never inputs.
	writeHistory(t, dataDir, "old_processed.csv",
		"ts,spotify_track_uri\nt9,spotify:track:"+trackB+"\n")

	pipeline := newTestPipeline(t, mock, dataDir, outDir)
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("First Run() error = %v", err)
	}
	requestsAfterFirst := mock.GetRequestCount()
	if requestsAfterFirst == 0 {
		t.Fatal("Expected at least one API request")
	}

	// A rerun finds everything processed and makes no API calls.
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Second Run() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != requestsAfterFirst {
		t.Errorf("Requests after rerun = %d, want %d", got, requestsAfterFirst)
	}
}

func TestPipeline_RetriesTransientFailures(t *testing.T) {
	mock := testutil.NewMockSpotify()
	defer mock.Close()
	mock.SetHandler("/audio-features", testutil.NewFlakyHandler(2))

	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeHistory(t, dataDir, "history.csv",
		"ts,spotify_track_uri\nt1,spotify:track:"+trackA+"\n")

	pipeline := newTestPipeline(t, mock, dataDir, outDir)
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	table, err := history.Load(filepath.Join(outDir, "history_processed.csv"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	idx, err := table.ColumnIndex("danceability")
	if err != nil {
		t.Fatalf("ColumnIndex() error = %v", err)
	}
	if table.Rows[0][idx] == "" {
		t.Error("Row should be enriched after transient failures")
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("Requests = %d, want 3 (two failures then success)", got)
	}
}

func TestPipeline_ForbiddenDegradesToAbsent(t *testing.T) {
	mock := testutil.NewMockSpotify()
	defer mock.Close()
	mock.SetResponse("/audio-features", testutil.NewForbiddenResponse())

	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeHistory(t, dataDir, "history.csv",
		"ts,spotify_track_uri\nt1,spotify:track:"+trackA+"\n")

	pipeline := newTestPipeline(t, mock, dataDir, outDir)
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Requests = %d, want 1 (no retries on authorization failure)", got)
	}

	table, err := history.Load(filepath.Join(outDir, "history_processed.csv"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	idx, err := table.ColumnIndex("danceability")
	if err != nil {
		t.Fatalf("ColumnIndex() error = %v", err)
	}
	if table.Rows[0][idx] != "" {
		t.Errorf("Feature cell = %q, want empty after abandoned batch", table.Rows[0][idx])
	}
}

func TestPipeline_MissingURIColumnSkipsFile(t *testing.T) {
	mock := testutil.NewMockSpotify()
	defer mock.Close()
	mock.SetAudioFeaturesHandler()

	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeHistory(t, dataDir, "good.csv",
		"ts,spotify_track_uri\nt1,spotify:track:"+trackA+"\n")
	writeHistory(t, dataDir, "bad.csv",
		"ts,ms_played\nt1,1000\n")

	pipeline := newTestPipeline(t, mock, dataDir, outDir)
	if err := pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "good_processed.csv")); err != nil {
		t.Errorf("Good file should be processed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "bad_processed.csv")); !os.IsNotExist(err) {
		t.Error("File without track URI column should not produce output")
	}
}
