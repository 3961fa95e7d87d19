package history

import (
	"fmt"
	"strconv"

	"github.com/sgriggs3/spotify-history-enricher/pkg/spotify"
)

// featureColumns are appended to enriched files, in this order.
var featureColumns = []string{
	"danceability",
	"energy",
	"key",
	"loudness",
	"mode",
	"speechiness",
	"acousticness",
	"instrumentalness",
	"liveness",
	"valence",
	"tempo",
	"duration_ms",
	"time_signature",
}

// Enrich appends one audio feature column set to every row. The features
// slice must align with the rows; a nil record leaves that row's feature
// cells empty. Tables that already carry feature columns are rejected to
// keep reprocessing from doubling them.
func (t *Table) Enrich(features []*spotify.AudioFeatures) error {
	if len(features) != len(t.Rows) {
		return fmt.Errorf("got %d feature records for %d rows", len(features), len(t.Rows))
	}
	if _, err := t.ColumnIndex(featureColumns[0]); err == nil {
		return fmt.Errorf("table already enriched")
	}

	t.Header = append(t.Header, featureColumns...)
	for i, row := range t.Rows {
		t.Rows[i] = append(row, featureCells(features[i])...)
	}
	return nil
}

// featureCells renders one record as CSV cells aligned with featureColumns.
func featureCells(f *spotify.AudioFeatures) []string {
	if f == nil {
		return make([]string, len(featureColumns))
	}
	return []string{
		formatFloat(f.Danceability),
		formatFloat(f.Energy),
		strconv.Itoa(f.Key),
		formatFloat(f.Loudness),
		strconv.Itoa(f.Mode),
		formatFloat(f.Speechiness),
		formatFloat(f.Acousticness),
		formatFloat(f.Instrumentalness),
		formatFloat(f.Liveness),
		formatFloat(f.Valence),
		formatFloat(f.Tempo),
		strconv.Itoa(f.DurationMs),
		strconv.Itoa(f.TimeSignature),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
