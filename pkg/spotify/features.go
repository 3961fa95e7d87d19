package spotify

// AudioFeatures is the per-track metadata record returned by the
// audio-features endpoint.
type AudioFeatures struct {
	ID               string  `json:"id"`
	URI              string  `json:"uri"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             int     `json:"mode"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	DurationMs       int     `json:"duration_ms"`
	TimeSignature    int     `json:"time_signature"`
}

// Valid reports whether the record carries the required fields. The API
// occasionally returns placeholder objects for restricted tracks; those are
// treated as absent data.
func (f *AudioFeatures) Valid() bool {
	return f != nil && f.ID != "" && f.DurationMs > 0
}

// audioFeaturesResponse is the wire envelope of the audio-features endpoint.
// The array is aligned with the requested ids; unknown tracks come back null.
type audioFeaturesResponse struct {
	AudioFeatures []*AudioFeatures `json:"audio_features"`
}
