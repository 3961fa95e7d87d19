package spotify

import "strings"

// trackIDLength is the fixed length of a base62 Spotify track ID.
const trackIDLength = 22

// TrackIDFromURI extracts the track ID from a source reference. It accepts
// both the spotify:track:<id> URI form and a bare ID, and returns "" for
// empty, malformed, or wrong-type references instead of failing.
func TrackIDFromURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}

	if strings.Contains(uri, ":") {
		parts := strings.Split(uri, ":")
		if len(parts) != 3 || parts[0] != "spotify" || parts[1] != "track" {
			return ""
		}
		uri = parts[len(parts)-1]
	}

	if !validTrackID(uri) {
		return ""
	}
	return uri
}

// TrackIDsFromURIs maps a sequence of source references to a same-length
// sequence of track IDs, with "" marking absent positions. Pure function;
// identifiers are neither deduplicated nor reordered.
func TrackIDsFromURIs(uris []string) []string {
	ids := make([]string, len(uris))
	for i, uri := range uris {
		ids[i] = TrackIDFromURI(uri)
	}
	return ids
}

func validTrackID(id string) bool {
	if len(id) != trackIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
