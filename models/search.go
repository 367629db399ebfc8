package models

// SearchResult is one nearest-neighbour hit. Distance is nil when the
// backend did not report one.
type SearchResult struct {
	Text     string        `json:"text"`
	Meta     ChunkMetadata `json:"meta"`
	Distance *float64      `json:"distance"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Results []SearchResult `json:"results"`
}
