package schema

// SearchResultItem is a single semantic search hit.
type SearchResultItem struct {
	ID              string         `json:"id"`
	FilePath        string         `json:"filePath"`
	FileName        string         `json:"fileName"`
	Distance        float64        `json:"distance"`
	DurationSeconds float64        `json:"durationSeconds"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IndexResult summarizes an index_directory run.
type IndexResult struct {
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	New     int `json:"new,omitempty"`
}

// EngineParam describes one engine-specific control exposed beyond the
// standard transport and mixer operations.
type EngineParam struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
