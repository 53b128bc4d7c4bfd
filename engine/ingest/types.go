package ingest

// SimilarResult is one hit of SearchSimilar. Metadata holds every payload
// key except text.
type SimilarResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Link describes a stored video transcript.
type Link struct {
	VideoID  string `json:"video_id"`
	VideoURL string `json:"video_url"`
	PointID  string `json:"point_id"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Data    string `json:"data"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}
