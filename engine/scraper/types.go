package scraper

// Transcript is the cleaned caption text of one video.
type Transcript struct {
	VideoID  string `json:"video_id"`
	Language string `json:"language"`
	// Generated is true for automatic speech recognition tracks.
	Generated bool   `json:"generated"`
	Text      string `json:"text"`
}

// captionTrack from the innertube player response.
type captionTrack struct {
	BaseURL string `json:"baseUrl"`
	Lang    string `json:"languageCode"`
	Kind    string `json:"kind"`
}
