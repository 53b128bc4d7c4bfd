// Package scraper extracts YouTube video transcripts for the trip importer.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pansea/tripplanner/pkg/fn"
)

// ErrNoTranscript is returned when a video has no usable caption track.
var ErrNoTranscript = errors.New("scraper: no transcript available")

const (
	defaultPlayerURL = "https://www.youtube.com/youtubei/v1/player?prettyPrint=false"
	androidUA        = "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip"
)

// timedText represents the YouTube timedtext XML response (srv3 format).
type timedText struct {
	XMLName xml.Name `xml:"timedtext"`
	Body    ttBody   `xml:"body"`
}

type ttBody struct {
	Paragraphs []ttParagraph `xml:"p"`
}

type ttParagraph struct {
	Start int    `xml:"t,attr"`
	Dur   int    `xml:"d,attr"`
	Text  string `xml:",chardata"`
}

// legacyTimedText is the older transcript XML format.
type legacyTimedText struct {
	XMLName xml.Name      `xml:"transcript"`
	Texts   []legacyEntry `xml:"text"`
}

type legacyEntry struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

var bracketNoise = regexp.MustCompile(`\[(?:Music|Applause|Laughter|Cheering|Inaudible|เพลง|ดนตรี)\]`)
var multiSpace = regexp.MustCompile(`\s+`)

// TranscriptOptions configures a TranscriptClient.
type TranscriptOptions struct {
	// Languages in order of preference. Defaults to Thai then English.
	Languages []string
	// RequestsPerSecond bounds calls to YouTube; Burst allows short spikes.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	// PlayerURL overrides the innertube player endpoint.
	PlayerURL string
	Logger    *slog.Logger
}

// TranscriptClient fetches captions through the innertube player API.
type TranscriptClient struct {
	http      *http.Client
	limiter   *rate.Limiter
	languages []string
	playerURL string
	logger    *slog.Logger
}

// NewTranscriptClient builds a rate-limited transcript client.
func NewTranscriptClient(opts TranscriptOptions) *TranscriptClient {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"th", "en"}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PlayerURL == "" {
		opts.PlayerURL = defaultPlayerURL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TranscriptClient{
		http:      opts.HTTPClient,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		languages: opts.Languages,
		playerURL: opts.PlayerURL,
		logger:    opts.Logger,
	}
}

// Fetch returns the cleaned transcript of videoID, trying caption tracks in
// preference order until one yields text.
func (c *TranscriptClient) Fetch(ctx context.Context, videoID string) fn.Result[Transcript] {
	tracks, err := c.captionTracks(ctx, videoID)
	if err != nil {
		return fn.Err[Transcript](fmt.Errorf("%w for video %s: %w", ErrNoTranscript, videoID, err))
	}

	for _, t := range c.rank(tracks) {
		text, err := c.fetchTrack(ctx, t.BaseURL+"&fmt=srv3")
		if err != nil {
			c.logger.Debug("scraper: caption track failed", "video_id", videoID, "lang", t.Lang, "err", err)
			continue
		}
		if text != "" {
			return fn.Ok(Transcript{VideoID: videoID, Language: t.Lang, Generated: t.Kind == "asr", Text: text})
		}
	}
	return fn.Err[Transcript](fmt.Errorf("%w for video %s", ErrNoTranscript, videoID))
}

// FullText is Fetch reduced to the transcript text.
func (c *TranscriptClient) FullText(ctx context.Context, videoID string) (string, error) {
	t, err := c.Fetch(ctx, videoID).Unwrap()
	return t.Text, err
}

// rank orders tracks: manual captions in preferred languages, then ASR in
// preferred languages, then everything else in response order.
func (c *TranscriptClient) rank(tracks []captionTrack) []captionTrack {
	out := make([]captionTrack, 0, len(tracks))
	used := make([]bool, len(tracks))
	pick := func(match func(captionTrack) bool) {
		for i, t := range tracks {
			if !used[i] && match(t) {
				used[i] = true
				out = append(out, t)
			}
		}
	}
	for _, asr := range []bool{false, true} {
		for _, lang := range c.languages {
			pick(func(t captionTrack) bool { return t.Lang == lang && (t.Kind == "asr") == asr })
		}
	}
	pick(func(captionTrack) bool { return true })
	return out
}

// captionTracks uses the innertube API (ANDROID client) to list caption tracks.
func (c *TranscriptClient) captionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":        "ANDROID",
				"clientVersion":     "19.09.37",
				"androidSdkVersion": 30,
				"hl":                "en",
				"gl":                "TH",
			},
		},
		"videoId":        videoID,
		"contentCheckOk": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.playerURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUA)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player status %d", resp.StatusCode)
	}

	var result struct {
		Captions struct {
			PlayerCaptionsTracklistRenderer struct {
				CaptionTracks []captionTrack `json:"captionTracks"`
			} `json:"playerCaptionsTracklistRenderer"`
		} `json:"captions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}

	tracks := result.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, errors.New("no caption tracks in player response")
	}
	return tracks, nil
}

func (c *TranscriptClient) fetchTrack(ctx context.Context, u string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", androidUA)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		return "", fmt.Errorf("bad response: status=%d len=%d", resp.StatusCode, len(body))
	}
	return parseTimedText(body)
}

// parseTimedText accepts the srv3 and the legacy caption XML.
func parseTimedText(body []byte) (string, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err == nil && len(tt.Body.Paragraphs) > 0 {
		var sb strings.Builder
		for _, p := range tt.Body.Paragraphs {
			sb.WriteString(p.Text)
			sb.WriteByte(' ')
		}
		return CleanTranscript(sb.String()), nil
	}

	var legacy legacyTimedText
	if err := xml.Unmarshal(body, &legacy); err == nil && len(legacy.Texts) > 0 {
		var sb strings.Builder
		for _, t := range legacy.Texts {
			sb.WriteString(t.Text)
			sb.WriteByte(' ')
		}
		return CleanTranscript(sb.String()), nil
	}

	return "", errors.New("no text entries in transcript")
}

// CleanTranscript removes bracket noise, decodes leftover HTML entities,
// collapses whitespace, and trims.
func CleanTranscript(text string) string {
	text = bracketNoise.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
