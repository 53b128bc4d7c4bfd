package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pansea/tripplanner/engine/domain"
)

// videoIDPattern matches the 11-character YouTube video id alphabet.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// watchHosts are the hosts that carry the id in the v= query parameter or a
// /shorts/, /embed/ or /live/ path segment.
var watchHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// ParseVideoID accepts a bare video id or any common YouTube URL form
// (watch?v=, youtu.be/, shorts/, embed/, live/) and returns the id.
func ParseVideoID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if videoIDPattern.MatchString(s) {
		return s, nil
	}

	raw := s
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.NewValidationError("video_id", s, domain.ErrInvalidVideoID)
	}

	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case host == "youtu.be":
		id = firstSegment(u.Path)
	case watchHosts[host]:
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			id = parts[1]
		}
	}
	if !videoIDPattern.MatchString(id) {
		return "", domain.NewValidationError("video_id", s, domain.ErrInvalidVideoID)
	}
	return id, nil
}

// CanonicalURL is the watch URL for a video id.
func CanonicalURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func firstSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
