package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pansea/tripplanner/engine/semantic"
)

func TestRenderRecord_OrderAndSkipping(t *testing.T) {
	payload := map[string]any{
		"text":              "free text",
		"source":            "blog",
		"plan_details":      "Day 1 temples",
		"theme":             "Culture",
		"budget":            float64(4500),
		"duration":          float64(0),
		"country":           "Thailand",
		"destination_place": map[string]any{"name": "Chiang Mai"},
		"start_place":       map[string]any{"name": "Bangkok"},
		"name":              "Northern loop",
		"visited_place": []any{
			map[string]any{"name": "Doi Suthep", "latitude": 18.8048, "longitude": 98.9216},
		},
		"safety": "",
	}
	want := strings.Join([]string{
		"Northern loop",
		"Start: Bangkok",
		"Destination: Chiang Mai",
		"Country: Thailand",
		"Visited: Doi Suthep (lat: 18.8048, lon: 98.9216)",
		"Budget: 4500 THB",
		"Theme: Culture",
		"Plan details: Day 1 temples",
		"Source: blog",
		"free text",
	}, "\n")
	if got := RenderRecord(payload); got != want {
		t.Errorf("RenderRecord() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderRecord_Duration(t *testing.T) {
	got := RenderRecord(map[string]any{"duration": float64(3)})
	if got != "Duration: 3 days" {
		t.Errorf("got %q", got)
	}
}

func TestAssembleContext(t *testing.T) {
	recs := []semantic.Record{
		{ID: "1", Payload: map[string]any{"name": "A"}},
		{ID: "2", Payload: map[string]any{"unrelated": "x"}},
		{ID: "3", Payload: map[string]any{"text": "B"}},
	}
	if got := AssembleContext(recs); got != "\nA\nB" {
		t.Errorf("AssembleContext() = %q", got)
	}
	if got := AssembleContext(nil); got != "" {
		t.Errorf("empty records should give empty context, got %q", got)
	}
}

func TestTruncateContext(t *testing.T) {
	short := "hello"
	if got := TruncateContext(short, 10); got != short {
		t.Errorf("short input changed: %q", got)
	}

	exact := strings.Repeat("a", MaxContextChars)
	if got := TruncateContext(exact, MaxContextChars); got != exact {
		t.Error("input at the limit should be unchanged")
	}

	long := strings.Repeat("ก", 5000)
	got := TruncateContext(long, MaxContextChars)
	if n := utf8.RuneCountInString(got); n != MaxContextChars+len(TruncationMarker) {
		t.Errorf("rune count = %d", n)
	}
	if !strings.HasSuffix(got, TruncationMarker) || !utf8.ValidString(got) {
		t.Errorf("bad truncation tail: %q", got[len(got)-10:])
	}
}

func TestRetrievedItems(t *testing.T) {
	recs := []semantic.Record{
		{ID: "a", Score: 0.9, Payload: map[string]any{"place_name": "Doi Inthanon", "name": "ignored"}},
		{ID: "b", Score: 0.5, Payload: map[string]any{"name": "Old City"}},
		{ID: "c", Score: 0.1},
	}
	got := RetrievedItems(recs)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].PlaceName != "Doi Inthanon" || got[1].PlaceName != "Old City" || got[2].PlaceName != semantic.UnknownID {
		t.Errorf("names = %+v", got)
	}
	if got[0].PlaceID != "a" || got[0].Score != 0.9 {
		t.Errorf("first = %+v", got[0])
	}
	if out := RetrievedItems(nil); out == nil || len(out) != 0 {
		t.Errorf("nil records should give empty non-nil slice, got %#v", out)
	}
}
