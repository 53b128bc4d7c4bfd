package semantic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EnvelopeKind says where a search response nested its hit list. Qdrant
// versions and proxies disagree, so the kind is detected per response.
type EnvelopeKind int

const (
	EnvelopeEmpty    EnvelopeKind = iota // no recognizable hit list
	EnvelopeResult                       // {"result": [...]}
	EnvelopeNested                       // {"result": {"points": [...]}}
	EnvelopeTopLevel                     // {"points": [...]}
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeResult:
		return "result"
	case EnvelopeNested:
		return "result.points"
	case EnvelopeTopLevel:
		return "points"
	default:
		return "empty"
	}
}

// Envelope is a decoded search response. Hits keep the raw per-hit objects;
// Records flattens them.
type Envelope struct {
	Kind EnvelopeKind
	Hits []map[string]any
}

// idKeys are tried in order when extracting a hit identifier.
var idKeys = []string{"id", "point_id", "place_id"}

// DecodeEnvelope resolves which of the known shapes body has.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Envelope{}, fmt.Errorf("semantic: decode search response: %w", err)
	}

	if raw, ok := top["result"]; ok {
		var flat []map[string]any
		if err := decodeNumbers(raw, &flat); err == nil {
			return Envelope{Kind: EnvelopeResult, Hits: flat}, nil
		}
		var nested struct {
			Points json.RawMessage `json:"points"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Points != nil {
			var hits []map[string]any
			if err := decodeNumbers(nested.Points, &hits); err != nil {
				return Envelope{}, fmt.Errorf("semantic: decode result.points: %w", err)
			}
			return Envelope{Kind: EnvelopeNested, Hits: hits}, nil
		}
		return Envelope{Kind: EnvelopeEmpty}, nil
	}

	if raw, ok := top["points"]; ok {
		var hits []map[string]any
		if err := decodeNumbers(raw, &hits); err != nil {
			return Envelope{}, fmt.Errorf("semantic: decode points: %w", err)
		}
		return Envelope{Kind: EnvelopeTopLevel, Hits: hits}, nil
	}

	return Envelope{Kind: EnvelopeEmpty}, nil
}

// Records flattens the hits in order.
func (e Envelope) Records() []Record {
	out := make([]Record, 0, len(e.Hits))
	for _, h := range e.Hits {
		out = append(out, recordFromHit(h))
	}
	return out
}

// Normalize decodes body and returns at most limit records (limit <= 0 means
// no cap).
func Normalize(body []byte, limit int) ([]Record, EnvelopeKind, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return nil, EnvelopeEmpty, err
	}
	recs := env.Records()
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, env.Kind, nil
}

func recordFromHit(h map[string]any) Record {
	rec := Record{ID: UnknownID, Payload: map[string]any{}}
	for _, k := range idKeys {
		if id := idString(h[k]); id != "" {
			rec.ID = id
			break
		}
	}
	rec.Score = toFloat(h["score"])
	if p, ok := h["payload"].(map[string]any); ok {
		rec.Payload = p
	}
	return rec
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// decodeNumbers keeps numeric ids intact instead of rounding them through float64.
func decodeNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
