// Package semantic owns every vector-store operation: collection lifecycle,
// point upserts and nearest-neighbour search against Qdrant, over either the
// REST API (Client) or gRPC (GRPCStore).
package semantic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownID is the identifier given to hits that carry none.
const UnknownID = "Unknown"

// ErrNotFound is returned when a collection does not exist.
var ErrNotFound = errors.New("semantic: not found")

// Distance is the similarity metric of a collection.
type Distance string

const (
	Cosine    Distance = "Cosine"
	Euclidean Distance = "Euclid"
	Dot       Distance = "Dot"
)

// wire returns the upper-cased form the REST API accepts.
func (d Distance) wire() string {
	if d == "" {
		return strings.ToUpper(string(Cosine))
	}
	return strings.ToUpper(string(d))
}

// Record is one normalized search hit. Payload values are whatever the store
// returned: strings, numbers, bools, nested maps and slices.
type Record struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Point is a vector with its payload, ready to upsert.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// SearchParams describes one nearest-neighbour query. Timeout overrides the
// client default for this call only.
type SearchParams struct {
	Collection  string
	Vector      []float32
	Limit       int
	WithPayload bool
	Timeout     time.Duration
}

// CollectionInfo is the subset of collection metadata the service reads.
type CollectionInfo struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	PointsCount int64  `json:"points_count"`
	VectorSize  int    `json:"vector_size"`
}

// Store is implemented by both transports.
type Store interface {
	Search(ctx context.Context, p SearchParams) ([]Record, error)
	Upsert(ctx context.Context, collection string, points []Point) error
	GetCollection(ctx context.Context, name string) (CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, size int, distance Distance) error
	DeleteCollection(ctx context.Context, name string) error
	RecreateCollection(ctx context.Context, name string, size int, distance Distance) error
	EnsureCollection(ctx context.Context, name string, size int, distance Distance) error
}

// StatusError is a non-2xx answer from the REST API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("semantic: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Is reports a 404 as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}
