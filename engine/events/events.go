// Package events publishes planner activity to NATS so other services can
// follow along without polling the API.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pansea/tripplanner/pkg/natsutil"
)

// Subjects.
const (
	SubjectPlanGenerated = "tripplanner.plan.generated"
	SubjectLinkAdded     = "tripplanner.link.added"
	// SubjectIngestTrip carries domain.TripRecord values to ingest workers.
	SubjectIngestTrip = "tripplanner.ingest.trip"
)

// PlanGenerated is emitted after every generation, degraded or not.
type PlanGenerated struct {
	Destination  string    `json:"destination"`
	StartPlace   string    `json:"start_place"`
	Duration     int       `json:"duration"`
	Status       string    `json:"status"`
	ResultsCount int       `json:"results_count"`
	Attempt      int       `json:"attempt"`
	TraceID      string    `json:"trace_id,omitempty"`
	At           time.Time `json:"at"`
}

// LinkAdded is emitted after a transcript has been stored.
type LinkAdded struct {
	VideoID  string    `json:"video_id"`
	VideoURL string    `json:"video_url"`
	PointID  string    `json:"point_id"`
	At       time.Time `json:"at"`
}

// Publisher sends planner events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PlanGenerated(ctx context.Context, e PlanGenerated) error
	LinkAdded(ctx context.Context, e LinkAdded) error
	Close()
}

// Noop discards every event.
type Noop struct{}

func (Noop) PlanGenerated(context.Context, PlanGenerated) error { return nil }
func (Noop) LinkAdded(context.Context, LinkAdded) error         { return nil }
func (Noop) Close()                                             {}

// NATS publishes events as JSON with trace headers.
type NATS struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// Connect dials url. An empty url yields a Noop publisher.
func Connect(url string, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		logger.Info("events: NATS_URL not set, events disabled")
		return Noop{}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("tripplanner-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("events: nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("events: nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	return NewNATS(nc, logger), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{nc: nc, logger: logger}
}

func (p *NATS) PlanGenerated(ctx context.Context, e PlanGenerated) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return natsutil.Publish(ctx, p.nc, SubjectPlanGenerated, e)
}

func (p *NATS) LinkAdded(ctx context.Context, e LinkAdded) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return natsutil.Publish(ctx, p.nc, SubjectLinkAdded, e)
}

// Close flushes pending messages and closes the connection.
func (p *NATS) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("events: drain failed", "err", err)
		p.nc.Close()
	}
}
