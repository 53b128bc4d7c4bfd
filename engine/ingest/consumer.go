package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/events"
	"github.com/pansea/tripplanner/pkg/natsutil"
)

const (
	// QueueGroup shares ingest messages between workers.
	QueueGroup = "tripplanner-ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = events.SubjectIngestTrip + ".dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// StartConsumer subscribes to trip records on events.SubjectIngestTrip and
// inserts each into collection. Failed messages are republished with an
// incremented retry header and land on DLQSubject after MaxRetries; payloads
// that cannot succeed on redelivery go there immediately.
func StartConsumer(nc *nats.Conn, im *Importer, collection string, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}

	handle := func(ctx context.Context, rec domain.TripRecord) error {
		id, err := im.InsertTrip(ctx, collection, rec)
		if err != nil {
			return err
		}
		log.Info("ingest: success", "point_id", id, "name", rec.Name)
		return nil
	}

	onErr := func(msg *nats.Msg, err error) {
		retries := 0
		if msg.Header != nil {
			retries, _ = strconv.Atoi(msg.Header.Get(retryHeader))
		}
		retries++
		log.Error("ingest: message failed", "err", err, "subject", msg.Subject, "retry", retries)

		if retries >= MaxRetries || permanent(err) {
			data, _ := json.Marshal(dlqMessage{Data: string(msg.Data), Error: err.Error(), Retries: retries})
			if err := nc.Publish(DLQSubject, data); err != nil {
				log.Error("ingest: DLQ publish failed", "err", err)
			}
			return
		}

		retry := nats.NewMsg(msg.Subject)
		retry.Data = msg.Data
		for k, v := range msg.Header {
			retry.Header[k] = v
		}
		retry.Header.Set(retryHeader, strconv.Itoa(retries))
		if err := nc.PublishMsg(retry); err != nil {
			log.Error("ingest: retry publish failed", "err", err)
		}
	}

	return natsutil.QueueSubscribe(nc, events.SubjectIngestTrip, QueueGroup, handle, onErr)
}

func permanent(err error) bool {
	return errors.Is(err, natsutil.ErrDecode) || errors.Is(err, domain.ErrInvalidRequest)
}
