package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/WessleyAI/nlq-engine/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// RequestSubject carries Request messages for ingestion workers.
	RequestSubject = "nlq.ingest.request"
	// StatusSubject carries Job snapshots on every status change.
	StatusSubject = "nlq.ingest.status"
)

// NATSNotifier publishes job snapshots to a NATS subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

// NewNATSNotifier creates a notifier publishing on subject (StatusSubject when empty).
func NewNATSNotifier(nc *nats.Conn, subject string, log *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = StatusSubject
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATSNotifier{nc: nc, subject: subject, log: log}
}

// Notify publishes job. Publish failures are logged and dropped.
func (n *NATSNotifier) Notify(ctx context.Context, job Job) {
	if err := natsutil.Publish(ctx, n.nc, n.subject, job); err != nil {
		n.log.Warn("ingest: status publish failed", "job_id", job.ID, "err", err)
	}
}

// Accepted is the reply to a Request.
type Accepted struct {
	JobID string `json:"job_id"`
}

// StartConsumer serves Requests on subject (RequestSubject when empty) and
// starts a job for each. Requests without a job id get a new one. A
// non-empty queue lets several workers share the subject. Callers using
// natsutil.Request receive the Accepted job id or the rejection.
func StartConsumer(nc *nats.Conn, subject, queue string, p *Pipeline) (*nats.Subscription, error) {
	if subject == "" {
		subject = RequestSubject
	}
	return natsutil.Respond(nc, subject, queue, func(ctx context.Context, req Request) (Accepted, error) {
		id := req.JobID
		if id == "" {
			id = NewJobID()
		}
		if err := p.Start(ctx, id, req.Paths); err != nil {
			if errors.Is(err, ErrJobExists) {
				p.log.Info("ingest: skipping duplicate request", "job_id", id)
			} else {
				p.log.Error("ingest: request rejected", "job_id", id, "err", err)
			}
			return Accepted{}, err
		}
		p.log.Info("ingest: request accepted", "job_id", id, "files", len(req.Paths))
		return Accepted{JobID: id}, nil
	})
}
