// Package events publishes domain events to NATS. The publisher is optional:
// a nil *Publisher or a missing connection turns every Publish into a no-op,
// so handlers never branch on whether the bus is configured.
package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

const (
	SubjectUserLoggedIn    = "visiond.users.logged_in"
	SubjectUserDeleted     = "visiond.users.deleted"
	SubjectInferenceDone   = "visiond.inferences.completed"
	SubjectDatasetSynced   = "visiond.datasets.synced"
	SubjectModelSynced     = "visiond.models.synced"
	SubjectTrainingStarted = "visiond.training.started"
)

// Publisher wraps a NATS connection for fire-and-forget JSON events.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials NATS at url. An empty url yields a disabled publisher.
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return &Publisher{}, nil
	}
	conn, err := nats.Connect(url, nats.Name("visiond"))
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

// Publish marshals payload and publishes it on subject. Failures are
// swallowed: events are advisory and must never fail a request.
func (p *Publisher) Publish(subject string, payload map[string]any) {
	if p == nil || p.conn == nil || subject == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = p.conn.Publish(subject, data)
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
