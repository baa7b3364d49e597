package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by Forwarder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Forwarder republishes bus events on NATS.
type Forwarder struct {
	pub    Publisher
	prefix string
}

// NewForwarder returns a forwarder publishing under prefix.
func NewForwarder(pub Publisher, prefix string) *Forwarder {
	return &Forwarder{pub: pub, prefix: prefix}
}

// Subject returns the NATS subject for t.
func (f *Forwarder) Subject(t Type) string {
	return f.prefix + "." + string(t)
}

// Handle is a Bus Handler. Failures are logged and dropped.
func (f *Forwarder) Handle(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("events: marshal", "type", e.Type, "err", err)
		return
	}
	subject := f.Subject(e.Type)
	if err := f.pub.Publish(subject, data); err != nil {
		slog.Warn("events: nats publish failed", "subject", subject, "err", err)
		return
	}
	slog.Debug("events: published", "subject", subject, "size", len(data))
}

// Connect dials the NATS server at url, retrying in the background when the
// server is not yet reachable.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("pilotwatch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("events: nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("events: nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats %s: %w", url, err)
	}
	return nc, nil
}
