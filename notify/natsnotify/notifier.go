// Package natsnotify wraps a saga.EventStore and publishes every appended
// envelope to a JetStream subject for external observers (dashboards,
// alerting) — a non-owning read path layered on top of the store, never
// part of the saga's own control flow: Append against the wrapped store
// happens first, and publishing is best-effort, logged on failure, never
// fatal to the saga run.
package natsnotify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"sagacore/errors"
	"sagacore/logging"
	"sagacore/saga"
)

// Config names the JetStream stream and subject prefix this Notifier
// publishes under.
type Config struct {
	Conn          *nats.Conn
	Stream        string
	SubjectPrefix string
	Logger        logging.ILogger
}

// DefaultConfig returns a Config with a conventional stream/subject name,
// wired to conn.
func DefaultConfig(conn *nats.Conn) Config {
	return Config{Conn: conn, Stream: "SAGA_EVENTS", SubjectPrefix: "saga.events"}
}

// Notifier decorates a saga.EventStore, publishing each appended envelope
// to `<SubjectPrefix>.<EventKind>`.
type Notifier struct {
	inner saga.EventStore
	js    jetstream.JetStream
	cfg   Config
	log   logging.ILogger
}

// New connects to JetStream, ensures the configured stream exists, and
// returns a Notifier wrapping inner.
func New(ctx context.Context, inner saga.EventStore, cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("notify.natsnotify")
	}
	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, errors.Wrap(ctx, err, errors.ErrCodeQueue, "natsnotify: jetstream client")
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
	}); err != nil {
		return nil, errors.Wrap(ctx, err, errors.ErrCodeQueue, "natsnotify: ensure stream")
	}
	return &Notifier{inner: inner, js: js, cfg: cfg, log: cfg.Logger}, nil
}

// Append appends to the wrapped store first, then best-effort publishes
// the resulting envelope; a publish failure is logged, never returned.
func (n *Notifier) Append(ctx context.Context, event saga.Event) (saga.Envelope, error) {
	env, err := n.inner.Append(ctx, event)
	if err != nil {
		return env, err
	}

	subject := fmt.Sprintf("%s.%s", n.cfg.SubjectPrefix, event.Kind)
	payload, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		n.log.Warn(ctx, "failed to marshal envelope for publish", logging.Error(marshalErr))
		return env, nil
	}
	if _, pubErr := n.js.Publish(ctx, subject, payload); pubErr != nil {
		n.log.Warn(ctx, "failed to publish envelope to jetstream",
			logging.String("subject", subject), logging.Error(pubErr))
	}
	return env, nil
}

// Iterate delegates to the wrapped store.
func (n *Notifier) Iterate(ctx context.Context) ([]saga.Envelope, error) {
	return n.inner.Iterate(ctx)
}

// Populate delegates to the wrapped store.
func (n *Notifier) Populate(ctx context.Context, envelopes []saga.Envelope) error {
	return n.inner.Populate(ctx, envelopes)
}

var _ saga.EventStore = (*Notifier)(nil)
