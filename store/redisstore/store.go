// Package redisstore implements saga.EventStore over a Redis stream
// (XADD/XRANGE). Redis stream entry ids are not freely assignable, so the
// envelope's own monotonic id travels as an ordinary field on each entry
// rather than as the stream id itself; ordering still matches insertion
// order because XADD entries are strictly appended.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sagacore/errors"
	"sagacore/idgen"
	"sagacore/saga"
)

const (
	fieldEnvelopeID = "envelope_id"
	fieldKind       = "kind"
	fieldRequestID  = "request_id"
	fieldCause      = "cause"
	fieldBackward   = "backward"
)

// Store is a durable saga.EventStore backed by a single Redis stream key.
type Store struct {
	client    *redis.Client
	streamKey string
	gen       idgen.Generator
}

// Open connects Store to an existing stream key, seeding the id generator
// from whatever envelopes are already present.
func Open(ctx context.Context, client *redis.Client, streamKey string) (*Store, error) {
	s := &Store{client: client, streamKey: streamKey, gen: idgen.NewCounter()}
	envelopes, err := s.Iterate(ctx)
	if err != nil {
		return nil, err
	}
	var maxID uint64
	for _, e := range envelopes {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	s.gen = idgen.NewCounterFrom(maxID)
	return s, nil
}

func boolToField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Append assigns the next id and XADDs a new stream entry carrying it as
// a field; becomes visible to XRANGE readers as soon as XADD returns.
func (s *Store) Append(ctx context.Context, event saga.Event) (saga.Envelope, error) {
	id := s.gen.NextID()
	values := map[string]interface{}{
		fieldEnvelopeID: strconv.FormatUint(id, 10),
		fieldKind:       string(event.Kind),
		fieldRequestID:  strconv.Itoa(event.RequestID),
		fieldCause:      event.Cause,
		fieldBackward:   boolToField(event.Backward),
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.streamKey, Values: values}).Err(); err != nil {
		return saga.Envelope{}, saga.NewStorageFailure(errors.Wrap(ctx, err, errors.ErrCodeDatabase, "xadd"))
	}
	return saga.Envelope{ID: id, Event: event}, nil
}

// Iterate reads the entire stream and returns envelopes ordered by their
// own (not Redis's) monotonic id.
func (s *Store) Iterate(ctx context.Context) ([]saga.Envelope, error) {
	msgs, err := s.client.XRange(ctx, s.streamKey, "-", "+").Result()
	if err != nil {
		return nil, saga.NewStorageFailure(errors.Wrap(ctx, err, errors.ErrCodeDatabase, "xrange"))
	}

	out := make([]saga.Envelope, 0, len(msgs))
	for _, m := range msgs {
		env, err := parseEnvelope(m.Values)
		if err != nil {
			return nil, saga.NewStorageFailure(errors.Wrap(ctx, err, errors.ErrCodeDatabase, "parse stream entry"))
		}
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Populate bulk-loads a historical prefix via a pipeline of XADDs,
// preserving each envelope's id as its envelope_id field.
func (s *Store) Populate(ctx context.Context, envelopes []saga.Envelope) error {
	existing, err := s.client.XLen(ctx, s.streamKey).Result()
	if err != nil {
		return saga.NewStorageFailure(errors.Wrap(ctx, err, errors.ErrCodeDatabase, "xlen"))
	}
	if existing > 0 {
		return saga.NewReplayInconsistency("populate called on a non-empty redis stream")
	}

	pipe := s.client.Pipeline()
	var maxID uint64
	for _, env := range envelopes {
		values := map[string]interface{}{
			fieldEnvelopeID: strconv.FormatUint(env.ID, 10),
			fieldKind:       string(env.Event.Kind),
			fieldRequestID:  strconv.Itoa(env.Event.RequestID),
			fieldCause:      env.Event.Cause,
			fieldBackward:   boolToField(env.Event.Backward),
		}
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: s.streamKey, Values: values})
		if env.ID > maxID {
			maxID = env.ID
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return saga.NewStorageFailure(errors.Wrap(ctx, err, errors.ErrCodeDatabase, "populate pipeline"))
	}

	s.gen = idgen.NewCounterFrom(maxID)
	return nil
}

func parseEnvelope(values map[string]interface{}) (saga.Envelope, error) {
	id, err := strconv.ParseUint(fmt.Sprint(values[fieldEnvelopeID]), 10, 64)
	if err != nil {
		return saga.Envelope{}, fmt.Errorf("parse envelope_id: %w", err)
	}
	requestID, err := strconv.Atoi(fmt.Sprint(values[fieldRequestID]))
	if err != nil {
		return saga.Envelope{}, fmt.Errorf("parse request_id: %w", err)
	}
	return saga.Envelope{
		ID: id,
		Event: saga.Event{
			Kind:      saga.EventKind(fmt.Sprint(values[fieldKind])),
			RequestID: requestID,
			Cause:     fmt.Sprint(values[fieldCause]),
			Backward:  fmt.Sprint(values[fieldBackward]) == "1",
		},
	}, nil
}

var _ saga.EventStore = (*Store)(nil)
