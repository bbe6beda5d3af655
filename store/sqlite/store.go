// Package sqlite implements saga.EventStore over a single SQLite table,
// the reference "persistent storage for the event log" the core spec
// keeps external to itself (append-and-iterate only; the physical layout
// is this package's business, never the saga package's).
package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"sagacore/errors"
	"sagacore/idgen"
	"sagacore/saga"
)

const schema = `
CREATE TABLE IF NOT EXISTS envelopes (
	id         INTEGER PRIMARY KEY,
	kind       TEXT NOT NULL,
	request_id INTEGER NOT NULL,
	cause      TEXT NOT NULL DEFAULT '',
	backward   INTEGER NOT NULL DEFAULT 0
);
`

// Store is a durable saga.EventStore backed by a SQLite database file (or
// an in-memory database when dsn is ":memory:").
type Store struct {
	db  *sql.DB
	gen idgen.Generator
}

// Open connects to the SQLite database at dsn, creates the envelopes
// table if needed, and loads the id generator's starting point from any
// rows already present (so a reopened store continues the id sequence
// rather than colliding with it).
func Open(dsn string) (*Store, error) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "open sqlite"))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "create schema"))
	}

	var maxID sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(id) FROM envelopes`).Scan(&maxID); err != nil {
		db.Close()
		return nil, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "load max id"))
	}

	return &Store{db: db, gen: idgen.NewCounterFrom(uint64(maxID.Int64))}, nil
}

// Close releases the underlying *sql.DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append runs inside a transaction: assigns the id via the id generator,
// inserts the row, and commits before returning — durable and visible to
// readers atomically, per the EventStore contract.
func (s *Store) Append(ctx context.Context, event saga.Event) (saga.Envelope, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return saga.Envelope{}, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "begin append tx"))
	}
	defer tx.Rollback()

	id := s.gen.NextID()
	backward := 0
	if event.Backward {
		backward = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO envelopes (id, kind, request_id, cause, backward) VALUES (?, ?, ?, ?, ?)`,
		id, string(event.Kind), event.RequestID, event.Cause, backward,
	); err != nil {
		return saga.Envelope{}, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "insert envelope"))
	}
	if err := tx.Commit(); err != nil {
		return saga.Envelope{}, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "commit append tx"))
	}

	return saga.Envelope{ID: id, Event: event}, nil
}

// Iterate returns every envelope ordered by id (= insertion order).
func (s *Store) Iterate(ctx context.Context) ([]saga.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, request_id, cause, backward FROM envelopes ORDER BY id ASC`)
	if err != nil {
		return nil, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "iterate envelopes"))
	}
	defer rows.Close()

	var out []saga.Envelope
	for rows.Next() {
		var (
			id        uint64
			kind      string
			requestID int
			cause     string
			backward  int
		)
		if err := rows.Scan(&id, &kind, &requestID, &cause, &backward); err != nil {
			return nil, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "scan envelope row"))
		}
		out = append(out, saga.Envelope{
			ID: id,
			Event: saga.Event{
				Kind:      saga.EventKind(kind),
				RequestID: requestID,
				Cause:     cause,
				Backward:  backward != 0,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "iterate envelope rows"))
	}
	return out, nil
}

// Populate bulk-loads a historical prefix preserving ids. It is the
// caller's responsibility to only call this before any live Append, per
// the EventStore contract; this implementation additionally refuses if
// the table is non-empty to make the violation loud rather than silently
// corrupting id ordering.
func (s *Store) Populate(ctx context.Context, envelopes []saga.Envelope) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM envelopes`).Scan(&count); err != nil {
		return saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "count envelopes"))
	}
	if count > 0 {
		return saga.NewReplayInconsistency("populate called on a non-empty sqlite event store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "begin populate tx"))
	}
	defer tx.Rollback()

	var maxID uint64
	for _, env := range envelopes {
		backward := 0
		if env.Event.Backward {
			backward = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO envelopes (id, kind, request_id, cause, backward) VALUES (?, ?, ?, ?, ?)`,
			env.ID, string(env.Event.Kind), env.Event.RequestID, env.Event.Cause, backward,
		); err != nil {
			return saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "insert populated envelope"))
		}
		if env.ID > maxID {
			maxID = env.ID
		}
	}
	if err := tx.Commit(); err != nil {
		return saga.NewStorageFailure(errors.WrapDatabaseError(ctx, err, "commit populate tx"))
	}

	s.gen = idgen.NewCounterFrom(maxID)
	return nil
}

var _ saga.EventStore = (*Store)(nil)
