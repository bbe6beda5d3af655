package saga

// txStatus is a node's last known transaction status as of a given point
// in the log — later events for the same node supersede earlier ones, so
// a node that failed and was then retried to success is not mistaken for
// one still aborted (see the comment on `aborted` below).
type txStatus int

const (
	txNone txStatus = iota
	txStarted
	txEnded
	txAborted
)

// replayState is C9's reconstruction of scheduler runtime state from an
// event log prefix.
type replayState struct {
	completed        map[int]bool
	aborted          bool
	partiallyStarted map[int]bool
}

// replay consumes an ordered envelope sequence and reconstructs the state
// the scheduler must resume from. It never blocks and never touches the
// event store — it is a pure fold over the prefix handed to it.
func replay(envelopes []Envelope) *replayState {
	tx := map[int]txStatus{}
	compEnded := map[int]bool{}
	sagaStarted := map[int]bool{}
	sagaEndedForward := map[int]bool{}
	compensationSeen := false

	for _, e := range envelopes {
		switch e.Event.Kind {
		case SagaStarted:
			sagaStarted[e.Event.RequestID] = true
		case SagaEnded:
			if !e.Event.Backward {
				sagaEndedForward[e.Event.RequestID] = true
			}
		case TransactionStarted:
			tx[e.Event.RequestID] = txStarted
		case TransactionEnded:
			tx[e.Event.RequestID] = txEnded
		case TransactionAborted:
			tx[e.Event.RequestID] = txAborted
		case CompensationStarted:
			compensationSeen = true
		case CompensationEnded:
			compEnded[e.Event.RequestID] = true
			compensationSeen = true
		}
	}

	// aborted latches the saga into backward mode. A node's *last* recorded
	// transaction event is what matters, not merely whether a
	// TransactionAborted ever appeared for it: under forward recovery, a
	// node can abort one attempt and still go on to succeed on retry, and
	// that must not make an otherwise-forward-successful replayed log look
	// aborted (it would send an already-completed saga through
	// compensation on every subsequent replay, breaking idempotent replay,
	// I5). A node whose last status is txAborted, by contrast, means the
	// policy gave up on it for good — that is a genuine abort.
	aborted := compensationSeen
	for _, status := range tx {
		if status == txAborted {
			aborted = true
			break
		}
	}

	// completed drives the scheduler's readiness check, so alongside the
	// spec's TransactionEnded-based definition for Process nodes it also
	// folds in the SagaStart/SagaEnd sentinels' own completion events —
	// the scheduler treats all three task kinds uniformly when deciding
	// what is already done.
	completed := map[int]bool{}
	for id, status := range tx {
		if status == txEnded && !compEnded[id] {
			completed[id] = true
		}
	}
	for id := range sagaStarted {
		completed[id] = true
	}
	for id := range sagaEndedForward {
		completed[id] = true
	}

	// partiallyStarted ("hanging") nodes are those whose last recorded
	// event is TransactionStarted — no later TransactionEnded or
	// TransactionAborted superseded it — regardless of whether an earlier
	// attempt for the same node aborted before being retried.
	partiallyStarted := map[int]bool{}
	for id, status := range tx {
		if status == txStarted {
			partiallyStarted[id] = true
		}
	}
	return &replayState{
		completed:        completed,
		aborted:          aborted,
		partiallyStarted: partiallyStarted,
	}
}
