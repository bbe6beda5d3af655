package saga

import (
	"context"
	"errors"
	"sync"
	"time"

	"sagacore/dag"
	"sagacore/logging"
)

// compensator implements C8: derives the compensation set from the event
// log and dispatches compensations in reverse causal DAG order.
type compensator struct {
	dag     *dag.DAG[Request]
	store   EventStore
	logger  logging.ILogger
	backoff BackoffConfig
}

func newCompensator(d *dag.DAG[Request], store EventStore, logger logging.ILogger, backoff BackoffConfig) *compensator {
	return &compensator{dag: d, store: store, logger: logger, backoff: backoff}
}

// run reads the full event log, computes the compensation set S (every
// node with TransactionEnded but no matching CompensationEnded), drains it
// in reverse causal order, then appends the terminal backward-completed
// SagaEnded via the root's SagaStart.compensate.
func (c *compensator) run(ctx context.Context) error {
	envelopes, err := c.store.Iterate(ctx)
	if err != nil {
		return NewStorageFailure(err)
	}

	ended := map[int]bool{}
	compEnded := map[int]bool{}
	for _, e := range envelopes {
		switch e.Event.Kind {
		case TransactionEnded:
			ended[e.Event.RequestID] = true
		case CompensationEnded:
			compEnded[e.Event.RequestID] = true
		}
	}

	pending := map[int]bool{}
	for id := range ended {
		if !compEnded[id] {
			pending[id] = true
		}
	}

	if err := c.drain(ctx, pending); err != nil {
		return err
	}

	root := c.dag.Root()
	r := runnerFor(root.Value.Runner)
	if err := r.compensate(ctx, c.store, root.ID, root.Value); err != nil {
		return err
	}
	return nil
}

// drain repeatedly selects every pending node whose descendants (that are
// also pending) have already been compensated, dispatches that batch
// concurrently, and loops until the pending set is empty.
func (c *compensator) drain(ctx context.Context, pending map[int]bool) error {
	remaining := pending
	compensatedSoFar := map[int]bool{}

	for len(remaining) > 0 {
		var batch []int
		for id := range remaining {
			ready := true
			for _, child := range c.dag.ChildrenOf(id) {
				if remaining[child.ID] && !compensatedSoFar[child.ID] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			return NewReplayInconsistency("compensation planner stalled: remaining set has no dispatchable node (dependency cycle?)")
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(batch))
		for _, id := range batch {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				if err := c.compensateNode(ctx, id); err != nil {
					errs <- err
				}
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			return err
		}

		for _, id := range batch {
			compensatedSoFar[id] = true
			delete(remaining, id)
		}
	}
	return nil
}

// compensateNode retries a node's compensation until it succeeds — per
// spec §4.5/§7, compensation failures are always retried regardless of the
// transaction RecoveryPolicy in effect. A storage failure aborts the retry
// loop and bubbles up as fatal; a context cancelled during a backoff wait
// ends it with a CompensationFailure.
func (c *compensator) compensateNode(ctx context.Context, id int) error {
	n, ok := c.dag.NodeByID(id)
	if !ok {
		return NewReplayInconsistency("compensation set references unknown node")
	}
	r := runnerFor(n.Value.Runner)

	attempt := 0
	for {
		attempt++
		err := r.compensate(ctx, c.store, id, n.Value)
		if err == nil {
			return nil
		}

		var sagaErr *SagaError
		if errors.As(err, &sagaErr) && sagaErr.Code == ErrStorageFailure {
			return err
		}

		if c.logger != nil {
			c.logger.Warn(ctx, "compensation attempt failed, retrying",
				logging.Int("request_id", id), logging.Int("attempt", attempt), logging.Error(err))
		}

		delay := c.backoff.delayFor(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return NewCompensationFailure(id, ctx.Err())
		case <-timer.C:
		}
	}
}
