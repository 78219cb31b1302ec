// Package syncer replays the sync queue against the remote API.
//
// The queue is a single FIFO. The drainer keeps per-entity order on top of
// it: once a change to an entity fails, later changes to the same entity
// wait for the next pass. Conflicts are resolved in favour of the server;
// the superseded local change is kept as a draft.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

// Queue is the part of the sync queue the drainer consumes.
type Queue interface {
	GetPendingChanges(ctx context.Context) ([]models.SyncOperation, error)
	RemoveSyncedChange(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) (int, error)
}

// Replayer applies one queued change to the remote API. Errors wrapping
// ErrConflict or ErrRejected are final; any other error is retried.
type Replayer interface {
	Replay(ctx context.Context, op models.SyncOperation) error
}

// DraftSink stores changes the server did not accept.
type DraftSink interface {
	Put(ctx context.Context, d models.Draft) error
}

type Options struct {
	// MaxRetries is the retry count at which a change stops being replayed.
	// It stays queued for the user to resolve.
	MaxRetries int
	// PollInterval is the pause between passes that had no failures.
	PollInterval time.Duration
	// InitialInterval and MaxInterval bound the exponential backoff used
	// after a failing pass.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

const (
	DefaultMaxRetries      = 5
	DefaultPollInterval    = 30 * time.Second
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 5 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = DefaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = DefaultMaxInterval
	}
	return o
}

// Result tallies one drain pass.
type Result struct {
	Synced    int `json:"synced"`
	Conflicts int `json:"conflicts"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
	// Deferred changes were skipped because an earlier change to the same
	// entity failed or is exhausted.
	Deferred int `json:"deferred"`
	// Exhausted changes reached MaxRetries and were not replayed.
	Exhausted int `json:"exhausted"`
}

type Drainer struct {
	queue    Queue
	replayer Replayer
	drafts   DraftSink
	opts     Options
	log      logging.Logger
	now      func() time.Time
}

func New(queue Queue, replayer Replayer, drafts DraftSink, opts Options, log logging.Logger) *Drainer {
	return &Drainer{
		queue:    queue,
		replayer: replayer,
		drafts:   drafts,
		opts:     opts.withDefaults(),
		log:      log.With("module", "syncer"),
		now:      time.Now,
	}
}

func entityKey(op models.SyncOperation) string {
	if op.EntityID == "" {
		return ""
	}
	return string(op.EntityType) + "/" + op.EntityID
}

// Drain makes one pass over the queue in enqueue order.
func (d *Drainer) Drain(ctx context.Context) (Result, error) {
	var res Result

	ops, err := d.queue.GetPendingChanges(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending changes: %w", err)
	}

	blocked := make(map[string]struct{})
	block := func(op models.SyncOperation) {
		if key := entityKey(op); key != "" {
			blocked[key] = struct{}{}
		}
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, ok := blocked[entityKey(op)]; ok {
			res.Deferred++
			continue
		}
		if op.RetryCount >= d.opts.MaxRetries {
			res.Exhausted++
			block(op)
			continue
		}

		ctx := logging.WithFields(ctx, "op_id", op.ID, "entity_type", op.EntityType, "trip_id", op.TripID)
		err := d.replayer.Replay(ctx, op)
		switch {
		case err == nil:
			if err := d.queue.RemoveSyncedChange(ctx, op.ID); err != nil {
				return res, err
			}
			res.Synced++
			replayedTotal.WithLabelValues("synced").Inc()

		case errors.Is(err, ErrConflict):
			if err := d.park(ctx, op, models.DraftConflict, err); err != nil {
				return res, err
			}
			// later changes of this entity wait for the next pass
			block(op)
			res.Conflicts++
			replayedTotal.WithLabelValues("conflict").Inc()

		case errors.Is(err, ErrRejected):
			if err := d.park(ctx, op, models.DraftRejected, err); err != nil {
				return res, err
			}
			res.Rejected++
			replayedTotal.WithLabelValues("rejected").Inc()

		case ctx.Err() != nil:
			return res, ctx.Err()

		default:
			n, ierr := d.queue.IncrementRetryCount(ctx, op.ID)
			if ierr != nil {
				return res, ierr
			}
			d.log.Warn(ctx, "replay failed", "retry_count", n, "error", err)
			res.Failed++
			block(op)
			replayedTotal.WithLabelValues("failed").Inc()
		}
	}

	drainPasses.Inc()
	if len(ops) > 0 {
		d.log.Info(ctx, "drain pass done", "synced", res.Synced, "conflicts", res.Conflicts, "rejected", res.Rejected,
			"failed", res.Failed, "deferred", res.Deferred, "exhausted", res.Exhausted)
	}
	return res, nil
}

// park moves op out of the queue into the draft store.
func (d *Drainer) park(ctx context.Context, op models.SyncOperation, reason models.DraftReason, cause error) error {
	draft := models.Draft{
		ID:         uuid.NewString(),
		TripID:     op.TripID,
		EntityType: op.EntityType,
		EntityID:   op.EntityID,
		Payload:    op.Payload,
		Reason:     reason,
		Detail:     cause.Error(),
		UpdatedAt:  d.now(),
	}
	if err := d.drafts.Put(ctx, draft); err != nil {
		return fmt.Errorf("keep %s change %d as draft: %w", reason, op.ID, err)
	}
	if err := d.queue.RemoveSyncedChange(ctx, op.ID); err != nil {
		return err
	}
	d.log.Warn(ctx, "queued change parked as draft", "reason", reason, "draft_id", draft.ID, "error", cause)
	return nil
}

// Run drains the queue until ctx is done. A pass that fails or leaves
// failed changes behind is followed by an exponentially growing pause.
func (d *Drainer) Run(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.opts.InitialInterval
	exp.MaxInterval = d.opts.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	for {
		res, err := d.Drain(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := d.opts.PollInterval
		if err != nil || res.Failed > 0 {
			wait = exp.NextBackOff()
			if err != nil {
				d.log.Error(ctx, "drain pass aborted", "error", err, "retry_in", wait)
			}
		} else {
			exp.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
