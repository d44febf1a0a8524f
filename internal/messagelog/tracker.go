package messagelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codesan-git/blasting-be/internal/obs"
)

// Tracker drives the per-message state machine. Two entry points feed it:
// the worker path keyed by job id (synchronous, after each attempt) and the
// webhook path keyed by provider message id (asynchronous, possibly late).
// Both are last-write-wins by design; the worst case is a briefly stale
// status that self-corrects on the next event.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(store Store) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("message log store is required")
	}
	return &Tracker{store: store, now: time.Now}, nil
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(fn func() time.Time) {
	if fn != nil {
		t.now = fn
	}
}

// JobUpdate carries the optional fields of a worker-path update.
type JobUpdate struct {
	ErrorMessage string
	MessageID    string
	Attempts     int
}

// UpdateByJobID records a worker-side transition for the row owning jobID.
func (t *Tracker) UpdateByJobID(ctx context.Context, jobID string, status Status, u JobUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	upd := Update{Status: &status}
	if u.ErrorMessage != "" {
		upd.ErrorMessage = &u.ErrorMessage
	}
	if u.MessageID != "" {
		upd.MessageID = &u.MessageID
	}
	if u.Attempts > 0 {
		upd.Attempts = &u.Attempts
	}
	return t.store.UpdateByJobID(ctx, jobID, upd)
}

// UpdateByMessageID records a provider-side status report. It never touches
// the attempt counter and is idempotent. Rules:
//   - "delivered" collapses into the persisted "sent" state;
//   - "read" is logged only, no state change;
//   - a settled row never reopens: failed stays failed, and a late "failed"
//     report for an already sent row is ignored (a fresh send gets a new
//     job id);
//   - an unknown message id is a warning, not an error: webhook callers must
//     always be acknowledged to avoid provider retry storms.
func (t *Tracker) UpdateByMessageID(ctx context.Context, messageID string, status string, errorMessage string) error {
	row, err := t.store.FindByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.Warn("status update for unknown message id", map[string]any{
				"message_id": messageID,
				"status":     status,
			})
			return nil
		}
		return err
	}

	var next Status
	switch status {
	case "sent", "delivered":
		next = StatusSent
	case "read":
		obs.Info("message read", map[string]any{
			"message_id": messageID,
			"job_id":     row.JobID,
		})
		return nil
	case "failed":
		next = StatusFailed
	default:
		obs.Warn("unrecognised provider status", map[string]any{
			"message_id": messageID,
			"status":     status,
		})
		return nil
	}

	if row.Status == StatusFailed || (row.Status == StatusSent && next == StatusFailed) {
		// Settled: late provider reports never reopen a finished row.
		obs.Info("ignoring status update for settled message", map[string]any{
			"message_id": messageID,
			"current":    string(row.Status),
			"status":     status,
		})
		return nil
	}
	if row.Status == next {
		return nil
	}

	upd := Update{Status: &next}
	if errorMessage != "" {
		upd.ErrorMessage = &errorMessage
	}
	return t.store.UpdateByMessageID(ctx, messageID, upd)
}

// Store exposes the underlying store for query/stats paths.
func (t *Tracker) Store() Store {
	return t.store
}
