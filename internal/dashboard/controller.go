// Package dashboard loads a user's transactions from the remote API and keeps
// the rendered state consistent with it after create and delete.
//
// Mutations are never applied locally: a successful one is followed by a
// full reload of the three windows, and a failed one leaves the last
// known-good snapshot in place.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"uangku/internal/logging"
	"uangku/internal/metrics"
	"uangku/internal/models"
	"uangku/internal/storage"
	"uangku/internal/upstream"
)

var (
	// ErrBusy is returned when the item already has a mutation in flight.
	ErrBusy = errors.New("dashboard: mutation already in progress")
	// ErrRollback matches every *SyncError.
	ErrRollback = errors.New("dashboard: mutation rolled back")
	// ErrReconcile means the mutation succeeded but the reload failed.
	ErrReconcile = errors.New("dashboard: reload after mutation failed")
)

// SyncError is a mutation the API did not accept. LastKnownGood is the state
// to render instead.
type SyncError struct {
	Op            string
	Err           error
	LastKnownGood *models.Snapshot
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s rolled back: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool { return target == ErrRollback }

// State is an item's position in the mutation lifecycle.
type State int

const (
	Idle State = iota
	Pending
	Reconciling
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Reconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// TransactionAPI is the remote API as the controller uses it.
type TransactionAPI interface {
	ListTransactions(ctx context.Context, token string, w models.Window) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, token string, in models.NewTransaction) error
	DeleteTransaction(ctx context.Context, token string, id int64) error
}

// SnapshotStore persists the last known-good snapshot per user.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, userID int64, snap *models.Snapshot) error
	LoadSnapshot(ctx context.Context, userID int64) (*models.Snapshot, error)
}

type itemKey struct {
	userID int64
	itemID int64
}

// NewItemID is the item key used for create, which has no ID yet.
const NewItemID int64 = 0

// Controller is safe for concurrent use.
type Controller struct {
	api   TransactionAPI
	store SnapshotStore
	now   func() time.Time

	mu     sync.Mutex
	states map[itemKey]State
}

// NewController creates a controller.
func NewController(api TransactionAPI, store SnapshotStore) *Controller {
	return &Controller{
		api:    api,
		store:  store,
		now:    time.Now,
		states: make(map[itemKey]State),
	}
}

// Load fetches the day, week and month windows concurrently. Any failure
// fails the whole load. A successful load becomes the last known-good state.
func (c *Controller) Load(ctx context.Context, sess models.SessionData) (*models.Snapshot, error) {
	if !sess.Authenticated() {
		return nil, upstream.ErrNoToken
	}

	lists := make([][]models.Transaction, len(models.Windows))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range models.Windows {
		g.Go(func() error {
			txs, err := c.api.ListTransactions(gctx, sess.Token, w)
			if err != nil {
				return err
			}
			lists[i] = txs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}

	snap := &models.Snapshot{FetchedAt: c.now()}
	for i, w := range models.Windows {
		snap.SetWindow(w, lists[i])
	}

	if err := c.store.SaveSnapshot(ctx, sess.UserID, snap); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("user_id", sess.UserID).Msg("saving last known-good snapshot failed")
	}
	return snap, nil
}

// LastKnownGood returns the last snapshot loaded for userID, or an empty one.
func (c *Controller) LastKnownGood(ctx context.Context, userID int64) *models.Snapshot {
	snap, err := c.store.LoadSnapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			logging.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("reading last known-good snapshot failed")
		}
		return &models.Snapshot{}
	}
	return snap
}

// Create adds a transaction and returns the reloaded snapshot.
func (c *Controller) Create(ctx context.Context, sess models.SessionData, in models.NewTransaction) (*models.Snapshot, error) {
	return c.mutate(ctx, sess, "create", NewItemID, func() error {
		return c.api.CreateTransaction(ctx, sess.Token, in)
	})
}

// Delete removes a transaction and returns the reloaded snapshot.
func (c *Controller) Delete(ctx context.Context, sess models.SessionData, id int64) (*models.Snapshot, error) {
	return c.mutate(ctx, sess, "delete", id, func() error {
		return c.api.DeleteTransaction(ctx, sess.Token, id)
	})
}

func (c *Controller) mutate(ctx context.Context, sess models.SessionData, op string, itemID int64, dispatch func() error) (*models.Snapshot, error) {
	log := logging.Ctx(ctx).With().Str("op", op).Int64("user_id", sess.UserID).Int64("item_id", itemID).Logger()
	key := itemKey{userID: sess.UserID, itemID: itemID}

	if !c.begin(key) {
		metrics.SyncMutations.WithLabelValues(op, "busy").Inc()
		return nil, ErrBusy
	}
	defer c.set(key, Idle)

	if err := dispatch(); err != nil {
		log.Warn().Err(err).Msg("mutation failed, keeping last known-good state")
		metrics.SyncMutations.WithLabelValues(op, "rollback").Inc()
		return nil, &SyncError{Op: op, Err: err, LastKnownGood: c.LastKnownGood(ctx, sess.UserID)}
	}

	c.set(key, Reconciling)
	snap, err := c.Load(ctx, sess)
	if err != nil {
		log.Error().Err(err).Msg("reload after mutation failed")
		metrics.SyncMutations.WithLabelValues(op, "reconcile_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrReconcile, err)
	}

	metrics.SyncMutations.WithLabelValues(op, "reconciled").Inc()
	return snap, nil
}

// begin moves key from Idle to Pending.
func (c *Controller) begin(key itemKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[key] != Idle {
		return false
	}
	c.states[key] = Pending
	return true
}

func (c *Controller) set(key itemKey, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == Idle {
		delete(c.states, key)
		return
	}
	c.states[key] = s
}

// State reports where an item is in its mutation lifecycle.
func (c *Controller) State(userID, itemID int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[itemKey{userID: userID, itemID: itemID}]
}
