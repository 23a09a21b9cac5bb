// Package reconcile implements the in-memory set of commitments awaiting
// reveal, and the tick that hands due commitments to the Settlement
// Dispatcher.
package reconcile

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dicebet/settler/internal/contract"
)

// tickInterval is the fixed schedule the Reconciler runs on.
const tickInterval = 10 * time.Second

// progressLogEvery bounds log volume: an entry still waiting for its reveal
// block is logged once every this many blocks, not on every tick.
const progressLogEvery = 5

// PendingBet is a commitment awaiting settlement.
type PendingBet struct {
	Key         contract.Key
	AmountWei   *big.Int
	BetBig      bool
	CommitBlock uint64
	RevealBlock uint64
	TxHash      common.Hash
	ObservedAt  time.Time
}

// BlockNumberer is the subset of the Chain Transport the Reconciler needs.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dispatcher is the subset of the Settlement Dispatcher the Reconciler
// needs. Dispatch is expected to be non-blocking from the tick's
// perspective — dispatch.Dispatcher runs the actual submission in its own
// goroutine and reports back via Remove.
type Dispatcher interface {
	Dispatch(ctx context.Context, key contract.Key)
}

// Reconciler owns the PendingBet set; no other component mutates it
// directly.
type Reconciler struct {
	mu      sync.Mutex
	pending map[contract.Key]*PendingBet
	logged  map[contract.Key]uint64 // last block at which progress was logged

	transport  BlockNumberer
	dispatcher Dispatcher
	log        log.Logger
}

// New builds a Reconciler. SetDispatcher must be called before Tick is
// invoked (wiring order: Reconciler and Dispatcher reference each other).
func New(transport BlockNumberer) *Reconciler {
	return &Reconciler{
		pending:   make(map[contract.Key]*PendingBet),
		logged:    make(map[contract.Key]uint64),
		transport: transport,
		log:       log.New("component", "reconciler"),
	}
}

// SetDispatcher wires the Settlement Dispatcher after construction to break
// the Reconciler/Dispatcher initialization cycle.
func (r *Reconciler) SetDispatcher(d Dispatcher) {
	r.dispatcher = d
}

// Upsert replaces any prior entry for pb.Key. At most one PendingBet is
// kept per key; a later BetPlaced replaces the prior commit.
func (r *Reconciler) Upsert(pb PendingBet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := pb
	r.pending[pb.Key] = &cp
	delete(r.logged, pb.Key)
}

// Remove drops the entry for key, if present. Called on BetSettled
// observation or after a dispatch resolves.
func (r *Reconciler) Remove(key contract.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
	delete(r.logged, key)
}

// Get returns a copy of the pending entry for key, if present.
func (r *Reconciler) Get(key contract.Key) (PendingBet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pb, ok := r.pending[key]
	if !ok {
		return PendingBet{}, false
	}
	return *pb, true
}

// Len reports the number of pending commitments (used by the Status
// endpoint).
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Tick reads the current height, hands every due entry to the dispatcher,
// and leaves the rest in place. Iteration snapshots keys first so it is
// resilient to concurrent removal by the dispatcher callback.
func (r *Reconciler) Tick(ctx context.Context) {
	current, err := r.transport.BlockNumber(ctx)
	if err != nil {
		r.log.Warn("tick: block number read failed, skipping", "err", err)
		return
	}

	due, waiting := r.dueAndWaiting(current)

	for _, key := range due {
		r.log.Info("dispatching settlement", "key", key.String(), "currentBlock", current)
		r.dispatcher.Dispatch(ctx, key)
	}

	r.logProgress(waiting, current)
}

func (r *Reconciler) dueAndWaiting(current uint64) (due []contract.Key, waiting map[contract.Key]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiting = make(map[contract.Key]uint64)
	for key, pb := range r.pending {
		if current >= pb.RevealBlock {
			due = append(due, key)
		} else {
			waiting[key] = pb.RevealBlock
		}
	}
	return due, waiting
}

func (r *Reconciler) logProgress(waiting map[contract.Key]uint64, current uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, revealBlock := range waiting {
		last, seen := r.logged[key]
		blocksLeft := revealBlock - current
		if seen && current-last < progressLogEvery {
			continue
		}
		r.log.Debug("waiting for reveal block", "key", key.String(), "blocksLeft", blocksLeft, "revealBlock", revealBlock)
		r.logged[key] = current
	}
}

// TickInterval exposes the fixed schedule for callers that build their own
// timer loop.
func TickInterval() time.Duration { return tickInterval }
