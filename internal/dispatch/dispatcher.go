// Package dispatch submits settleBet transactions, waits for receipts, and
// interprets known terminal error messages as "already settled".
package dispatch

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dicebet/settler/internal/chain"
	"github.com/dicebet/settler/internal/contract"
	"github.com/dicebet/settler/internal/reconcile"
)

// receiptTimeout bounds how long a single dispatch waits for its receipt
// before giving up and letting the next tick retry.
const receiptTimeout = 90 * time.Second

// Submitter is the subset of the Chain Transport the Dispatcher needs.
type Submitter interface {
	SendTransaction(ctx context.Context, method string, args ...interface{}) (common.Hash, error)
	WaitReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error)
}

// Remover is the subset of the Reconciler the Dispatcher needs.
type Remover interface {
	Get(key contract.Key) (reconcile.PendingBet, bool)
	Remove(key contract.Key)
}

// Dispatcher is the Settlement Dispatcher.
type Dispatcher struct {
	transport  Submitter
	reconciler Remover
	log        log.Logger
}

// New builds a Dispatcher.
func New(transport Submitter, reconciler Remover) *Dispatcher {
	return &Dispatcher{
		transport:  transport,
		reconciler: reconciler,
		log:        log.New("component", "dispatcher"),
	}
}

// Dispatch submits a settleBet(roomId, player) call for key and resolves
// the outcome asynchronously so the Reconciler's tick loop never blocks on
// network I/O.
func (d *Dispatcher) Dispatch(ctx context.Context, key contract.Key) {
	go d.dispatchOnce(ctx, key)
}

func (d *Dispatcher) dispatchOnce(ctx context.Context, key contract.Key) {
	if _, ok := d.reconciler.Get(key); !ok {
		// Already removed (e.g. a concurrent BetSettled observation) —
		// nothing to do.
		return
	}

	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	roomID := new(big.Int).SetUint64(key.RoomID)
	txHash, err := d.transport.SendTransaction(ctx, contract.SettleBetMethod, roomID, key.Player)
	if err != nil {
		d.handleSendError(key, err)
		return
	}

	receipt, err := d.transport.WaitReceipt(ctx, txHash)
	if err != nil {
		d.log.Warn("settlement receipt wait failed, will retry next tick", "key", key.String(), "tx", txHash.Hex(), "err", err)
		return
	}

	if receipt.Status == 1 {
		d.reconciler.Remove(key)
		d.log.Info("settlement confirmed", "key", key.String(), "tx", txHash.Hex(), "block", receipt.BlockNumber)
		return
	}

	d.log.Error("settlement transaction reverted", "key", key.String(), "tx", txHash.Hex())
}

// handleSendError treats known idempotence markers as success-equivalent;
// everything else is non-fatal and left for the next tick.
func (d *Dispatcher) handleSendError(key contract.Key, err error) {
	if chain.IsIdempotenceError(err) {
		d.reconciler.Remove(key)
		d.log.Info("settlement already finalized by another settler, removing", "key", key.String(), "err", err)
		return
	}

	if chain.IsRetryable(err) {
		d.log.Warn("settlement submission failed transiently, will retry next tick", "key", key.String(), "err", err)
		return
	}

	d.log.Error("settlement submission failed, will retry next tick", "key", key.String(), "err", err)
}
