package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dicebet/settler/internal/chain"
	"github.com/dicebet/settler/internal/contract"
	"github.com/dicebet/settler/internal/reconcile"
)

type fakeSubmitter struct {
	sendErr    error
	receipt    *chain.Receipt
	receiptErr error
	txHash     common.Hash
}

func (f *fakeSubmitter) SendTransaction(context.Context, string, ...interface{}) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return f.txHash, nil
}

func (f *fakeSubmitter) WaitReceipt(context.Context, common.Hash) (*chain.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

type fakeRemover struct {
	mu      sync.Mutex
	pending map[contract.Key]reconcile.PendingBet
	removed []contract.Key
}

func newFakeRemover(keys ...contract.Key) *fakeRemover {
	r := &fakeRemover{pending: make(map[contract.Key]reconcile.PendingBet)}
	for _, k := range keys {
		r.pending[k] = reconcile.PendingBet{Key: k}
	}
	return r
}

func (f *fakeRemover) Get(key contract.Key) (reconcile.PendingBet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pb, ok := f.pending[key]
	return pb, ok
}

func (f *fakeRemover) Remove(key contract.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, key)
	f.removed = append(f.removed, key)
}

func (f *fakeRemover) wasRemoved(key contract.Key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.removed {
		if k == key {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcher_SuccessfulSettlement(t *testing.T) {
	key := contract.Key{RoomID: 1}
	remover := newFakeRemover(key)
	submitter := &fakeSubmitter{receipt: &chain.Receipt{Status: 1, BlockNumber: 10}}

	d := New(submitter, remover)
	d.Dispatch(context.Background(), key)

	waitFor(t, func() bool { return remover.wasRemoved(key) })
}

func TestDispatcher_RevertedReceiptLeavesKeyPending(t *testing.T) {
	key := contract.Key{RoomID: 1}
	remover := newFakeRemover(key)
	submitter := &fakeSubmitter{receipt: &chain.Receipt{Status: 0}}

	d := New(submitter, remover)
	d.Dispatch(context.Background(), key)

	time.Sleep(50 * time.Millisecond)
	if remover.wasRemoved(key) {
		t.Error("a reverted settlement must not remove the pending entry")
	}
	if _, ok := remover.Get(key); !ok {
		t.Error("key should still be pending for the next tick")
	}
}

func TestDispatcher_IdempotenceErrorRemovesKey(t *testing.T) {
	key := contract.Key{RoomID: 1}
	remover := newFakeRemover(key)
	submitter := &fakeSubmitter{sendErr: errors.New("no valid bet found")}

	d := New(submitter, remover)
	d.Dispatch(context.Background(), key)

	waitFor(t, func() bool { return remover.wasRemoved(key) })
}

func TestDispatcher_RetryableErrorLeavesKeyPending(t *testing.T) {
	key := contract.Key{RoomID: 1}
	remover := newFakeRemover(key)
	submitter := &fakeSubmitter{sendErr: &chain.TransportError{Retryable: true, Cause: errors.New("connection reset by peer")}}

	d := New(submitter, remover)
	d.Dispatch(context.Background(), key)

	time.Sleep(50 * time.Millisecond)
	if remover.wasRemoved(key) {
		t.Error("a retryable submission error must not remove the pending entry")
	}
}

func TestDispatcher_SkipsAlreadyRemovedKey(t *testing.T) {
	key := contract.Key{RoomID: 1}
	remover := newFakeRemover() // key not pending
	submitter := &fakeSubmitter{receipt: &chain.Receipt{Status: 1}}

	d := New(submitter, remover)
	d.Dispatch(context.Background(), key)

	time.Sleep(50 * time.Millisecond)
	if remover.wasRemoved(key) {
		t.Error("Remove should not be called for a key that was never pending")
	}
}
