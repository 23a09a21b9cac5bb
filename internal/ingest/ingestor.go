// Package ingest subscribes to BetPlaced/BetSettled logs, decodes them, and
// fans each one out to the Event Store and the Pending-Bet Reconciler.
package ingest

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dicebet/settler/internal/chain"
	"github.com/dicebet/settler/internal/contract"
	"github.com/dicebet/settler/internal/reconcile"
	"github.com/dicebet/settler/internal/store"
)

// dedupeSize bounds the in-memory set of recently-seen BetSettled
// transaction hashes so it can't grow without bound over a long-running
// process.
const dedupeSize = 10_000

// backfillChunk is the block span per FilterLogs call during the startup
// backfill pass, chosen to stay well under typical node response-size
// limits.
const backfillChunk = 10_000

// Transport is the subset of the Chain Transport the Ingestor needs.
type Transport interface {
	SubscribeLogs(ctx context.Context, topic0 []common.Hash) (chan types.Log, ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*chain.BlockHeader, error)
	FilterLogs(ctx context.Context, topic0 []common.Hash, from, to uint64) ([]types.Log, error)
}

// Reconciler is the subset of the Pending-Bet Reconciler the Ingestor needs.
type Reconciler interface {
	Upsert(pb reconcile.PendingBet)
	Remove(key contract.Key)
	Get(key contract.Key) (reconcile.PendingBet, bool)
}

// Ingestor is the Event Ingestor.
type Ingestor struct {
	transport  Transport
	reconciler Reconciler
	store      store.Store

	abi         abi.ABI
	betPlacedID common.Hash
	betSettled  common.Hash

	revealDelay uint64
	dedupe      *lru.Cache[common.Hash, struct{}]

	mu  sync.Mutex
	ctx context.Context

	lastSeenBlock atomic.Uint64
	mismatches    atomic.Uint64
	orphans       atomic.Uint64

	log log.Logger
}

// New builds an Ingestor. revealDelay is the value loaded once at startup
// by internal/contract.LoadRevealDelay.
func New(transport Transport, reconciler Reconciler, st store.Store, parsedABI abi.ABI, revealDelay uint64) (*Ingestor, error) {
	dedupe, err := lru.New[common.Hash, struct{}](dedupeSize)
	if err != nil {
		return nil, err
	}

	return &Ingestor{
		transport:   transport,
		reconciler:  reconciler,
		store:       st,
		abi:         parsedABI,
		betPlacedID: parsedABI.Events[contract.BetPlacedEvent].ID,
		betSettled:  parsedABI.Events[contract.BetSettledEvent].ID,
		revealDelay: revealDelay,
		dedupe:      dedupe,
		log:         log.New("component", "ingestor"),
	}, nil
}

// Start records the base context used for (re)subscriptions. Call this
// once before the Connection Supervisor starts running; HandleConnected
// does nothing until it has been called.
func (ig *Ingestor) Start(ctx context.Context) {
	ig.mu.Lock()
	ig.ctx = ctx
	ig.mu.Unlock()
}

// HandleConnected is registered with the Connection Supervisor's
// OnConnected hook, so a fresh subscription is opened on every connect and
// reconnect.
func (ig *Ingestor) HandleConnected(reconnected bool) {
	ig.mu.Lock()
	ctx := ig.ctx
	ig.mu.Unlock()
	if ctx == nil {
		return
	}
	go ig.run(ctx, reconnected)
}

func (ig *Ingestor) run(ctx context.Context, reconnected bool) {
	logs, sub, err := ig.transport.SubscribeLogs(ctx, []common.Hash{ig.betPlacedID, ig.betSettled})
	if err != nil {
		ig.log.Warn("subscribe to contract events failed", "err", err)
		return
	}
	defer sub.Unsubscribe()

	if reconnected {
		ig.log.Info("re-subscribed to contract events after reconnect")
	} else {
		ig.log.Info("subscribed to contract events")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				ig.log.Warn("log subscription error", "err", err)
			}
			return
		case vLog := <-logs:
			ig.handleLog(ctx, vLog)
		}
	}
}

func (ig *Ingestor) handleLog(ctx context.Context, vLog types.Log) {
	if vLog.Removed || len(vLog.Topics) == 0 {
		return
	}
	if vLog.BlockNumber > 0 {
		ig.lastSeenBlock.Store(vLog.BlockNumber)
	}

	switch vLog.Topics[0] {
	case ig.betPlacedID:
		ig.handleBetPlaced(ctx, vLog, true)
	case ig.betSettled:
		ig.handleBetSettled(ctx, vLog, true)
	}
}

// handleBetPlaced decodes and persists a BetPlaced log. live=false is used
// by Backfill: the Event Store is still written, but the in-memory
// Reconciler is left untouched, since a restart resumes pending state from
// the live stream head rather than resurrecting it from history.
func (ig *Ingestor) handleBetPlaced(ctx context.Context, vLog types.Log, live bool) {
	decoded, err := contract.DecodeBetPlaced(ig.abi, vLog)
	if err != nil {
		ig.log.Warn("failed to decode BetPlaced log", "tx", vLog.TxHash.Hex(), "err", err)
		return
	}

	currentBlock := ig.resolveCurrentBlock(ctx, decoded.BlockNumber)
	localRevealBlock := currentBlock + ig.revealDelay

	if localRevealBlock != decoded.RevealBlockFromLog {
		ig.mismatches.Add(1)
		ig.log.Debug("reveal block mismatch between event and local computation",
			"key", contract.KeyOf(decoded.RoomID, decoded.Player).String(),
			"eventRevealBlock", decoded.RevealBlockFromLog,
			"localRevealBlock", localRevealBlock)
	}

	blockTimestamp := ig.blockTimestamp(ctx, decoded.BlockNumber)

	rec := &store.EventRecord{
		EventType:       store.EventBetPlaced,
		RoomID:          decoded.RoomID.Uint64(),
		Player:          strings.ToLower(decoded.Player.Hex()),
		BlockNumber:     decoded.BlockNumber,
		BlockTimestamp:  blockTimestamp,
		LogIndex:        decoded.LogIndex,
		TransactionHash: decoded.TxHash.Hex(),
		AmountWei:       decoded.AmountWei,
		BetBig:          decoded.BetBig,
		CommitBlock:     decoded.CommitBlock,
		// Persist the event's own value; the Reconciler reconciles against
		// the locally computed one.
		RevealBlock: decoded.RevealBlockFromLog,
	}
	if _, err := ig.store.Append(ctx, rec); err != nil {
		ig.log.Error("failed to persist BetPlaced event", "tx", vLog.TxHash.Hex(), "err", err)
	}

	key := contract.KeyOf(decoded.RoomID, decoded.Player)
	if live {
		ig.reconciler.Upsert(reconcile.PendingBet{
			Key:         key,
			AmountWei:   decoded.AmountWei,
			BetBig:      decoded.BetBig,
			CommitBlock: decoded.CommitBlock,
			RevealBlock: localRevealBlock,
			TxHash:      decoded.TxHash,
			ObservedAt:  time.Now(),
		})
	}

	ig.log.Info("BetPlaced", "key", key.String(), "amountWei", decoded.AmountWei, "revealBlock", localRevealBlock, "live", live)
}

// resolveCurrentBlock prefers the log's own block number, falls back to a
// live BlockNumber() query, and falls back to the highest block number
// observed on the stream so far only as a last resort, when both the event
// and the RPC read are unavailable. This is a deliberate approximation
// rather than a true wall-clock estimate; see DESIGN.md.
func (ig *Ingestor) resolveCurrentBlock(ctx context.Context, eventBlockNumber uint64) uint64 {
	if eventBlockNumber > 0 {
		return eventBlockNumber
	}
	if n, err := ig.transport.BlockNumber(ctx); err == nil {
		return n
	}
	return ig.lastSeenBlock.Load()
}

func (ig *Ingestor) blockTimestamp(ctx context.Context, blockNumber uint64) time.Time {
	header, err := ig.transport.GetBlock(ctx, blockNumber)
	if err != nil {
		ig.log.Warn("failed to fetch block header, using receive time", "block", blockNumber, "err", err)
		return time.Now().UTC()
	}
	return time.Unix(int64(header.Timestamp), 0).UTC()
}

// handleBetSettled decodes and persists a BetSettled log. live=false is
// used by Backfill: the Reconciler is never consulted or mutated, since a
// backfilled BetPlaced never entered it in the first place.
func (ig *Ingestor) handleBetSettled(ctx context.Context, vLog types.Log, live bool) {
	if _, dup := ig.dedupe.Get(vLog.TxHash); dup {
		return
	}
	ig.dedupe.Add(vLog.TxHash, struct{}{})

	decoded, err := contract.DecodeBetSettled(ig.abi, vLog)
	if err != nil {
		ig.log.Warn("failed to decode BetSettled log", "tx", vLog.TxHash.Hex(), "err", err)
		return
	}

	key := contract.KeyOf(decoded.RoomID, decoded.Player)

	var resultBlock uint64
	if live {
		pending, hadPending := ig.reconciler.Get(key)
		ig.reconciler.Remove(key)
		if hadPending {
			resultBlock = pending.RevealBlock
		}
	}

	reward := decoded.AmountWei
	if !decoded.Won {
		reward = big.NewInt(0)
	}

	rec := &store.EventRecord{
		EventType:       store.EventBetSettled,
		RoomID:          decoded.RoomID.Uint64(),
		Player:          strings.ToLower(decoded.Player.Hex()),
		BlockNumber:     decoded.BlockNumber,
		BlockTimestamp:  ig.blockTimestamp(ctx, decoded.BlockNumber),
		LogIndex:        decoded.LogIndex,
		TransactionHash: decoded.TxHash.Hex(),
		RewardAmountWei: reward,
		Won:             decoded.Won,
		HashValue:       decoded.HashValue,
		BlockHash:       decoded.BlockHash.Hex(),
		ResultBlock:     resultBlock,
		BetID:           decoded.BetID.String(),
	}
	settledID, err := ig.store.Append(ctx, rec)
	if err != nil {
		ig.log.Error("failed to persist BetSettled event", "tx", vLog.TxHash.Hex(), "err", err)
		return
	}

	ig.correlate(ctx, key, settledID)

	ig.log.Info("BetSettled", "key", key.String(), "won", decoded.Won, "big", contract.IsBig(decoded.HashValue), "reward", reward)
}

// correlate links a settled bet back to its originating BetPlaced row, if
// one is still on record.
func (ig *Ingestor) correlate(ctx context.Context, key contract.Key, settledID int64) {
	unprocessed := false
	placed, err := ig.store.FindOne(ctx, store.FindOneQuery{
		EventType: store.EventBetPlaced,
		RoomID:    key.RoomID,
		Player:    strings.ToLower(key.Player.Hex()),
		Processed: &unprocessed,
	})
	if err != nil {
		ig.log.Warn("correlation lookup failed", "key", key.String(), "err", err)
		return
	}
	if placed == nil {
		ig.orphans.Add(1)
		ig.log.Debug("orphan settlement: no prior BetPlaced found", "key", key.String())
		return
	}

	if err := ig.store.UpdateLink(ctx, placed.ID, settledID); err != nil {
		ig.log.Warn("failed to link BetPlaced/BetSettled", "key", key.String(), "err", err)
	}
}

// Backfill walks [from, to] in fixed-size chunks, decoding and persisting
// every BetPlaced/BetSettled log to the Event Store. It never touches the
// Reconciler: on restart, pending state resumes from the live stream head
// rather than being resurrected from history, so feeding backfilled
// commitments into the Reconciler would contradict that.
func (ig *Ingestor) Backfill(ctx context.Context, from, to uint64) error {
	if from > to {
		return nil
	}

	topics := []common.Hash{ig.betPlacedID, ig.betSettled}
	for start := from; start <= to; start += backfillChunk {
		end := start + backfillChunk - 1
		if end > to {
			end = to
		}

		logs, err := ig.transport.FilterLogs(ctx, topics, start, end)
		if err != nil {
			return err
		}

		for _, vLog := range logs {
			if vLog.Removed || len(vLog.Topics) == 0 {
				continue
			}
			switch vLog.Topics[0] {
			case ig.betPlacedID:
				ig.handleBetPlaced(ctx, vLog, false)
			case ig.betSettled:
				ig.handleBetSettled(ctx, vLog, false)
			}
		}

		ig.log.Info("backfill chunk complete", "from", start, "to", end, "logs", len(logs))
	}

	return nil
}

// RevealBlockMismatches is the diagnostic counter for cases where the
// event's revealBlockFromEvent disagreed with the locally computed value.
func (ig *Ingestor) RevealBlockMismatches() uint64 { return ig.mismatches.Load() }

// OrphanSettlements counts BetSettled events that arrived with no prior
// local BetPlaced record.
func (ig *Ingestor) OrphanSettlements() uint64 { return ig.orphans.Load() }

// LastSeenBlock returns the highest block number observed on the stream.
func (ig *Ingestor) LastSeenBlock() uint64 { return ig.lastSeenBlock.Load() }
