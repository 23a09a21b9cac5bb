// Package service wires the settler's components together and owns the
// process lifecycle. There is no global singleton: callers construct a
// Service explicitly and drive it through Start/Stop, which makes it
// straightforward to run more than one in a test binary.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dicebet/settler/internal/chain"
	"github.com/dicebet/settler/internal/config"
	"github.com/dicebet/settler/internal/contract"
	"github.com/dicebet/settler/internal/dispatch"
	"github.com/dicebet/settler/internal/health"
	"github.com/dicebet/settler/internal/ingest"
	"github.com/dicebet/settler/internal/reconcile"
	"github.com/dicebet/settler/internal/store"
	"github.com/dicebet/settler/internal/supervisor"
)

// Service owns every long-running component of the settler daemon: the
// Chain Transport, the Connection Supervisor, the Event Ingestor, the
// Pending-Bet Reconciler, the Settlement Dispatcher, the Event Store, and
// the Health Surface.
type Service struct {
	cfg *config.Config
	log log.Logger

	transport  *chain.Transport
	supervisor *supervisor.Supervisor
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Dispatcher
	ingestor   *ingest.Ingestor
	store      store.Store
	health     *health.Server

	startTime time.Time
	cancel    context.CancelFunc
	tickDone  chan struct{}
}

// New dials the Chain Transport, opens the Event Store, reads revealDelay
// from the contract, and constructs and wires the remaining components. It
// starts no background loop; Start does that.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger := log.New("component", "service")

	parsedABI, err := contract.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("service: parse contract abi: %w", err)
	}

	contractAddr := common.HexToAddress(cfg.ContractAddress)

	transport, err := chain.Dial(ctx, cfg.RPCWSSURL, cfg.RPCURL, contractAddr, parsedABI, cfg.SettlerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("service: dial chain transport: %w", err)
	}

	st, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("service: open event store: %w", err)
	}

	revealDelay := contract.LoadRevealDelay(ctx, transport)

	reconciler := reconcile.New(transport)
	dispatcher := dispatch.New(transport, reconciler)
	reconciler.SetDispatcher(dispatcher)

	ingestor, err := ingest.New(transport, reconciler, st, parsedABI, revealDelay)
	if err != nil {
		transport.Close()
		st.Close()
		return nil, fmt.Errorf("service: build ingestor: %w", err)
	}

	sup := supervisor.New(transport)
	sup.OnConnected(ingestor.HandleConnected)

	startTime := time.Now()
	healthSrv := health.New(sup, st, reconciler, startTime)

	return &Service{
		cfg:        cfg,
		log:        logger,
		transport:  transport,
		supervisor: sup,
		reconciler: reconciler,
		dispatcher: dispatcher,
		ingestor:   ingestor,
		store:      st,
		health:     healthSrv,
		startTime:  startTime,
	}, nil
}

// Health exposes the Health Surface so cmd/settler can mount its routes.
func (s *Service) Health() *health.Server { return s.health }

// Start runs the startup checks (low balance warning, backfill pass) and
// launches every background loop: the Connection Supervisor, the Event
// Ingestor's subscription lifecycle, and the Reconciler's tick.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.warnIfLowBalance(ctx)

	if err := s.backfill(ctx); err != nil {
		s.log.Warn("startup backfill pass failed, continuing with live stream only", "err", err)
	}

	s.ingestor.Start(runCtx)
	go s.supervisor.Run(runCtx)

	s.tickDone = make(chan struct{})
	go s.runReconcilerTick(runCtx)

	s.log.Info("settler started", "contract", s.transport.ContractAddress().Hex(), "signer", s.transport.SignerAddress().Hex())
	return nil
}

// Stop runs the shutdown sequence in dependency order: stop the reconciler
// tick, drop the stream, close the store.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.tickDone != nil {
		<-s.tickDone
	}
	s.supervisor.Stop()
	s.transport.Close()
	if err := s.store.Close(); err != nil {
		s.log.Warn("error closing event store", "err", err)
	}
	s.log.Info("settler stopped")
}

func (s *Service) runReconcilerTick(ctx context.Context) {
	defer close(s.tickDone)

	ticker := time.NewTicker(reconcile.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconciler.Tick(ctx)
		}
	}
}

// warnIfLowBalance logs a warning if the signer's balance is too low to
// reliably keep submitting settlement transactions.
func (s *Service) warnIfLowBalance(ctx context.Context) {
	balance, err := s.transport.BalanceOf(ctx, s.transport.SignerAddress())
	if err != nil {
		s.log.Warn("failed to read settler balance at startup", "err", err)
		return
	}
	if balance.Cmp(config.LowBalanceThresholdWei) < 0 {
		s.log.Warn("settler balance below low-balance threshold", "balance", balance.String(), "thresholdWei", config.LowBalanceThresholdWei.String())
	}
}

// backfill catches the Event Store up on any blocks it missed while the
// process was down: it resumes from the highest block already recorded, or
// the configured contract deployment block if the store is empty, up to the
// current chain head. It deliberately never feeds the Reconciler — see
// ingest.Ingestor.Backfill.
func (s *Service) backfill(ctx context.Context) error {
	lastSeen, err := s.store.MaxBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read max block number: %w", err)
	}

	start := s.cfg.ContractDeployBlock
	if lastSeen > 0 && lastSeen+1 > start {
		start = lastSeen + 1
	}

	current, err := s.transport.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read current block number: %w", err)
	}

	if start >= current {
		s.log.Info("backfill: already caught up", "block", current)
		return nil
	}

	s.log.Info("backfill: starting", "from", start, "to", current)
	if err := s.ingestor.Backfill(ctx, start, current); err != nil {
		return err
	}
	s.log.Info("backfill: complete", "from", start, "to", current)
	return nil
}

// StatusLine renders the contract and signer addresses, used by
// cmd/settler for its startup banner.
func (s *Service) StatusLine() string {
	return strings.Join([]string{
		fmt.Sprintf("contract=%s", s.transport.ContractAddress().Hex()),
		fmt.Sprintf("signer=%s", s.transport.SignerAddress().Hex()),
	}, " ")
}
