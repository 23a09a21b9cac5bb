// Package supervisor owns the streaming connection's lifecycle: it watches
// the block heartbeat, reconnects with bounded exponential backoff, and
// re-emits connected/reconnected signals so listeners (the Event Ingestor)
// know when to (re)subscribe.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// State is the Connection Supervisor's state machine position:
//
//	INIT → CONNECTING → CONNECTED ⇄ RECONNECTING → CONNECTED
//	                        │
//	                        └→ STALE (no block for T_stale) → RECONNECTING
type State int

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStale
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

const (
	// staleThreshold is how long the stream can go without a heartbeat
	// before it's forced to reconnect.
	staleThreshold = 120 * time.Second
	// monitorInterval is how often the watch loop checks for staleness.
	monitorInterval = 60 * time.Second
	// maxBackoff caps the reconnect delay.
	maxBackoff = 30 * time.Second
	// defaultMaxAttempts is how many consecutive connect failures are
	// backed off and retried before the supervisor gives up: on the next
	// failure Run returns and the state stays RECONNECTING.
	defaultMaxAttempts = 10
)

// HeadSubscriber is the subset of the Chain Transport the supervisor needs:
// redial the stream and subscribe to new block headers as a heartbeat.
type HeadSubscriber interface {
	RedialStream(ctx context.Context) error
	SubscribeNewHead(ctx context.Context) (chan *types.Header, ethereum.Subscription, error)
}

// Snapshot is a point-in-time read of the Supervisor's connection state.
type Snapshot struct {
	State             State
	IsConnected       bool
	LastBlockAt       time.Time
	ReconnectAttempts uint32
}

// Supervisor implements the Connection Supervisor.
type Supervisor struct {
	transport   HeadSubscriber
	maxAttempts int

	mu                sync.Mutex
	state             State
	lastBlockAt       time.Time
	reconnectAttempts uint32

	listeners []func(reconnected bool)
	listenMu  sync.Mutex

	log log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Supervisor around the given Chain Transport.
func New(transport HeadSubscriber) *Supervisor {
	return &Supervisor{
		transport:   transport,
		maxAttempts: defaultMaxAttempts,
		state:       StateInit,
		log:         log.New("component", "supervisor"),
		done:        make(chan struct{}),
	}
}

// OnConnected registers a listener invoked every time the stream becomes
// connected, with reconnected=false on the first connect and true on every
// subsequent reconnect. The Event Ingestor uses this to know when it needs
// to re-subscribe.
func (s *Supervisor) OnConnected(fn func(reconnected bool)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns the current StreamState.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:             s.state,
		IsConnected:       s.state == StateConnected,
		LastBlockAt:       s.lastBlockAt,
		ReconnectAttempts: s.reconnectAttempts,
	}
}

// Run establishes the initial connection and supervises it until ctx is
// cancelled, Stop is called, or more than maxAttempts consecutive connect
// attempts have failed. It is intended to be run as a background goroutine.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	reconnected := false
	for {
		if ctx.Err() != nil {
			s.setState(StateInit)
			return
		}

		s.setState(StateConnecting)
		headers, sub, err := s.connect(ctx)
		if err != nil {
			s.log.Warn("connect failed", "err", err)
			if !s.backoff(ctx) {
				return
			}
			reconnected = true
			continue
		}

		s.onConnect(reconnected)
		s.resetBackoff()
		reconnected = true

		stale := s.watch(ctx, headers, sub)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return
		}
		if stale {
			s.log.Warn("stream stale, forcing reconnect", "staleFor", time.Since(s.lastHeartbeat()))
		}
		s.setState(StateReconnecting)
	}
}

// Stop cancels the supervisor's timers and subscription and marks the
// stream disconnected.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-s.done
	}
	s.setState(StateInit)
}

func (s *Supervisor) connect(ctx context.Context) (chan *types.Header, ethereum.Subscription, error) {
	if err := s.transport.RedialStream(ctx); err != nil {
		return nil, nil, err
	}
	return s.transport.SubscribeNewHead(ctx)
}

// watch consumes block headers until the subscription errors, the stream
// goes stale, or ctx is cancelled. It returns true if it exited due to
// staleness.
func (s *Supervisor) watch(ctx context.Context, headers chan *types.Header, sub ethereum.Subscription) bool {
	s.touchHeartbeat()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-sub.Err():
			if err != nil {
				s.log.Warn("stream subscription error", "err", err)
			}
			return false
		case <-headers:
			s.touchHeartbeat()
		case <-ticker.C:
			if time.Since(s.lastHeartbeat()) >= staleThreshold {
				s.setState(StateStale)
				return true
			}
		}
	}
}

func (s *Supervisor) touchHeartbeat() {
	s.mu.Lock()
	s.lastBlockAt = time.Now()
	if s.state != StateConnected {
		s.state = StateConnected
	}
	s.mu.Unlock()
}

func (s *Supervisor) lastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBlockAt
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) onConnect(reconnected bool) {
	s.setState(StateConnected)
	s.touchHeartbeat()
	if reconnected {
		s.log.Info("stream reconnected")
	} else {
		s.log.Info("stream connected")
	}

	s.listenMu.Lock()
	listeners := append([]func(bool){}, s.listeners...)
	s.listenMu.Unlock()
	for _, fn := range listeners {
		fn(reconnected)
	}
}

func (s *Supervisor) resetBackoff() {
	s.mu.Lock()
	s.reconnectAttempts = 0
	s.mu.Unlock()
}

// backoff waits backoffDelay(attempts) before the next connect attempt. It
// returns false without waiting once more than maxAttempts consecutive
// attempts have failed, and returns false if ctx was cancelled during the
// wait.
func (s *Supervisor) backoff(ctx context.Context) bool {
	s.mu.Lock()
	s.state = StateReconnecting
	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	s.mu.Unlock()

	if attempt > uint32(s.maxAttempts) {
		s.log.Error("giving up after max reconnect attempts", "attempts", attempt)
		return false
	}

	delay := backoffDelay(attempt)
	s.log.Info("backing off before reconnect", "attempt", attempt, "delay", delay)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay computes 1s * 2^(attempt-1), capped at maxBackoff.
func backoffDelay(attempt uint32) time.Duration {
	if attempt == 0 {
		return 0
	}
	d := time.Second
	for i := uint32(1); i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
