package contract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
)

// caller is the subset of chain.Transport the loader needs; kept narrow so
// it can be faked in tests without importing the chain package.
type caller interface {
	Call(ctx context.Context, method string, out *[]interface{}, args ...interface{}) error
}

// LoadRevealDelay reads revealDelay() from the contract at startup. If the
// call fails or returns a non-positive value, it returns DefaultRevealDelay.
// The Reconciler is expected to read this value exactly once per process
// lifetime.
func LoadRevealDelay(ctx context.Context, c caller) uint64 {
	logger := log.New("component", "contract-loader")

	var out []interface{}
	if err := c.Call(ctx, RevealDelayMethod, &out); err != nil {
		logger.Warn("revealDelay() read failed, using default", "default", DefaultRevealDelay, "err", err)
		return DefaultRevealDelay
	}
	if len(out) != 1 {
		logger.Warn("revealDelay() returned unexpected shape, using default", "default", DefaultRevealDelay)
		return DefaultRevealDelay
	}

	raw, ok := out[0].(*big.Int)
	if !ok || raw.Sign() <= 0 {
		logger.Warn("revealDelay() returned non-positive value, using default", "default", DefaultRevealDelay)
		return DefaultRevealDelay
	}

	delay := raw.Uint64()
	logger.Info("loaded reveal delay from contract", "revealDelay", delay)
	return delay
}
