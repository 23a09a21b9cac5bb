// Package chain implements the dual-provider transport this service talks
// to the chain with: a streaming provider used exclusively for push
// subscriptions, and a request/response provider used for every read,
// balance check, and transaction submission — even while the stream is
// mid-reconnect.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// callTimeout bounds any single RPC call so a hung endpoint can't stall a
// caller indefinitely; the Connection Supervisor's backoff handles the
// resulting failures.
const callTimeout = 30 * time.Second

// BlockHeader is the minimal block metadata this service needs.
type BlockHeader struct {
	Number    uint64
	Timestamp uint64
	Hash      common.Hash
}

// Receipt is the minimal post-inclusion record this service needs.
type Receipt struct {
	BlockNumber uint64
	Status      uint64
}

// Transport is the dual-provider chain client described above.
type Transport struct {
	streamURL string
	stream    *ethclient.Client
	rpc       *ethclient.Client

	contractAddr common.Address
	abi          abi.ABI
	bound        *bind.BoundContract

	chainID *big.Int
	auth    *bind.TransactOpts
	signer  common.Address

	log log.Logger
}

// Dial connects the streaming and request/response providers and prepares
// the signing key used for settlement transactions.
func Dial(ctx context.Context, streamURL, rpcURL string, contractAddr common.Address, parsedABI abi.ABI, privateKeyHex string) (*Transport, error) {
	streamClient, err := ethclient.DialContext(ctx, streamURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial stream provider: %w", err)
	}

	rpcClient, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		streamClient.Close()
		return nil, fmt.Errorf("chain: dial rpc provider: %w", err)
	}

	chainID, err := rpcClient.ChainID(ctx)
	if err != nil {
		streamClient.Close()
		rpcClient.Close()
		return nil, fmt.Errorf("chain: read chain id: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		streamClient.Close()
		rpcClient.Close()
		return nil, fmt.Errorf("chain: parse settler private key: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		streamClient.Close()
		rpcClient.Close()
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}

	bound := bind.NewBoundContract(contractAddr, parsedABI, rpcClient, rpcClient, rpcClient)

	return &Transport{
		streamURL:    streamURL,
		stream:       streamClient,
		rpc:          rpcClient,
		contractAddr: contractAddr,
		abi:          parsedABI,
		bound:        bound,
		chainID:      chainID,
		auth:         auth,
		signer:       auth.From,
		log:          log.New("component", "chain"),
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// RedialStream tears down and re-establishes only the streaming provider.
// The request/response provider is left untouched so reads and transaction
// submission keep working during a reconnect window.
func (t *Transport) RedialStream(ctx context.Context) error {
	newClient, err := ethclient.DialContext(ctx, t.streamURL)
	if err != nil {
		return wrap(fmt.Errorf("chain: redial stream provider: %w", err))
	}
	old := t.stream
	t.stream = newClient
	old.Close()
	return nil
}

// Close tears down both underlying providers.
func (t *Transport) Close() {
	t.stream.Close()
	t.rpc.Close()
}

// SignerAddress returns the address that funds settlement transactions.
func (t *Transport) SignerAddress() common.Address {
	return t.signer
}

// ContractAddress returns the target contract address.
func (t *Transport) ContractAddress() common.Address {
	return t.contractAddr
}

// BlockNumber is always served by the request/response provider.
func (t *Transport) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	n, err := t.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, wrap(fmt.Errorf("chain: block number: %w", err))
	}
	return n, nil
}

// GetBlock fetches block metadata by number via the request/response
// provider.
func (t *Transport) GetBlock(ctx context.Context, number uint64) (*BlockHeader, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	header, err := t.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, wrap(fmt.Errorf("chain: header by number %d: %w", number, err))
	}
	return &BlockHeader{
		Number:    header.Number.Uint64(),
		Timestamp: header.Time,
		Hash:      header.Hash(),
	}, nil
}

// BalanceOf reads the native balance of addr via the request/response
// provider; used for the low-balance startup warning.
func (t *Transport) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	bal, err := t.rpc.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, wrap(fmt.Errorf("chain: balance of %s: %w", addr.Hex(), err))
	}
	return bal, nil
}

// SubscribeLogs opens a log subscription on the streaming provider, scoped
// to this service's contract and the given topic0 set (one entry per event
// type).
func (t *Transport) SubscribeLogs(ctx context.Context, topic0 []common.Hash) (chan types.Log, ethereum.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{t.contractAddr},
		Topics:    [][]common.Hash{topic0},
	}

	logs := make(chan types.Log, 256)
	sub, err := t.stream.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, nil, wrap(fmt.Errorf("chain: subscribe logs: %w", err))
	}
	return logs, sub, nil
}

// SubscribeNewHead opens a new-block-header subscription on the streaming
// provider. The Connection Supervisor uses this as its heartbeat source.
func (t *Transport) SubscribeNewHead(ctx context.Context) (chan *types.Header, ethereum.Subscription, error) {
	headers := make(chan *types.Header, 16)
	sub, err := t.stream.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, nil, wrap(fmt.Errorf("chain: subscribe new head: %w", err))
	}
	return headers, sub, nil
}

// FilterLogs fetches historical logs for [from, to] via the request/response
// provider, used by the startup backfill pass.
func (t *Transport) FilterLogs(ctx context.Context, topic0 []common.Hash, from, to uint64) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{t.contractAddr},
		Topics:    [][]common.Hash{topic0},
	}

	logs, err := t.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, wrap(fmt.Errorf("chain: filter logs %d-%d: %w", from, to, err))
	}
	return logs, nil
}

// Call invokes a read-only contract method via the request/response
// provider; used for revealDelay.
func (t *Transport) Call(ctx context.Context, method string, out *[]interface{}, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	opts := &bind.CallOpts{Context: ctx}
	results, err := t.bound.Values(opts, method, args...)
	if err != nil {
		return wrap(fmt.Errorf("chain: call %s: %w", method, err))
	}
	*out = results
	return nil
}

// SendTransaction builds, signs, and submits a state-changing call via the
// request/response provider.
func (t *Transport) SendTransaction(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	nonce, err := t.rpc.PendingNonceAt(ctx, t.signer)
	if err != nil {
		return common.Hash{}, wrap(fmt.Errorf("chain: pending nonce: %w", err))
	}
	gasPrice, err := t.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, wrap(fmt.Errorf("chain: suggest gas price: %w", err))
	}

	opts := *t.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.GasPrice = gasPrice

	tx, err := t.bound.Transact(&opts, method, args...)
	if err != nil {
		return common.Hash{}, wrap(fmt.Errorf("chain: send %s: %w", method, err))
	}

	t.log.Debug("submitted transaction", "method", method, "tx", tx.Hash().Hex(), "nonce", nonce)
	return tx.Hash(), nil
}

// WaitReceipt polls for the receipt of txHash via the request/response
// provider. Bounded by ctx; callers pass a context with their own deadline.
func (t *Transport) WaitReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := t.rpc.TransactionReceipt(ctx, txHash)
		if err == nil {
			return &Receipt{BlockNumber: receipt.BlockNumber.Uint64(), Status: receipt.Status}, nil
		}
		select {
		case <-ctx.Done():
			return nil, wrap(fmt.Errorf("chain: wait receipt %s: %w", txHash.Hex(), ctx.Err()))
		case <-ticker.C:
		}
	}
}
