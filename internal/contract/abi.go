// Package contract holds the dice-bet contract's ABI fragment and the
// startup parameter loader.
package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// abiJSON is the minimal ABI fragment for the events and methods this
// service touches. Declared inline rather than loaded from a file or
// generated bindings, since this service only needs a handful of entries.
const abiJSON = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"roomId","type":"uint256"},
		{"indexed":true,"name":"player","type":"address"},
		{"indexed":false,"name":"amountWei","type":"uint256"},
		{"indexed":false,"name":"betBig","type":"bool"},
		{"indexed":false,"name":"commitBlock","type":"uint256"},
		{"indexed":false,"name":"revealBlock","type":"uint256"}
	],"name":"BetPlaced","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"roomId","type":"uint256"},
		{"indexed":true,"name":"player","type":"address"},
		{"indexed":false,"name":"amountWei","type":"uint256"},
		{"indexed":false,"name":"won","type":"bool"},
		{"indexed":false,"name":"hashValue","type":"uint8"},
		{"indexed":false,"name":"blockHash","type":"bytes32"},
		{"indexed":false,"name":"betId","type":"uint256"}
	],"name":"BetSettled","type":"event"},
	{"inputs":[
		{"name":"roomId","type":"uint256"},
		{"name":"player","type":"address"}
	],"name":"settleBet","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"revealDelay","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"name":"roomId","type":"uint256"},
		{"name":"player","type":"address"}
	],"name":"playerBets","outputs":[
		{"name":"amountWei","type":"uint256"},
		{"name":"betBig","type":"bool"},
		{"name":"commitBlock","type":"uint256"},
		{"name":"revealBlock","type":"uint256"},
		{"name":"settled","type":"bool"}
	],"stateMutability":"view","type":"function"}
]`

// EventNames used to build the subscription filter's topic0 list.
const (
	BetPlacedEvent  = "BetPlaced"
	BetSettledEvent = "BetSettled"
)

// MethodNames used for reads and the settlement call.
const (
	SettleBetMethod   = "settleBet"
	RevealDelayMethod = "revealDelay"
	PlayerBetsMethod  = "playerBets"
)

// DefaultRevealDelay is adopted when the contract read fails or returns a
// non-positive value.
const DefaultRevealDelay = uint64(3)

// ParsedABI returns the parsed contract ABI. It is recomputed on every call
// because abi.ABI is not safe to share before it's fully resolved by value;
// callers are expected to parse once at startup and hold the result.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
}

// BigThreshold is the hashValue cutoff at or above which an outcome counts
// as "big".
const BigThreshold = 5

// IsBig reports whether a settled hashValue counts as a "big" outcome.
func IsBig(hashValue uint8) bool {
	return hashValue >= BigThreshold
}
