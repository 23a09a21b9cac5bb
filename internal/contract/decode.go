package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BetPlacedLog is the decoded form of a BetPlaced log.
type BetPlacedLog struct {
	RoomID             *big.Int
	Player             common.Address
	AmountWei          *big.Int
	BetBig             bool
	CommitBlock        uint64
	RevealBlockFromLog uint64
	BlockNumber        uint64
	LogIndex           uint
	TxHash             common.Hash
}

// BetSettledLog is the decoded form of a BetSettled log.
type BetSettledLog struct {
	RoomID      *big.Int
	Player      common.Address
	AmountWei   *big.Int
	Won         bool
	HashValue   uint8
	BlockHash   common.Hash
	BetID       *big.Int
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
}

// DecodeBetPlaced decodes a raw log known to carry topic0 == BetPlaced.
func DecodeBetPlaced(parsed abi.ABI, vLog types.Log) (*BetPlacedLog, error) {
	if len(vLog.Topics) < 3 {
		return nil, fmt.Errorf("contract: BetPlaced log missing indexed topics (have %d)", len(vLog.Topics))
	}

	var data struct {
		AmountWei   *big.Int
		BetBig      bool
		CommitBlock *big.Int
		RevealBlock *big.Int
	}
	if err := parsed.UnpackIntoInterface(&data, BetPlacedEvent, vLog.Data); err != nil {
		return nil, fmt.Errorf("contract: unpack BetPlaced: %w", err)
	}

	return &BetPlacedLog{
		RoomID:             vLog.Topics[1].Big(),
		Player:             common.BytesToAddress(vLog.Topics[2].Bytes()),
		AmountWei:          data.AmountWei,
		BetBig:             data.BetBig,
		CommitBlock:        data.CommitBlock.Uint64(),
		RevealBlockFromLog: data.RevealBlock.Uint64(),
		BlockNumber:        vLog.BlockNumber,
		LogIndex:           vLog.Index,
		TxHash:             vLog.TxHash,
	}, nil
}

// DecodeBetSettled decodes a raw log known to carry topic0 == BetSettled.
func DecodeBetSettled(parsed abi.ABI, vLog types.Log) (*BetSettledLog, error) {
	if len(vLog.Topics) < 3 {
		return nil, fmt.Errorf("contract: BetSettled log missing indexed topics (have %d)", len(vLog.Topics))
	}

	var data struct {
		AmountWei *big.Int
		Won       bool
		HashValue uint8
		BlockHash [32]byte
		BetID     *big.Int
	}
	if err := parsed.UnpackIntoInterface(&data, BetSettledEvent, vLog.Data); err != nil {
		return nil, fmt.Errorf("contract: unpack BetSettled: %w", err)
	}

	return &BetSettledLog{
		RoomID:      vLog.Topics[1].Big(),
		Player:      common.BytesToAddress(vLog.Topics[2].Bytes()),
		AmountWei:   data.AmountWei,
		Won:         data.Won,
		HashValue:   data.HashValue,
		BlockHash:   common.BytesToHash(data.BlockHash[:]),
		BetID:       data.BetID,
		BlockNumber: vLog.BlockNumber,
		LogIndex:    vLog.Index,
		TxHash:      vLog.TxHash,
	}, nil
}

// Key is the (roomId, player) commitment key used throughout the service
// to identify a single pending bet.
type Key struct {
	RoomID uint64
	Player common.Address
}

// KeyOf builds a Key from a room id and player address. roomId is reduced to
// uint64 — contract-level room ids are expected to fit (the ABI type is
// uint256 for calldata-packing convenience, not because rooms approach
// 2^64).
func KeyOf(roomID *big.Int, player common.Address) Key {
	return Key{RoomID: roomID.Uint64(), Player: player}
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%s", k.RoomID, k.Player.Hex())
}
