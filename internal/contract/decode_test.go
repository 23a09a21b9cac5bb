package contract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeBetPlaced(t *testing.T) {
	parsed, err := ParsedABI()
	if err != nil {
		t.Fatalf("ParsedABI() error = %v", err)
	}

	roomID := big.NewInt(42)
	player := common.HexToAddress("0x1111111111111111111111111111111111111111")

	data, err := parsed.Events[BetPlacedEvent].Inputs.NonIndexed().Pack(
		big.NewInt(1_000_000_000_000_000_000),
		true,
		big.NewInt(100),
		big.NewInt(103),
	)
	if err != nil {
		t.Fatalf("pack non-indexed fields: %v", err)
	}

	vLog := types.Log{
		Topics: []common.Hash{
			parsed.Events[BetPlacedEvent].ID,
			common.BigToHash(roomID),
			common.BytesToHash(player.Bytes()),
		},
		Data:        data,
		BlockNumber: 200,
		Index:       3,
		TxHash:      common.HexToHash("0xabc"),
	}

	decoded, err := DecodeBetPlaced(parsed, vLog)
	if err != nil {
		t.Fatalf("DecodeBetPlaced() error = %v", err)
	}

	if decoded.RoomID.Cmp(roomID) != 0 {
		t.Errorf("RoomID = %v, want %v", decoded.RoomID, roomID)
	}
	if decoded.Player != player {
		t.Errorf("Player = %v, want %v", decoded.Player, player)
	}
	if !decoded.BetBig {
		t.Errorf("BetBig = false, want true")
	}
	if decoded.CommitBlock != 100 {
		t.Errorf("CommitBlock = %d, want 100", decoded.CommitBlock)
	}
	if decoded.RevealBlockFromLog != 103 {
		t.Errorf("RevealBlockFromLog = %d, want 103", decoded.RevealBlockFromLog)
	}
	if decoded.BlockNumber != 200 {
		t.Errorf("BlockNumber = %d, want 200", decoded.BlockNumber)
	}
}

func TestDecodeBetPlaced_MissingTopics(t *testing.T) {
	parsed, err := ParsedABI()
	if err != nil {
		t.Fatalf("ParsedABI() error = %v", err)
	}

	vLog := types.Log{Topics: []common.Hash{parsed.Events[BetPlacedEvent].ID}}
	if _, err := DecodeBetPlaced(parsed, vLog); err == nil {
		t.Fatal("expected error for log missing indexed topics")
	}
}

func TestDecodeBetSettled(t *testing.T) {
	parsed, err := ParsedABI()
	if err != nil {
		t.Fatalf("ParsedABI() error = %v", err)
	}

	roomID := big.NewInt(7)
	player := common.HexToAddress("0x2222222222222222222222222222222222222222")
	var blockHash [32]byte
	copy(blockHash[:], common.HexToHash("0xdead").Bytes())

	data, err := parsed.Events[BetSettledEvent].Inputs.NonIndexed().Pack(
		big.NewInt(500),
		true,
		uint8(7),
		blockHash,
		big.NewInt(99),
	)
	if err != nil {
		t.Fatalf("pack non-indexed fields: %v", err)
	}

	vLog := types.Log{
		Topics: []common.Hash{
			parsed.Events[BetSettledEvent].ID,
			common.BigToHash(roomID),
			common.BytesToHash(player.Bytes()),
		},
		Data:        data,
		BlockNumber: 210,
		TxHash:      common.HexToHash("0xdef"),
	}

	decoded, err := DecodeBetSettled(parsed, vLog)
	if err != nil {
		t.Fatalf("DecodeBetSettled() error = %v", err)
	}

	if decoded.RoomID.Cmp(roomID) != 0 {
		t.Errorf("RoomID = %v, want %v", decoded.RoomID, roomID)
	}
	if decoded.Player != player {
		t.Errorf("Player = %v, want %v", decoded.Player, player)
	}
	if !decoded.Won {
		t.Errorf("Won = false, want true")
	}
	if decoded.HashValue != 7 {
		t.Errorf("HashValue = %d, want 7", decoded.HashValue)
	}
	if !IsBig(decoded.HashValue) {
		t.Errorf("IsBig(%d) = false, want true", decoded.HashValue)
	}
	if decoded.BetID.Cmp(big.NewInt(99)) != 0 {
		t.Errorf("BetID = %v, want 99", decoded.BetID)
	}
}

func TestKeyOfAndString(t *testing.T) {
	player := common.HexToAddress("0x3333333333333333333333333333333333333333")
	key := KeyOf(big.NewInt(15), player)

	if key.RoomID != 15 {
		t.Errorf("RoomID = %d, want 15", key.RoomID)
	}
	if key.Player != player {
		t.Errorf("Player = %v, want %v", key.Player, player)
	}

	want := "15-" + player.Hex()
	if got := key.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
