// Package store implements append-only persistence of decoded events, with
// the secondary indexes and correlation support the rest of the service
// needs.
package store

import (
	"context"
	"math/big"
	"time"
)

// EventType discriminates EventRecord rows.
type EventType string

const (
	EventBetPlaced  EventType = "BetPlaced"
	EventBetSettled EventType = "BetSettled"
)

// EventRecord is the durable log of a decoded event.
type EventRecord struct {
	ID              int64
	EventType       EventType
	RoomID          uint64
	Player          string // lower-cased hex address
	BlockNumber     uint64
	BlockTimestamp  time.Time
	LogIndex        uint
	TransactionHash string
	CreatedAt       time.Time

	// BetPlaced-only.
	AmountWei   *big.Int
	BetBig      bool
	CommitBlock uint64
	RevealBlock uint64

	// BetSettled-only.
	RewardAmountWei *big.Int
	Won             bool
	HashValue       uint8
	BlockHash       string
	ResultBlock     uint64
	BetID           string

	// Linking.
	RelatedEventID *int64
	Processed      bool
}

// FindOneQuery selects the most recent matching row.
type FindOneQuery struct {
	EventType EventType
	RoomID    uint64
	Player    string
	Processed *bool
}

// Query is the general-purpose filter used by the admin/reporting query
// layer; kept here only so the Store interface's contract is complete, not
// because this service calls it.
type Query struct {
	EventType *EventType
	Player    string
	RoomID    *uint64
	BetID     string
}

// Store is the Event Store contract. The store itself is an external
// collaborator; this interface is what the rest of the service depends on
// so a Postgres-backed implementation and an in-memory test double can be
// swapped freely.
type Store interface {
	Append(ctx context.Context, rec *EventRecord) (int64, error)
	FindOne(ctx context.Context, q FindOneQuery) (*EventRecord, error)
	UpdateLink(ctx context.Context, idA, idB int64) error
	Count(ctx context.Context, q Query) (int64, error)
	Find(ctx context.Context, q Query, skip, limit int) ([]*EventRecord, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*EventRecord, error)

	// MaxBlockNumber returns the highest block_number persisted across all
	// events, used by the startup backfill pass. Returns 0 if the store is
	// empty.
	MaxBlockNumber(ctx context.Context) (uint64, error)

	// Ping checks store reachability for the Health Surface.
	Ping(ctx context.Context) error

	Close() error
}
