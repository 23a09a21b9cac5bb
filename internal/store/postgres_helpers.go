package store

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/lib/pq"
)

// selectColumns lists every EventRecord column in scanRecord's expected
// order.
const selectColumns = `
	id, event_type, room_id, player, block_number, block_timestamp,
	log_index, transaction_hash, created_at,
	amount_wei, bet_big, commit_block, reveal_block,
	reward_amount_wei, won, hash_value, block_hash, result_block, bet_id,
	related_event_id, processed
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*EventRecord, error) {
	var rec EventRecord
	var amountWei, rewardAmountWei sql.NullString
	var betBig, won sql.NullBool
	var commitBlock, revealBlock, resultBlock sql.NullInt64
	var hashValue sql.NullInt64
	var blockHash, betID sql.NullString
	var relatedEventID sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.EventType, &rec.RoomID, &rec.Player, &rec.BlockNumber, &rec.BlockTimestamp,
		&rec.LogIndex, &rec.TransactionHash, &rec.CreatedAt,
		&amountWei, &betBig, &commitBlock, &revealBlock,
		&rewardAmountWei, &won, &hashValue, &blockHash, &resultBlock, &betID,
		&relatedEventID, &rec.Processed,
	)
	if err != nil {
		return nil, err
	}

	if amountWei.Valid {
		rec.AmountWei, _ = new(big.Int).SetString(amountWei.String, 10)
	}
	rec.BetBig = betBig.Bool
	rec.CommitBlock = uint64(commitBlock.Int64)
	rec.RevealBlock = uint64(revealBlock.Int64)

	if rewardAmountWei.Valid {
		rec.RewardAmountWei, _ = new(big.Int).SetString(rewardAmountWei.String, 10)
	}
	rec.Won = won.Bool
	rec.HashValue = uint8(hashValue.Int64)
	rec.BlockHash = blockHash.String
	rec.ResultBlock = uint64(resultBlock.Int64)
	rec.BetID = betID.String

	if relatedEventID.Valid {
		v := relatedEventID.Int64
		rec.RelatedEventID = &v
	}

	return &rec, nil
}

// buildQueryFilter appends WHERE clauses for the non-zero fields of q to
// base and returns the arg list. Used by the admin/reporting query layer's
// Count/Find paths.
func buildQueryFilter(q Query, base string) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if q.EventType != nil {
		args = append(args, *q.EventType)
		clauses = append(clauses, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if q.Player != "" {
		args = append(args, q.Player)
		clauses = append(clauses, fmt.Sprintf("player = $%d", len(args)))
	}
	if q.RoomID != nil {
		args = append(args, *q.RoomID)
		clauses = append(clauses, fmt.Sprintf("room_id = $%d", len(args)))
	}
	if q.BetID != "" {
		args = append(args, q.BetID)
		clauses = append(clauses, fmt.Sprintf("bet_id = $%d", len(args)))
	}

	query := base
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	return query, args
}

func pqInt64Array(ids []int64) interface{} {
	return pq.Array(ids)
}
