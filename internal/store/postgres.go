package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	_ "github.com/lib/pq"
)

// schema indexes every column the query layer filters on. No uniqueness
// constraint is placed on (block_number, log_index): retries can observe
// the same log twice, and duplicates are tolerated here rather than
// rejected.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                BIGSERIAL PRIMARY KEY,
	event_type        TEXT NOT NULL,
	room_id           BIGINT NOT NULL,
	player            TEXT NOT NULL,
	block_number      BIGINT NOT NULL,
	block_timestamp   TIMESTAMPTZ NOT NULL,
	log_index         BIGINT NOT NULL,
	transaction_hash  TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),

	amount_wei        TEXT,
	bet_big           BOOLEAN,
	commit_block      BIGINT,
	reveal_block      BIGINT,

	reward_amount_wei TEXT,
	won               BOOLEAN,
	hash_value        SMALLINT,
	block_hash        TEXT,
	result_block      BIGINT,
	bet_id            TEXT,

	related_event_id  BIGINT,
	processed         BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_events_event_type ON events (event_type);
CREATE INDEX IF NOT EXISTS idx_events_player ON events (player);
CREATE INDEX IF NOT EXISTS idx_events_room_id ON events (room_id);
CREATE INDEX IF NOT EXISTS idx_events_player_created_at ON events (player, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_bet_id ON events (bet_id);
`

// PostgresStore is the Postgres-backed Event Store, built on database/sql
// and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dbURL, pings it, and ensures the schema exists.
func OpenPostgres(ctx context.Context, dbURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func bigString(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func (p *PostgresStore) Append(ctx context.Context, rec *EventRecord) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO events (
			event_type, room_id, player, block_number, block_timestamp,
			log_index, transaction_hash,
			amount_wei, bet_big, commit_block, reveal_block,
			reward_amount_wei, won, hash_value, block_hash, result_block, bet_id,
			related_event_id, processed
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17,
			$18, $19
		) RETURNING id`,
		rec.EventType, rec.RoomID, rec.Player, rec.BlockNumber, rec.BlockTimestamp,
		rec.LogIndex, rec.TransactionHash,
		bigString(rec.AmountWei), rec.BetBig, rec.CommitBlock, rec.RevealBlock,
		bigString(rec.RewardAmountWei), rec.Won, rec.HashValue, rec.BlockHash, rec.ResultBlock, rec.BetID,
		rec.RelatedEventID, rec.Processed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: append event: %w", err)
	}
	return id, nil
}

func (p *PostgresStore) FindOne(ctx context.Context, q FindOneQuery) (*EventRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM events WHERE event_type = $1 AND room_id = $2 AND player = $3`
	args := []interface{}{q.EventType, q.RoomID, q.Player}
	if q.Processed != nil {
		query += fmt.Sprintf(" AND processed = $%d", len(args)+1)
		args = append(args, *q.Processed)
	}
	query += " ORDER BY block_number DESC LIMIT 1"

	row := p.db.QueryRowContext(ctx, query, args...)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find one: %w", err)
	}
	return rec, nil
}

func (p *PostgresStore) UpdateLink(ctx context.Context, idA, idB int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: update link begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE events SET related_event_id = $1, processed = true WHERE id = $2`, idB, idA); err != nil {
		return fmt.Errorf("store: update link a: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE events SET related_event_id = $1, processed = true WHERE id = $2`, idA, idB); err != nil {
		return fmt.Errorf("store: update link b: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: update link commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) Count(ctx context.Context, q Query) (int64, error) {
	query, args := buildQueryFilter(q, "SELECT count(*) FROM events")
	var n int64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) Find(ctx context.Context, q Query, skip, limit int) ([]*EventRecord, error) {
	query, args := buildQueryFilter(q, "SELECT "+selectColumns+" FROM events")
	query += " ORDER BY block_number DESC, log_index DESC"
	args = append(args, limit, skip)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find: %w", err)
	}
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: find scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) FindByIDs(ctx context.Context, ids []int64) ([]*EventRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM events WHERE id = ANY($1)`, pqInt64Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: find by ids: %w", err)
	}
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: find by ids scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MaxBlockNumber(ctx context.Context) (uint64, error) {
	var n sql.NullInt64
	if err := p.db.QueryRowContext(ctx, `SELECT MAX(block_number) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: max block number: %w", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
