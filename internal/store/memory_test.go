package store

import (
	"context"
	"testing"
)

func TestMemoryStore_AppendAndFind(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Append(ctx, &EventRecord{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", BlockNumber: 10})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}

	recs, err := m.Find(ctx, Query{}, 0, 10)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find returned %d records, want 1", len(recs))
	}
}

func TestMemoryStore_FindOne_FiltersByProcessed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id1, _ := m.Append(ctx, &EventRecord{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", BlockNumber: 10, Processed: false})
	id2, _ := m.Append(ctx, &EventRecord{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", BlockNumber: 20, Processed: true})

	unprocessed := false
	rec, err := m.FindOne(ctx, FindOneQuery{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", Processed: &unprocessed})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if rec == nil || rec.ID != id1 {
		t.Fatalf("FindOne returned %v, want id %d", rec, id1)
	}

	processed := true
	rec2, err := m.FindOne(ctx, FindOneQuery{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", Processed: &processed})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if rec2 == nil || rec2.ID != id2 {
		t.Fatalf("FindOne returned %v, want id %d", rec2, id2)
	}
}

func TestMemoryStore_FindOne_PicksHighestBlock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Append(ctx, &EventRecord{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", BlockNumber: 10})
	idLatest, _ := m.Append(ctx, &EventRecord{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc", BlockNumber: 50})

	rec, err := m.FindOne(ctx, FindOneQuery{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if rec == nil || rec.ID != idLatest {
		t.Fatalf("FindOne returned %v, want the highest-block record (id %d)", rec, idLatest)
	}
}

func TestMemoryStore_UpdateLink_IsSymmetric(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	idA, _ := m.Append(ctx, &EventRecord{EventType: EventBetPlaced, RoomID: 1, Player: "0xabc"})
	idB, _ := m.Append(ctx, &EventRecord{EventType: EventBetSettled, RoomID: 1, Player: "0xabc"})

	if err := m.UpdateLink(ctx, idA, idB); err != nil {
		t.Fatalf("UpdateLink: %v", err)
	}

	recs, _ := m.FindByIDs(ctx, []int64{idA, idB})
	byID := map[int64]*EventRecord{}
	for _, r := range recs {
		byID[r.ID] = r
	}

	a, b := byID[idA], byID[idB]
	if a == nil || b == nil {
		t.Fatal("expected both records to be found")
	}
	if !a.Processed || a.RelatedEventID == nil || *a.RelatedEventID != idB {
		t.Error("record A not linked to B")
	}
	if !b.Processed || b.RelatedEventID == nil || *b.RelatedEventID != idA {
		t.Error("record B not linked to A")
	}
}

func TestMemoryStore_MaxBlockNumber(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if max, err := m.MaxBlockNumber(ctx); err != nil || max != 0 {
		t.Fatalf("MaxBlockNumber on empty store = (%d, %v), want (0, nil)", max, err)
	}

	m.Append(ctx, &EventRecord{EventType: EventBetPlaced, BlockNumber: 5})
	m.Append(ctx, &EventRecord{EventType: EventBetPlaced, BlockNumber: 99})
	m.Append(ctx, &EventRecord{EventType: EventBetPlaced, BlockNumber: 42})

	max, err := m.MaxBlockNumber(ctx)
	if err != nil {
		t.Fatalf("MaxBlockNumber: %v", err)
	}
	if max != 99 {
		t.Errorf("MaxBlockNumber() = %d, want 99", max)
	}
}

func TestMemoryStore_Count(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Append(ctx, &EventRecord{EventType: EventBetPlaced, Player: "0xabc"})
	m.Append(ctx, &EventRecord{EventType: EventBetSettled, Player: "0xabc"})

	placed := EventBetPlaced
	n, err := m.Count(ctx, Query{EventType: &placed})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMemoryStore_PingAndClose(t *testing.T) {
	m := NewMemory()
	if err := m.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v, want nil", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
