package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSyncStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to SyncStatus
		want     bool
	}{
		{SyncStatusPending, SyncStatusSyncing, true},
		{SyncStatusPending, SyncStatusSynced, false},
		{SyncStatusSyncing, SyncStatusSynced, true},
		{SyncStatusSyncing, SyncStatusFailed, true},
		{SyncStatusFailed, SyncStatusSyncing, true},
		{SyncStatusFailed, SyncStatusSynced, false},
		{SyncStatusSynced, SyncStatusSyncing, false},
		{SyncStatusSynced, SyncStatusFailed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v; want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSyncStatus_Valid(t *testing.T) {
	for _, s := range []SyncStatus{SyncStatusPending, SyncStatusSyncing, SyncStatusSynced, SyncStatusFailed} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if SyncStatus("done").Valid() {
		t.Fatal("unknown status reported valid")
	}
}

func TestToCommitted_AppliesDefaults(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	q := &QueuedTransaction{
		ID:      "item-1",
		OwnerID: "owner-1",
		TransactionData: TransactionPayload{
			Amount:     decimal.RequireFromString("-42.50"),
			Merchant:   "Cafe Luna",
			OccurredAt: at,
		},
	}

	c := q.ToCommitted()
	if c.Category != DefaultCategory {
		t.Fatalf("category = %q; want %q", c.Category, DefaultCategory)
	}
	if c.Notes != DefaultSyncNote {
		t.Fatalf("notes = %q; want %q", c.Notes, DefaultSyncNote)
	}
	if c.OwnerID != "owner-1" || c.QueueItemID != "item-1" || c.Source != SourceOffline {
		t.Fatalf("unexpected provenance: %+v", c)
	}
	if !c.Amount.Equal(decimal.RequireFromString("-42.5")) || !c.OccurredAt.Equal(at) {
		t.Fatalf("payload not carried over: %+v", c)
	}
}

func TestToCommitted_KeepsExplicitValues(t *testing.T) {
	q := &QueuedTransaction{
		TransactionData: TransactionPayload{Category: "Food", Notes: "lunch"},
	}
	c := q.ToCommitted()
	if c.Category != "Food" || c.Notes != "lunch" {
		t.Fatalf("explicit values overwritten: %+v", c)
	}
}

func TestTransactionPayload_AcceptsNumericAmount(t *testing.T) {
	var p TransactionPayload
	raw := `{"amount": -42.50, "merchant": "Cafe Luna", "occurred_at": "2024-03-01T09:00:00Z"}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.Amount.Equal(decimal.RequireFromString("-42.5")) {
		t.Fatalf("amount = %s", p.Amount)
	}
	if p.Merchant != "Cafe Luna" || p.OccurredAt.IsZero() {
		t.Fatalf("unexpected payload %+v", p)
	}
}
