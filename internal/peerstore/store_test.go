package peerstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/carlinkd/cartrustd/internal/peerstore"
)

func TestMemoryAddReplacesInPlace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := peerstore.NewMemory()

	id := uuid.New()
	if err := store.Add(ctx, peerstore.Record{DeviceID: id, Name: "first"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(ctx, peerstore.Record{DeviceID: id, Name: "second"}); err != nil {
		t.Fatalf("Add (replace): %v", err)
	}

	all, err := store.RetrieveAll(ctx)
	if err != nil {
		t.Fatalf("RetrieveAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record after replace, got %d", len(all))
	}
	if all[0].Name != "second" {
		t.Fatalf("expected replaced name %q, got %q", "second", all[0].Name)
	}
}

func TestMemoryRenameRejectsEmptyName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := peerstore.NewMemory()
	id := uuid.New()
	if err := store.Add(ctx, peerstore.Record{DeviceID: id, Name: "car"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := store.Rename(ctx, id, ""); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
	if err := store.Rename(ctx, id, "new name"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	name, err := store.LoadName(ctx, id)
	if err != nil {
		t.Fatalf("LoadName: %v", err)
	}
	if name != "new name" {
		t.Fatalf("expected %q, got %q", "new name", name)
	}
}

func TestMemoryClearAndClearAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := peerstore.NewMemory()
	a, b := uuid.New(), uuid.New()
	if err := store.Add(ctx, peerstore.Record{DeviceID: a}); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := store.Add(ctx, peerstore.Record{DeviceID: b}); err != nil {
		t.Fatalf("Add b: %v", err)
	}

	if err := store.Clear(ctx, a); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	assoc, err := store.LoadIsAssociated(ctx, a)
	if err != nil {
		t.Fatalf("LoadIsAssociated: %v", err)
	}
	if assoc {
		t.Fatalf("expected a to be cleared")
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	all, err := store.RetrieveAll(ctx)
	if err != nil {
		t.Fatalf("RetrieveAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no records after ClearAll, got %d", len(all))
	}
}

func TestAEADCryptoHelperRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var masterKey [32]byte
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	helper, err := peerstore.NewAEADCryptoHelper(masterKey)
	if err != nil {
		t.Fatalf("NewAEADCryptoHelper: %v", err)
	}

	var plaintext [32]byte
	for i := range plaintext {
		plaintext[i] = byte(255 - i)
	}

	wrapped, err := helper.Wrap(ctx, plaintext)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	got, err := helper.Unwrap(ctx, wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if got != plaintext {
		t.Fatalf("round-trip mismatch")
	}
}
