package batch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stagehandhq/stagehand/internal/batch"
	"github.com/stagehandhq/stagehand/internal/conversation"
)

var testKey = conversation.Key{RouteID: "route-a", SenderID: "user123"}

func TestAppendIncrementsEpoch(t *testing.T) {
	t.Parallel()
	store := batch.NewMemoryStore()
	ctx := context.Background()
	quiet := time.Now().Add(4 * time.Second)

	b, err := store.Append(ctx, testKey, "Alice", "Hi", quiet)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if b.Epoch != 1 || len(b.Messages) != 1 {
		t.Fatalf("epoch=%d messages=%d, want 1/1", b.Epoch, len(b.Messages))
	}

	later := quiet.Add(time.Second)
	b, err = store.Append(ctx, testKey, "", "are you open today", later)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if b.Epoch != 2 || len(b.Messages) != 2 {
		t.Fatalf("epoch=%d messages=%d, want 2/2", b.Epoch, len(b.Messages))
	}
	if !b.QuietUntil.Equal(later) {
		t.Fatalf("quietUntil not pushed forward")
	}
	if b.DisplayName != "Alice" {
		t.Fatalf("display name lost on later append: %q", b.DisplayName)
	}
}

func TestCombinedTextPreservesOrder(t *testing.T) {
	t.Parallel()
	store := batch.NewMemoryStore()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if _, err := store.Append(ctx, testKey, "", text, time.Now()); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	b, ok, err := store.Take(ctx, testKey, 3)
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if got := b.CombinedText(); got != "one\ntwo\nthree" {
		t.Fatalf("combined = %q", got)
	}
}

func TestTakeStaleEpoch(t *testing.T) {
	t.Parallel()
	store := batch.NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, testKey, "", "first", time.Now()); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, testKey, "", "second", time.Now()); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Epoch 1 was superseded by the second append.
	if _, ok, _ := store.Take(ctx, testKey, 1); ok {
		t.Fatalf("stale epoch must not take the batch")
	}
	b, ok, _ := store.Take(ctx, testKey, 2)
	if !ok || len(b.Messages) != 2 {
		t.Fatalf("current epoch take failed: ok=%v messages=%d", ok, len(b.Messages))
	}
	// Batch is gone after a successful take.
	if _, ok, _ := store.Take(ctx, testKey, 2); ok {
		t.Fatalf("second take must fail")
	}
}

func TestTakeRequiresQuietWindowElapsed(t *testing.T) {
	t.Parallel()
	store := batch.NewMemoryStore()
	ctx := context.Background()

	// First generation: appended, due, taken.
	if _, err := store.Append(ctx, testKey, "", "first burst", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, ok, _ := store.Take(ctx, testKey, 1); !ok {
		t.Fatalf("due batch not taken")
	}

	// Second generation reuses epoch 1. A leftover token from the first
	// generation must not claim it while its window is still open.
	if _, err := store.Append(ctx, testKey, "", "second burst", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, ok, _ := store.Take(ctx, testKey, 1); ok {
		t.Fatalf("open-window batch taken with a recycled epoch token")
	}
	// The failed take left the batch in place for its rightful timer.
	due, err := store.ListDue(ctx, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].CombinedText() != "second burst" {
		t.Fatalf("batch lost after rejected take: %+v", due)
	}
}

func TestListDue(t *testing.T) {
	t.Parallel()
	store := batch.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	dueKey := conversation.Key{RouteID: "r", SenderID: "due"}
	pendingKey := conversation.Key{RouteID: "r", SenderID: "pending"}
	if _, err := store.Append(ctx, dueKey, "", "x", now.Add(-time.Second)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ctx, pendingKey, "", "y", now.Add(time.Minute)); err != nil {
		t.Fatalf("append: %v", err)
	}

	due, err := store.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].Key != dueKey {
		t.Fatalf("due = %#v, want only %v", due, dueKey)
	}
}
