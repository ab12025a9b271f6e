package upstairs

import (
	"context"
	"testing"
	"time"

	"github.com/basinlabs/upstairs/internal/types"
)

func TestGuestWriteAcksImmediatelyAndNotifiesWaiter(t *testing.T) {
	co := newTestCoordinator()
	guest := NewGuestBridge(co)

	w := guest.Write([]types.WriteItem{{Block: 0, Data: []byte("x")}}, false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestGuestReadCompletesOnNotifyAcked(t *testing.T) {
	co := newTestCoordinator()
	guest := NewGuestBridge(co)

	w := guest.Read([]types.ReadRequest{{Block: 0, NumBlocks: 1}})

	order := co.active.Ordered()
	if len(order) != 1 {
		t.Fatalf("expected 1 outstanding job, got %d", len(order))
	}
	job, _ := co.active.Get(order[0])
	job.Acked = true
	job.Data = &ReadResult{Blocks: [][]byte{[]byte("hello")}}
	guest.NotifyAcked(job, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if data == nil || len(data.Blocks) != 1 || string(data.Blocks[0]) != "hello" {
		t.Fatalf("unexpected read data: %+v", data)
	}
}

func TestGuestWaitRespectsContextCancellation(t *testing.T) {
	co := newTestCoordinator()
	guest := NewGuestBridge(co)
	w := guest.Read([]types.ReadRequest{{Block: 0, NumBlocks: 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := w.Wait(ctx); err == nil {
		t.Fatalf("expected a context deadline error, got nil")
	}
}

func TestShowWorkListsOutstandingJobsOldestFirst(t *testing.T) {
	co := newTestCoordinator()
	guest := NewGuestBridge(co)

	guest.Write([]types.WriteItem{{Block: 0, Data: []byte("a")}}, false)
	guest.Write([]types.WriteItem{{Block: 1, Data: []byte("b")}}, false)

	entries := guest.ShowWork()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].DsId >= entries[1].DsId {
		t.Fatalf("entries should be ordered oldest-first: %+v", entries)
	}
	if !entries[0].Acked || !entries[1].Acked {
		t.Fatalf("fast-acked writes should show Acked=true")
	}
}
