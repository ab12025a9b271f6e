package upstairs

import (
	"testing"

	"github.com/basinlabs/upstairs/internal/types"
)

func agree(extentCount int, gen, flush uint64, dirty bool) [types.NumClients][]ExtentMetadata {
	var out [types.NumClients][]ExtentMetadata
	for c := range out {
		row := make([]ExtentMetadata, extentCount)
		for i := range row {
			row[i] = ExtentMetadata{Generation: gen, FlushNumber: flush, Dirty: dirty}
		}
		out[c] = row
	}
	return out
}

func TestCollateNoMismatchesWhenAllAgree(t *testing.T) {
	metadata := agree(4, 2, 10, false)
	engine := NewReconcileEngine()

	mismatches, maxGen, err := engine.Collate(metadata, 4)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("got %d mismatches, want 0", len(mismatches))
	}
	if maxGen != 3 {
		t.Errorf("maxGen = %d, want 3", maxGen)
	}
	if !engine.Drained() {
		t.Errorf("engine should be drained with no mismatches")
	}
}

func TestCollateRejectsLowGeneration(t *testing.T) {
	metadata := agree(2, 5, 1, false)
	engine := NewReconcileEngine()

	_, _, err := engine.Collate(metadata, 6)
	if err != types.ErrGenerationTooLow {
		t.Fatalf("err = %v, want ErrGenerationTooLow", err)
	}
}

func TestCollateFindsMismatchAndPicksHighestAsSource(t *testing.T) {
	metadata := agree(1, 1, 5, false)
	// Client 2 is ahead of the others on extent 0.
	metadata[types.ClientId2][0] = ExtentMetadata{Generation: 1, FlushNumber: 9, Dirty: true}

	engine := NewReconcileEngine()
	mismatches, _, err := engine.Collate(metadata, 3)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("got %d mismatches, want 1", len(mismatches))
	}
	m := mismatches[0]
	if m.Source != types.ClientId2 {
		t.Errorf("source = %v, want ClientId2", m.Source)
	}
	if len(m.Dests) != 2 {
		t.Errorf("dests = %v, want both other clients", m.Dests)
	}
}

func TestEnqueueMendExpandsToFourTasksPerMismatch(t *testing.T) {
	metadata := agree(1, 1, 5, false)
	metadata[types.ClientId1][0] = ExtentMetadata{Generation: 2, FlushNumber: 5, Dirty: false}

	engine := NewReconcileEngine()
	if _, _, err := engine.Collate(metadata, 4); err != nil {
		t.Fatalf("Collate: %v", err)
	}

	wantKinds := []ReconcileKind{ReconcileExtentFlush, ReconcileExtentClose, ReconcileExtentRepair, ReconcileExtentReopen}
	for _, want := range wantKinds {
		task, ok := engine.Next()
		if !ok {
			t.Fatalf("Next: queue drained early, expected %v", want)
		}
		if task.Kind != want {
			t.Errorf("task.Kind = %v, want %v", task.Kind, want)
		}
		engine.Ack()
	}
	if !engine.Drained() {
		t.Errorf("engine should be drained after all four tasks acked")
	}
}

func TestNextBlocksUntilInFlightTaskAcked(t *testing.T) {
	metadata := agree(1, 1, 5, false)
	metadata[types.ClientId0][0] = ExtentMetadata{Generation: 3, FlushNumber: 5, Dirty: false}

	engine := NewReconcileEngine()
	if _, _, err := engine.Collate(metadata, 5); err != nil {
		t.Fatalf("Collate: %v", err)
	}

	if _, ok := engine.Next(); !ok {
		t.Fatalf("Next: expected a task")
	}
	if _, ok := engine.Next(); ok {
		t.Fatalf("Next: should refuse a second task while one is in flight")
	}
	engine.Ack()
	if _, ok := engine.Next(); !ok {
		t.Fatalf("Next: expected the second task after Ack")
	}
}

func TestAbortClearsQueueAndInFlight(t *testing.T) {
	metadata := agree(1, 1, 5, false)
	metadata[types.ClientId0][0] = ExtentMetadata{Generation: 3, FlushNumber: 5, Dirty: false}

	engine := NewReconcileEngine()
	if _, _, err := engine.Collate(metadata, 5); err != nil {
		t.Fatalf("Collate: %v", err)
	}
	engine.Next()
	engine.Abort()
	if !engine.Drained() {
		t.Errorf("engine should be drained after Abort")
	}
}
