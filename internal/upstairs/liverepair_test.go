package upstairs

import (
	"testing"

	"github.com/basinlabs/upstairs/internal/types"
)

func newTestLiveRepair(co *Coordinator) *LiveRepairEngine {
	return NewLiveRepairEngine(co, types.ClientId0, []types.ClientId{types.ClientId1, types.ClientId2}, co.extentCount)
}

func TestLiveRepairDrivesOneExtentThroughAllPhases(t *testing.T) {
	co := newTestCoordinator()
	e := newTestLiveRepair(co)

	e.BeginExtent(0)
	if e.Phase() != PhaseClosing {
		t.Fatalf("phase = %v, want PhaseClosing", e.Phase())
	}
	closeId := e.ids.Close
	if _, ok := co.active.Get(closeId); !ok {
		t.Fatalf("ExtentFlushClose job not enqueued")
	}

	e.CloseComplete(extentInfo{Generation: 1, FlushNumber: 1}, true)
	if e.Phase() != PhaseRepairing {
		t.Fatalf("phase = %v, want PhaseRepairing", e.Phase())
	}
	repairJob, ok := co.active.Get(e.ids.Repair)
	if !ok || repairJob.Work.Kind() != types.KindExtentLiveRepair {
		t.Fatalf("expected an ExtentLiveRepair job when targets are dirty")
	}

	e.RepairComplete()
	if e.Phase() != PhaseNoop {
		t.Fatalf("phase = %v, want PhaseNoop", e.Phase())
	}

	e.NoopComplete()
	if e.Phase() != PhaseReopening {
		t.Fatalf("phase = %v, want PhaseReopening", e.Phase())
	}
	reopenJob, ok := co.active.Get(e.ids.Reopen)
	if !ok || reopenJob.Work.Kind() != types.KindExtentLiveReopen {
		t.Fatalf("expected an ExtentLiveReopen job")
	}

	e.ReopenComplete()
	if e.Phase() != PhaseDone {
		t.Fatalf("phase = %v, want PhaseDone", e.Phase())
	}
}

func TestLiveRepairCloseCompleteSkipsRepairWhenClean(t *testing.T) {
	co := newTestCoordinator()
	e := newTestLiveRepair(co)

	e.BeginExtent(0)
	e.CloseComplete(extentInfo{Generation: 1, FlushNumber: 1}, false)

	job, ok := co.active.Get(e.ids.Repair)
	if !ok {
		t.Fatalf("expected a job at the Repair id")
	}
	if job.Work.Kind() != types.KindExtentLiveNoOp {
		t.Fatalf("clean targets should get a no-op, got %v", job.Work.Kind())
	}
}

func TestLiveRepairDoneOnlyAfterLastExtent(t *testing.T) {
	co := NewCoordinator([types.NumClients]string{"a", "b", "c"}, 4, 2)
	e := newTestLiveRepair(co)

	e.BeginExtent(0)
	e.CloseComplete(extentInfo{}, false)
	e.RepairComplete()
	e.NoopComplete()
	e.ReopenComplete()
	if e.Done() {
		t.Fatalf("engine should not be done after extent 0 of 2")
	}

	e.BeginExtent(1)
	e.CloseComplete(extentInfo{}, false)
	e.RepairComplete()
	e.NoopComplete()
	e.ReopenComplete()
	if !e.Done() {
		t.Fatalf("engine should be done after the last extent")
	}
}

func TestApplyExtentLimitGatesRepairTargets(t *testing.T) {
	co := newTestCoordinator()
	e := newTestLiveRepair(co)
	e.currentExtent = 3

	e.ApplyExtentLimit()
	for _, cid := range []types.ClientId{types.ClientId1, types.ClientId2} {
		c := co.Client(cid)
		if c.Repair == nil || c.Repair.ExtentLimit == nil || *c.Repair.ExtentLimit != 3 {
			t.Errorf("client %v: extent limit not applied", cid)
		}
	}
}

func TestReserveIfNeededAllocatesFutureExtentAndAddsDeps(t *testing.T) {
	co := newTestCoordinator()
	e := newTestLiveRepair(co)
	e.currentExtent = 0 // repair frontier is extent 0

	// extentSizeBlocks=4: the write's impacted range is blocks [0,8], i.e.
	// extents 0 (the frontier), 1 and 2 -- both 1 and 2 are future extents.
	write := &types.Write{Writes: []types.WriteItem{{Block: 0}, {Block: 8}}}
	job := &DownstairsIO{DsId: 5000, Work: write}

	reserved := e.ReserveIfNeeded(job, co.extentSizeBlocks)
	if len(reserved) != 2 || reserved[0] != 1 || reserved[1] != 2 {
		t.Fatalf("reserved = %v, want [1 2]", reserved)
	}
	if len(write.Deps) != 8 {
		t.Fatalf("expected 8 reservation deps appended (4 per extent), got %d", len(write.Deps))
	}
	if _, ok := e.reservations[2]; !ok {
		t.Fatalf("expected extent 2 to be reserved")
	}
}

func TestReserveIfNeededIgnoresJobsEntirelyBehindFrontier(t *testing.T) {
	co := newTestCoordinator()
	e := newTestLiveRepair(co)
	e.currentExtent = 5

	write := &types.Write{Writes: []types.WriteItem{{Block: 0}}}
	job := &DownstairsIO{DsId: 5001, Work: write}

	reserved := e.ReserveIfNeeded(job, co.extentSizeBlocks)
	if reserved != nil {
		t.Fatalf("reserved = %v, want nil (job is entirely behind the frontier)", reserved)
	}
	if len(write.Deps) != 0 {
		t.Fatalf("no deps should be appended for a job with nothing ahead of the frontier")
	}
}

func TestAbortFinishesRemainingPhasesAndFaultsTargets(t *testing.T) {
	co := newTestCoordinator()
	e := newTestLiveRepair(co)

	e.BeginExtent(0)
	e.CloseComplete(extentInfo{}, true) // now in PhaseRepairing
	// Repair targets are in LiveRepair, from which Faulted is a legal edge.
	co.Client(types.ClientId1).State = types.DsStateLiveRepair
	co.Client(types.ClientId2).State = types.DsStateLiveRepair

	noopIds := e.Abort()
	if len(noopIds) != 2 {
		t.Fatalf("abort from PhaseRepairing should finish 2 remaining phases (noop, reopen), got %d", len(noopIds))
	}
	if e.Phase() != PhaseDone {
		t.Fatalf("phase = %v, want PhaseDone after Abort", e.Phase())
	}
	for _, cid := range []types.ClientId{types.ClientId1, types.ClientId2} {
		if co.Client(cid).State != types.DsStateFaulted {
			t.Errorf("client %v should be Faulted after Abort", cid)
		}
	}
}
