package upstairs

import (
	"github.com/basinlabs/upstairs/internal/types"
)

// RepairPhase names a single extent's position in the live-repair
// pipeline (§4.5). Transitions are strictly linear; no method of
// LiveRepairEngine sets PhaseSwapping.
type RepairPhase int

const (
	PhaseClosing RepairPhase = iota
	PhaseRepairing
	PhaseNoop
	PhaseReopening
	PhaseDone
	PhaseSwapping
)

// RepairIds is the 4-tuple of JobIds allocated for one extent's repair
// pipeline, in dependency order.
type RepairIds struct {
	Close   types.JobId
	Repair  types.JobId
	Noop    types.JobId
	Reopen  types.JobId
}

// extentInfo is the (gen, flush, dirty) triple an ExtentFlushClose
// response carries back.
type extentInfo struct {
	Generation  uint64
	FlushNumber uint64
	Dirty       bool
}

// reservation is a future extent's pre-allocated repair IDs, stashed when
// a guest job looks past the current repair frontier (§4.5's "reservation
// of future repair IDs").
type reservation struct {
	ids  RepairIds
	deps []types.JobId
}

// LiveRepairEngine drives the one-extent-at-a-time repair pipeline over
// repairTarget, sourcing known-good data from sourceClient.
type LiveRepairEngine struct {
	co             *Coordinator
	sourceClient   types.ClientId
	repairTargets  []types.ClientId
	extentCount    uint64

	currentExtent types.Extent
	phase         RepairPhase
	ids           RepairIds

	// reservationDeps are the deps recorded for currentExtent's reservation,
	// if it was reserved ahead of the frontier by a guest job; they must
	// still chain onto the Reopen job once this extent's pipeline finishes.
	reservationDeps []types.JobId

	sourceInfo *extentInfo

	reservations map[types.Extent]reservation
}

// NewLiveRepairEngine builds an engine that will repair repairTargets
// (every client other than sourceClient observed Faulted/Replaced) from
// sourceClient, across a region of extentCount extents.
func NewLiveRepairEngine(co *Coordinator, sourceClient types.ClientId, repairTargets []types.ClientId, extentCount uint64) *LiveRepairEngine {
	return &LiveRepairEngine{
		co:            co,
		sourceClient:  sourceClient,
		repairTargets: repairTargets,
		extentCount:   extentCount,
		phase:         PhaseClosing,
		reservations:  make(map[types.Extent]reservation),
	}
}

// CurrentExtent and Phase expose the engine's position for status
// reporting (show_work).
func (e *LiveRepairEngine) CurrentExtent() types.Extent { return e.currentExtent }
func (e *LiveRepairEngine) Phase() RepairPhase          { return e.phase }

// extentLimit is the current repair horizon: guest jobs whose impacted
// extents are strictly above it are Skipped on the repair targets.
func (e *LiveRepairEngine) extentLimit() types.Extent { return e.currentExtent }

// ApplyExtentLimit installs the current horizon on every repair-target
// client, so DownstairsClient.Enqueue can gate guest I/O (§4.5).
func (e *LiveRepairEngine) ApplyExtentLimit() {
	limit := e.extentLimit()
	for _, cid := range e.repairTargets {
		c := e.co.clients[cid]
		if c.Repair == nil {
			c.Repair = &LiveRepairInfo{}
		}
		c.Repair.ExtentLimit = &limit
	}
}

// ReserveIfNeeded implements "reservation of future repair IDs": if job
// touches an extent strictly greater than the current horizon, but also
// touches the horizon extent itself (or an extent already reserved), the
// coordinator must pre-allocate that future extent's 4-tuple now and add
// it as a dependency of job. Returns the extents newly reserved, if any.
func (e *LiveRepairEngine) ReserveIfNeeded(job *DownstairsIO, extentSizeBlocks uint64) []types.Extent {
	touched := touchedExtents(job.Work, extentSizeBlocks)
	if len(touched) == 0 {
		return nil
	}
	limit := e.extentLimit()

	spansFrontier := false
	var future []types.Extent
	for _, ext := range touched {
		if ext <= limit {
			spansFrontier = true
			continue
		}
		if _, already := e.reservations[ext]; already {
			spansFrontier = true
		}
		future = append(future, ext)
	}
	if !spansFrontier || len(future) == 0 {
		return nil
	}

	var newlyReserved []types.Extent
	for _, ext := range future {
		res, ok := e.reservations[ext]
		if !ok {
			res = reservation{ids: e.allocRepairIds(), deps: e.co.deps.DepsForRepair(ext)}
			e.reservations[ext] = res
			newlyReserved = append(newlyReserved, ext)
		}
		appendDep(job.Work, res.ids.Close)
		appendDep(job.Work, res.ids.Repair)
		appendDep(job.Work, res.ids.Noop)
		appendDep(job.Work, res.ids.Reopen)
	}
	return newlyReserved
}

func (e *LiveRepairEngine) allocRepairIds() RepairIds {
	return RepairIds{
		Close:  e.co.allocJobId(),
		Repair: e.co.allocJobId(),
		Noop:   e.co.allocJobId(),
		Reopen: e.co.allocJobId(),
	}
}

func touchedExtents(op types.IOop, extentSizeBlocks uint64) []types.Extent {
	return extentsTouchedBy(op, extentSizeBlocks)
}

// appendDep is a small helper used only by live-repair reservation: every
// concrete IOop variant embeds its Deps slice through the Dependencies
// accessor, but reservation needs to append to it, which the interface
// deliberately doesn't expose (dependencies are normally fixed at
// construction). Repair-path callers are the one exception, matching the
// original's mutation of ds_active in place during reservation.
func appendDep(op types.IOop, dep types.JobId) {
	switch w := op.(type) {
	case *types.Read:
		w.Deps = append(w.Deps, dep)
	case *types.Write:
		w.Deps = append(w.Deps, dep)
	case *types.WriteUnwritten:
		w.Deps = append(w.Deps, dep)
	case *types.Flush:
		w.Deps = append(w.Deps, dep)
	}
}

// BeginExtent allocates this extent's 4-tuple (reusing a reservation made
// earlier, if any) and submits one ExtentFlushClose job across all
// clients. Only the close is enqueued here; the Reopen id is allocated
// but its job is not enqueued until NoopComplete.
func (e *LiveRepairEngine) BeginExtent(extent types.Extent) {
	e.currentExtent = extent
	e.phase = PhaseClosing

	if res, ok := e.reservations[extent]; ok {
		e.ids = res.ids
		e.reservationDeps = res.deps
		delete(e.reservations, extent)
	} else {
		e.ids = e.allocRepairIds()
		e.reservationDeps = nil
	}

	close := &types.ExtentFlushClose{
		Deps:          e.co.deps.DepsForRepair(extent),
		ExtentId:      extent,
		SourceClient:  e.sourceClient,
		RepairClients: e.repairTargets,
	}
	job := &DownstairsIO{DsId: e.ids.Close, Work: close}
	e.co.enqueueToClients(job)
}

// CloseComplete is called once the source's ExtentFlushClose result is in.
// It records the source's extent info; targetsDirty, which the caller
// computes, decides whether the Repairing phase submits a real
// ExtentLiveRepair or a no-op for everyone.
func (e *LiveRepairEngine) CloseComplete(source extentInfo, targetsDirty bool) {
	e.sourceInfo = &source
	e.phase = PhaseRepairing

	needsRepair := targetsDirty
	if needsRepair {
		repair := &types.ExtentLiveRepair{
			Deps:          []types.JobId{e.ids.Close},
			ExtentId:      e.currentExtent,
			SourceClient:  e.sourceClient,
			RepairClients: e.repairTargets,
		}
		job := &DownstairsIO{DsId: e.ids.Repair, Work: repair}
		e.co.enqueueToClients(job)
	} else {
		noop := &types.ExtentLiveNoOp{Deps: []types.JobId{e.ids.Close}}
		job := &DownstairsIO{DsId: e.ids.Repair, Work: noop}
		e.co.enqueueToClients(job)
	}
}

// RepairComplete submits the explicit barrier noop serializing this
// extent's pipeline (§4.5's Noop phase).
func (e *LiveRepairEngine) RepairComplete() {
	e.phase = PhaseNoop
	noop := &types.ExtentLiveNoOp{Deps: []types.JobId{e.ids.Repair}}
	job := &DownstairsIO{DsId: e.ids.Noop, Work: noop}
	e.co.enqueueToClients(job)
}

// NoopComplete submits the pre-allocated ExtentLiveReopen, chained onto the
// barrier noop plus any deps a reservation already attached while a guest
// job looked past this extent's horizon.
func (e *LiveRepairEngine) NoopComplete() {
	e.phase = PhaseReopening
	deps := append([]types.JobId{e.ids.Noop}, e.reservationDeps...)
	reopen := &types.ExtentLiveReopen{Deps: deps, ExtentId: e.currentExtent}
	job := &DownstairsIO{DsId: e.ids.Reopen, Work: reopen}
	e.co.enqueueToClients(job)
}

// ReopenComplete marks this extent done. The caller advances to the next
// extent (BeginExtent) or, if this was the last one, submits the
// FinalFlush.
func (e *LiveRepairEngine) ReopenComplete() {
	e.phase = PhaseDone
}

// Done reports whether every extent has completed.
func (e *LiveRepairEngine) Done() bool {
	return e.phase == PhaseDone && e.currentExtent+1 >= types.Extent(e.extentCount)
}

// Abort finishes the current extent with no-ops for all remaining phases,
// returns the repair target to Faulted, and discards every reserved
// future-extent 4-tuple by still producing them as no-ops — other jobs
// already depend on them (§4.5's Abort rule).
func (e *LiveRepairEngine) Abort() []types.JobId {
	var noopIds []types.JobId
	switch e.phase {
	case PhaseClosing:
		noopIds = append(noopIds, e.ids.Repair, e.ids.Noop, e.ids.Reopen)
	case PhaseRepairing:
		noopIds = append(noopIds, e.ids.Noop, e.ids.Reopen)
	case PhaseNoop:
		noopIds = append(noopIds, e.ids.Reopen)
	}
	for _, id := range noopIds {
		job := &DownstairsIO{DsId: id, Work: &types.ExtentLiveNoOp{}}
		e.co.enqueueToClients(job)
	}

	for ext, res := range e.reservations {
		for _, id := range []types.JobId{res.ids.Close, res.ids.Repair, res.ids.Noop, res.ids.Reopen} {
			job := &DownstairsIO{DsId: id, Work: &types.ExtentLiveNoOp{}}
			e.co.enqueueToClients(job)
			noopIds = append(noopIds, id)
		}
		delete(e.reservations, ext)
	}

	for _, cid := range e.repairTargets {
		e.co.clients[cid].Transition(types.DsStateFaulted)
	}
	e.phase = PhaseDone
	return noopIds
}
