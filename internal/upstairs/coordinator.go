package upstairs

import (
	"github.com/basinlabs/upstairs/internal/types"
)

// IOOutstandingMax is the fault threshold: a client with more than this
// many unacked in-flight jobs is treated as timed out and forcibly
// Faulted (§5).
const IOOutstandingMax = 57

// Coordinator is the sole mutator of ActiveJobs, per-client metadata,
// live-repair state, and the reconcile queue (§5). It does no locking of
// its own, so calls into it must not run concurrently.
type Coordinator struct {
	clients [types.NumClients]*DownstairsClient
	active  *ActiveJobs
	deps    *DependencyIndex

	extentSizeBlocks uint64
	extentCount      uint64

	nextJobId   types.JobId
	nextFlushNo uint64
	nextGuestId types.GuestWorkId

	writeBytesOutstanding uint64

	generation uint64
	activated  bool
}

// NewCoordinator builds a Coordinator for a region of extentCount extents
// of extentSizeBlocks blocks each, addressing the three clients at the
// given target addresses.
func NewCoordinator(targets [types.NumClients]string, extentSizeBlocks, extentCount uint64) *Coordinator {
	active := NewActiveJobs(4096)
	co := &Coordinator{
		active:           active,
		deps:             NewDependencyIndex(active, extentSizeBlocks),
		extentSizeBlocks: extentSizeBlocks,
		extentCount:      extentCount,
		nextJobId:        types.FirstJobId,
	}
	for i := range co.clients {
		co.clients[i] = NewDownstairsClient(types.ClientId(i), targets[i], "")
	}
	return co
}

func (co *Coordinator) allocJobId() types.JobId {
	id := co.nextJobId
	co.nextJobId++
	return id
}

// enqueueToClients inserts job into ActiveJobs and calls Enqueue on every
// client, fast-acking Write/WriteUnwritten at submission and any job that
// every client has skipped (§4.3's submission rule).
func (co *Coordinator) enqueueToClients(job *DownstairsIO) {
	for _, c := range co.clients {
		c.Enqueue(job)
	}
	co.active.Insert(job, co.extentSizeBlocks)

	switch job.Work.Kind() {
	case types.KindWrite, types.KindWriteUnwritten:
		job.Acked = true
	default:
		if job.Count().Skipped == types.NumClients {
			job.Acked = true
		}
	}
}

// SubmitRead allocates a JobId, computes deps_for_read, and enqueues a
// Read across all three clients.
func (co *Coordinator) SubmitRead(guestId types.GuestWorkId, requests []types.ReadRequest) *DownstairsIO {
	blocks, _ := (&types.Read{Requests: requests}).Blocks()
	deps := co.deps.DepsForRead(blocks)
	id := co.allocJobId()
	work := &types.Read{Deps: deps, Requests: requests}
	job := &DownstairsIO{DsId: id, GuestId: guestId, Work: work}
	co.enqueueToClients(job)
	return job
}

// SubmitWrite allocates a JobId, computes deps_for_write, and enqueues a
// Write (or WriteUnwritten) across all three clients, fast-acked at
// submission.
func (co *Coordinator) SubmitWrite(guestId types.GuestWorkId, writes []types.WriteItem, unwritten bool) *DownstairsIO {
	blocks, _ := writesToBlocksPublic(writes)
	deps := co.deps.DepsForWrite(blocks)
	id := co.allocJobId()
	var work types.IOop
	if unwritten {
		wu := &types.WriteUnwritten{Deps: deps, Writes: writes}
		work = wu
		co.writeBytesOutstanding += wu.Bytes()
	} else {
		w := &types.Write{Deps: deps, Writes: writes}
		work = w
		co.writeBytesOutstanding += w.Bytes()
	}
	job := &DownstairsIO{DsId: id, GuestId: guestId, Work: work}
	co.enqueueToClients(job)
	return job
}

// SubmitFlush allocates a JobId, computes deps_for_flush, and enqueues a
// Flush across all three clients.
func (co *Coordinator) SubmitFlush(guestId types.GuestWorkId, snapshot *types.SnapshotDetails) (*DownstairsIO, error) {
	if snapshot != nil {
		for _, c := range co.clients {
			if c.State.UnderRepair() {
				return nil, types.ErrSnapshotDuringRepair
			}
		}
	}
	deps := co.deps.DepsForFlush()
	id := co.allocJobId()
	co.nextFlushNo++
	work := &types.Flush{Deps: deps, FlushNumber: co.nextFlushNo, GenNumber: co.generation, Snapshot: snapshot}
	job := &DownstairsIO{DsId: id, GuestId: guestId, Work: work}
	co.enqueueToClients(job)
	return job, nil
}

// writesToBlocksPublic mirrors types.writesToBlocks without exporting it
// from the types package, since Coordinator needs the impacted range
// before constructing the concrete Write/WriteUnwritten value.
func writesToBlocksPublic(writes []types.WriteItem) (types.ImpactedBlocks, bool) {
	if len(writes) == 0 {
		return types.ImpactedBlocks{}, false
	}
	first := writes[0].Block
	last := first
	for _, w := range writes {
		if w.Block < first {
			first = w.Block
		}
		if w.Block > last {
			last = w.Block
		}
	}
	return types.ImpactedBlocks{First: first, Last: last}, true
}

// CompleteJob applies a client's completion for a job to that client's
// state and marks the job acked when the ack rule is first satisfied.
// Returns whether the job became newly ackable and, if so, the job's
// observable result. write_bytes_outstanding (I4) is released only when
// the job retires, in RetireCheck.
func (co *Coordinator) CompleteJob(clientId types.ClientId, dsId types.JobId, res CompletionResult) (job *DownstairsIO, ackedNow bool, result error) {
	job, ok := co.active.Get(dsId)
	if !ok {
		return nil, false, types.ErrUnknownJob
	}
	c := co.clients[clientId]
	ackableNow := c.ProcessIOCompletion(job, res)
	if ackableNow && !job.Acked {
		job.Acked = true
		return job, true, AckResult(job)
	}
	return job, false, nil
}

// FaultIfOverloaded implements the fault threshold (§5): a client whose
// outstanding unacked count exceeds IOOutstandingMax is skipped on every
// active job and transitioned to Faulted.
func (co *Coordinator) FaultIfOverloaded(clientId types.ClientId) bool {
	c := co.clients[clientId]
	if c.Outstanding <= IOOutstandingMax {
		return false
	}
	for _, id := range co.active.Ordered() {
		job, ok := co.active.Get(id)
		if !ok {
			continue
		}
		if job.State[clientId].Terminal() {
			continue
		}
		job.State[clientId] = types.IOStateSkipped
		c.recordSkip(id)
		c.Outstanding--
	}
	c.Transition(types.DsStateFaulted)
	return true
}

// RetireCheck implements retire_check: only flushes retire jobs. When
// flushId is acked and terminal on every client, it walks ActiveJobs from
// the front up to and including flushId, retiring jobs that are acked and
// terminal on every client (I3); it stops at the first job that is not,
// leaving that job and everything after it in place. It decrements
// write_bytes_outstanding for retired writes, trims each client's skipped
// set to ids >= flushId, and returns the retired ids in order.
func (co *Coordinator) RetireCheck(flushId types.JobId) []types.JobId {
	flush, ok := co.active.Get(flushId)
	if !ok || !flush.IsFlush() || !flush.Acked || !flush.AllTerminal() {
		return nil
	}

	var retired []types.JobId
	for {
		job, ok := co.active.Front()
		if !ok {
			break
		}
		if !job.Acked || !job.AllTerminal() {
			break
		}
		isTarget := job.DsId == flushId
		co.retireOne(job)
		retired = append(retired, job.DsId)
		if isTarget {
			break
		}
	}

	for _, c := range co.clients {
		c.TrimSkippedBefore(flushId)
	}
	return retired
}

func (co *Coordinator) retireOne(job *DownstairsIO) {
	switch w := job.Work.(type) {
	case *types.Write:
		co.writeBytesOutstanding -= w.Bytes()
	case *types.WriteUnwritten:
		co.writeBytesOutstanding -= w.Bytes()
	}
	co.active.RetireFront()
}

// WriteBytesOutstanding reports the I4 accounting value.
func (co *Coordinator) WriteBytesOutstanding() uint64 { return co.writeBytesOutstanding }

// Client exposes a client's bookkeeping for the wire layer and tests.
func (co *Coordinator) Client(id types.ClientId) *DownstairsClient { return co.clients[id] }

// Deactivate is permitted only when the last job in ActiveJobs is a flush
// and no job is New or InProgress on the deactivating client (§4.3).
func (co *Coordinator) Deactivate(clientId types.ClientId) error {
	c := co.clients[clientId]
	if c.State == types.DsStateOffline {
		return types.ErrDeactivateWhileOffline
	}
	order := co.active.Ordered()
	if len(order) > 0 {
		last, _ := co.active.Get(order[len(order)-1])
		if !last.IsFlush() {
			return types.ErrNotActive
		}
	}
	for _, id := range order {
		job, _ := co.active.Get(id)
		switch job.State[clientId] {
		case types.IOStateNew, types.IOStateInProgress:
			return types.ErrNotActive
		}
	}
	co.activated = false
	return nil
}

// Activate validates the guest-supplied generation number against the
// region's current maximum (§4.4 step 1) and, if accepted, becomes the
// new floor for subsequent flush generation numbers.
func (co *Coordinator) Activate(generation uint64, maxGen uint64) error {
	if generation <= maxGen {
		return types.ErrGenerationTooLow
	}
	co.generation = generation
	co.activated = true
	return nil
}

// Activated reports whether the coordinator has completed activation.
func (co *Coordinator) Activated() bool { return co.activated }

// AllocGuestWorkId hands out the next GuestWorkId for a new guest
// operation.
func (co *Coordinator) AllocGuestWorkId() types.GuestWorkId {
	id := co.nextGuestId
	co.nextGuestId++
	return id
}
