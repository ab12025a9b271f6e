package upstairs

import (
	"github.com/cespare/xxhash/v2"

	"github.com/basinlabs/upstairs/internal/types"
)

// LiveRepairInfo tracks the coordinator's view of a client currently under
// repair: the extent boundary gating guest-visible work, and the minimum
// JobId below which dependency pruning must not strip anything (§4.2).
type LiveRepairInfo struct {
	ExtentLimit *types.Extent
	MinId       types.JobId
}

// DownstairsClient is the coordinator's per-replica bookkeeping: connection
// identity, lifecycle state, the JobIds it has skipped, its last
// acknowledged flush, and (while under repair) the live-repair horizon.
// Everything here is mutated only by the coordinator goroutine.
type DownstairsClient struct {
	Id ClientId

	Target     string
	RepairAddr string

	State DsState

	// LastFlush is the JobId of the most recent flush this client has
	// completed without being skipped; replay resets every job above it.
	LastFlush types.JobId

	// Skipped retains only ids >= LastFlush (I7's retention rule).
	Skipped map[types.JobId]struct{}

	Outstanding int

	Repair *LiveRepairInfo
}

type (
	ClientId = types.ClientId
	DsState  = types.DsState
)

// NewDownstairsClient builds a client record in its initial New state.
func NewDownstairsClient(id ClientId, target, repairAddr string) *DownstairsClient {
	return &DownstairsClient{
		Id:         id,
		Target:     target,
		RepairAddr: repairAddr,
		State:      types.DsStateNew,
		Skipped:    make(map[types.JobId]struct{}),
	}
}

// Transition moves the client to next if legal, per the DsState table.
func (c *DownstairsClient) Transition(next DsState) bool {
	if !c.State.CanTransition(next) {
		return false
	}
	c.State = next
	return true
}

// Enqueue decides whether this client sees job as New or Skipped, based on
// DsState and, while under repair, whether every extent the job touches is
// within the current repair horizon. This is the only place the repair
// horizon gates client-visible work (§4.2).
func (c *DownstairsClient) Enqueue(job *DownstairsIO) {
	switch c.State {
	case types.DsStateDisabled, types.DsStateFaulted, types.DsStateOffline:
		job.State[c.Id] = types.IOStateSkipped
		c.recordSkip(job.DsId)
		return
	}
	if c.Repair != nil && c.Repair.ExtentLimit != nil && c.jobPastExtentLimit(job) {
		job.State[c.Id] = types.IOStateSkipped
		c.recordSkip(job.DsId)
		return
	}
	job.State[c.Id] = types.IOStateNew
	c.Outstanding++
}

func (c *DownstairsClient) jobPastExtentLimit(job *DownstairsIO) bool {
	limit := *c.Repair.ExtentLimit
	if ext, ok := job.Work.TouchedExtent(); ok {
		return ext > limit
	}
	if blocks, ok := job.Work.Blocks(); ok {
		// extentSizeBlocks is unknown here by design: callers that need
		// exact per-block gating resolve the extent range before calling
		// Enqueue and pass a job whose TouchedExtent already reflects it.
		// Flush and other region-wide ops (neither Blocks nor
		// TouchedExtent) are never gated by extent_limit.
		_ = blocks
		return false
	}
	return false
}

func (c *DownstairsClient) recordSkip(id types.JobId) {
	c.Skipped[id] = struct{}{}
}

// PruneSkippedDeps strips deps that refer to jobs this client has skipped
// (they will never complete here), preserving any dependency at or after
// minId (the live-repair reservation horizon).
func (c *DownstairsClient) PruneSkippedDeps(deps []types.JobId, minId types.JobId) []types.JobId {
	out := deps[:0:0]
	for _, d := range deps {
		if d >= minId {
			out = append(out, d)
			continue
		}
		if _, skipped := c.Skipped[d]; skipped {
			continue
		}
		out = append(out, d)
	}
	return out
}

// TrimSkippedBefore drops recorded skips below flushId, per I7's retention
// rule ("retained only for ids >= last_flush") applied at retirement.
func (c *DownstairsClient) TrimSkippedBefore(flushId types.JobId) {
	for id := range c.Skipped {
		if id < flushId {
			delete(c.Skipped, id)
		}
	}
}

// Replay resets every job above LastFlush back to New on this client, per
// §4.3's replay rule, and marks the job itself for I8 suppression. It is
// the coordinator's responsibility to call this for every outstanding job
// after transitioning a client from Offline back toward Active.
func (c *DownstairsClient) Replay(job *DownstairsIO) {
	if job.DsId <= c.LastFlush {
		return
	}
	job.State[c.Id] = types.IOStateNew
	job.Replay = true
	delete(c.Skipped, job.DsId)
}

// CompletionResult is what a client connection reports back for a job.
type CompletionResult struct {
	Err        error
	ReadHashes []uint64
	Data       *ReadResult
}

// ProcessIOCompletion applies a client's response to job, enforcing I8 on
// reads and returning whether this completion is the one that makes job
// newly ackable (§4.3's ack rule, dispatched per IOop kind).
//
// Panics on a non-replay hash mismatch, mirroring the original's
// treatment of I8 as a fatal invariant violation rather than a recoverable
// error.
func (c *DownstairsClient) ProcessIOCompletion(job *DownstairsIO, res CompletionResult) (ackableNow bool) {
	wasAckable := job.Acked || isAckable(job)

	if res.Err != nil {
		job.State[c.Id] = types.IOStateError
	} else {
		job.State[c.Id] = types.IOStateDone
		if job.Work.Kind() == types.KindFlush {
			c.LastFlush = job.DsId
		}
		if job.Work.Kind() == types.KindRead && res.Data != nil {
			c.recordReadHashes(job, res.ReadHashes)
			if job.Data == nil {
				job.Data = res.Data
			}
		}
	}
	c.Outstanding--

	nowAckable := isAckable(job)
	return !wasAckable && nowAckable
}

// recordReadHashes enforces I8: the first Done response's content hashes
// become the record; every later Done response must match unless the job
// is in replay.
func (c *DownstairsClient) recordReadHashes(job *DownstairsIO, hashes []uint64) {
	if job.ReadHashes == nil {
		job.ReadHashes = hashes
		return
	}
	if job.Replay {
		return
	}
	for i, h := range hashes {
		if i >= len(job.ReadHashes) {
			break
		}
		if job.ReadHashes[i] != h {
			panic(&types.HashMismatchError{JobId: job.DsId, Previous: job.ReadHashes[i], Current: h})
		}
	}
}

// HashReadBlocks computes the per-block content hashes used to enforce I8.
func HashReadBlocks(blocks [][]byte) []uint64 {
	hashes := make([]uint64, len(blocks))
	for i, b := range blocks {
		hashes[i] = xxhash.Sum64(b)
	}
	return hashes
}

func isSnapshotFlush(op types.IOop) bool {
	f, ok := op.(*types.Flush)
	return ok && f.Snapshot != nil
}

// isAckable applies the per-kind ack rule from §4.3 against a job's
// current per-client state counts.
func isAckable(job *DownstairsIO) bool {
	wc := job.Count()
	switch job.Work.Kind() {
	case types.KindRead:
		return wc.Done >= 1 || wc.Error+wc.Skipped == types.NumClients
	case types.KindWrite, types.KindWriteUnwritten:
		return true
	case types.KindFlush:
		if isSnapshotFlush(job.Work) {
			// A snapshot must be point-in-time consistent across all
			// three clients, so it can't ack on a bare majority: wait
			// for every client to reach a terminal state.
			return wc.Skipped+wc.Error+wc.Done == types.NumClients
		}
		return wc.Done >= 2 || wc.Skipped+wc.Error+wc.Done == types.NumClients
	default: // repair ops
		return wc.Done+wc.Skipped+wc.Error == types.NumClients
	}
}

// AckResult reports the observable success/failure of an acked job per
// §4.3's per-kind success rule.
func AckResult(job *DownstairsIO) error {
	wc := job.Count()
	switch job.Work.Kind() {
	case types.KindRead:
		if wc.Error == types.NumClients {
			return types.ErrIoError
		}
		return nil
	case types.KindWrite, types.KindWriteUnwritten, types.KindFlush:
		if wc.Skipped+wc.Error > 1 {
			return types.ErrIoError
		}
		return nil
	default: // repair ops
		if wc.Error == 0 && wc.Skipped <= 1 {
			return nil
		}
		return types.ErrIoError
	}
}
