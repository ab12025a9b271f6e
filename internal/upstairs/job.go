// Package upstairs implements the Upstairs coordination core: job
// dependency computation, three-way per-job state tracking, the
// acknowledgement and retirement rules, replay on reconnect, initial
// reconciliation, and the live-repair state machine.
//
// The coordinator (Coordinator, in coordinator.go) is the sole mutator of
// job state; everything in this package is designed to be driven from one
// goroutine, per the "no shared mutable state" design note — concurrency
// lives in the per-client connection tasks (internal/wire), not here.
package upstairs

import (
	"github.com/basinlabs/upstairs/internal/types"
)

// ReadResult holds the decrypted payload of a completed read, owned by the
// coordinator until it is handed off to the guest bridge on ack.
type ReadResult struct {
	Blocks [][]byte
}

// DownstairsIO is the per-job record tracked in ActiveJobs: the work
// itself, per-client state, ack/replay bookkeeping, and (for reads) the
// data and content hashes used to enforce I8.
type DownstairsIO struct {
	DsId    types.JobId
	GuestId types.GuestWorkId
	Work    types.IOop

	State [types.NumClients]types.IOState

	Acked  bool
	Replay bool

	Data *ReadResult

	// ReadHashes holds, per block position within a Read's Requests, the
	// content hash reported by the first client to complete it. Later
	// Done responses compare against this slice; a mismatch is fatal
	// (I8) unless Replay is set.
	ReadHashes []uint64
}

// StateCounts tallies the per-client states of a job, mirroring the
// original's `wc` shorthand used throughout the ack rule and retire_check.
type StateCounts struct {
	New, InProgress, Done, Skipped, Error int
}

// Count tabulates this job's three client states.
func (d *DownstairsIO) Count() StateCounts {
	var wc StateCounts
	for _, s := range d.State {
		switch s {
		case types.IOStateNew:
			wc.New++
		case types.IOStateInProgress:
			wc.InProgress++
		case types.IOStateDone:
			wc.Done++
		case types.IOStateSkipped:
			wc.Skipped++
		case types.IOStateError:
			wc.Error++
		}
	}
	return wc
}

// AllTerminal reports whether every client has reached a terminal state for
// this job (I3's "every client state is terminal" clause).
func (d *DownstairsIO) AllTerminal() bool {
	for _, s := range d.State {
		if !s.Terminal() {
			return false
		}
	}
	return true
}

// IsFlush reports whether this job is a Flush (only flushes retire jobs,
// §4.3).
func (d *DownstairsIO) IsFlush() bool {
	return d.Work.Kind() == types.KindFlush
}
