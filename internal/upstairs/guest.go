package upstairs

import (
	"context"

	"github.com/basinlabs/upstairs/internal/types"
)

// BlockReqWaiter is a one-shot completion channel handed to the guest for
// a single operation: the coordinator closes it (after storing the
// result) exactly once, when the operation's ack rule is satisfied (§5).
type BlockReqWaiter struct {
	done   chan struct{}
	result error
	data   *ReadResult
}

func newBlockReqWaiter() *BlockReqWaiter {
	return &BlockReqWaiter{done: make(chan struct{})}
}

func (w *BlockReqWaiter) complete(result error, data *ReadResult) {
	w.result = result
	w.data = data
	close(w.done)
}

// Wait blocks until the operation acks, or ctx is cancelled first.
func (w *BlockReqWaiter) Wait(ctx context.Context) (*ReadResult, error) {
	select {
	case <-w.done:
		return w.data, w.result
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GuestBridge is the blocking-from-the-guest's-view, internally-async
// surface described in §6. It owns the map from GuestWorkId to the
// waiter a guest call is blocked on; NotifyAcked looks up the waiter for
// an acked job's GuestId and completes it.
type GuestBridge struct {
	co      *Coordinator
	waiters map[types.GuestWorkId]*BlockReqWaiter
}

// NewGuestBridge builds a bridge in front of co.
func NewGuestBridge(co *Coordinator) *GuestBridge {
	return &GuestBridge{co: co, waiters: make(map[types.GuestWorkId]*BlockReqWaiter)}
}

func (g *GuestBridge) register(guestId types.GuestWorkId) *BlockReqWaiter {
	w := newBlockReqWaiter()
	g.waiters[guestId] = w
	return w
}

// NotifyAcked completes the guest waiter of a job that has become newly
// ackable, if it has one (some jobs, like internal repair ops, have none).
// Coordinator does not call it; whoever applies completions through
// Coordinator.CompleteJob passes each newly acked job here.
func (g *GuestBridge) NotifyAcked(job *DownstairsIO, result error) {
	w, ok := g.waiters[job.GuestId]
	if !ok {
		return
	}
	delete(g.waiters, job.GuestId)
	var data *ReadResult
	if job.Work.Kind() == types.KindRead {
		data = job.Data
	}
	w.complete(result, data)
}

// Read issues a guest read and returns a waiter for its result.
func (g *GuestBridge) Read(requests []types.ReadRequest) *BlockReqWaiter {
	guestId := g.co.AllocGuestWorkId()
	w := g.register(guestId)
	g.co.SubmitRead(guestId, requests)
	return w
}

// Write issues a guest write (or write-unwritten) and returns a waiter.
// Because writes are fast-acked at submission, the waiter typically
// completes immediately.
func (g *GuestBridge) Write(writes []types.WriteItem, unwritten bool) *BlockReqWaiter {
	guestId := g.co.AllocGuestWorkId()
	w := g.register(guestId)
	job := g.co.SubmitWrite(guestId, writes, unwritten)
	if job.Acked {
		w.complete(nil, nil)
		delete(g.waiters, guestId)
	}
	return w
}

// Flush issues a guest flush, optionally taking a named snapshot.
func (g *GuestBridge) Flush(snapshot *types.SnapshotDetails) (*BlockReqWaiter, error) {
	guestId := g.co.AllocGuestWorkId()
	w := g.register(guestId)
	_, err := g.co.SubmitFlush(guestId, snapshot)
	if err != nil {
		delete(g.waiters, guestId)
		return nil, err
	}
	return w, nil
}

// Activate validates and applies a guest activation request.
func (g *GuestBridge) Activate(generation, maxGen uint64) error {
	return g.co.Activate(generation, maxGen)
}

// Deactivate requests deactivation of every client; per §4.3 this only
// succeeds once the last outstanding job is a flush and nothing is
// New/InProgress on that client.
func (g *GuestBridge) Deactivate() error {
	for _, c := range types.AllClientIds() {
		if err := g.co.Deactivate(c); err != nil {
			return err
		}
	}
	return nil
}

// ShowWorkEntry summarizes one outstanding job for the show_work guest
// operation.
type ShowWorkEntry struct {
	DsId    types.JobId
	GuestId types.GuestWorkId
	Kind    types.IOopKind
	State   [types.NumClients]types.IOState
	Acked   bool
}

// ShowWork lists every job currently outstanding, oldest first.
func (g *GuestBridge) ShowWork() []ShowWorkEntry {
	order := g.co.active.Ordered()
	entries := make([]ShowWorkEntry, 0, len(order))
	for _, id := range order {
		job, ok := g.co.active.Get(id)
		if !ok {
			continue
		}
		entries = append(entries, ShowWorkEntry{
			DsId:    job.DsId,
			GuestId: job.GuestId,
			Kind:    job.Work.Kind(),
			State:   job.State,
			Acked:   job.Acked,
		})
	}
	return entries
}
