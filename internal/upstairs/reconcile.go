package upstairs

import (
	"github.com/basinlabs/upstairs/internal/types"
)

// ExtentMetadata is a client's reported (generation, flush_number, dirty)
// triple for one extent, gathered during collate (§4.4).
type ExtentMetadata struct {
	Generation  uint64
	FlushNumber uint64
	Dirty       bool
}

// Mend is one disagreement found during collate: the extent in question,
// the client chosen as the authoritative source, and the clients that need
// to be repaired from it.
type Mend struct {
	Extent types.Extent
	Source types.ClientId
	Dests  []types.ClientId
}

// ReconcileKind tags the four-message sequence a Mend expands into.
type ReconcileKind int

const (
	ReconcileExtentFlush ReconcileKind = iota
	ReconcileExtentClose
	ReconcileExtentRepair
	ReconcileExtentReopen
)

// ReconcileTask is one queued item in reconcile_task_list, requiring a
// RepairAckId from every Repair client before the next task is sent.
type ReconcileTask struct {
	Id     uint64
	Kind   ReconcileKind
	Extent types.Extent
	Source types.ClientId
	Dests  []types.ClientId
}

// ReconcileEngine drives collate and the reconcile queue (§4.4). It holds
// no client connections; the coordinator is responsible for actually
// sending each task and reporting RepairAckId/ExtentError back.
type ReconcileEngine struct {
	queue    []ReconcileTask
	nextId   uint64
	inFlight *ReconcileTask
}

// NewReconcileEngine builds an empty engine.
func NewReconcileEngine() *ReconcileEngine {
	return &ReconcileEngine{}
}

// Collate computes max_flush+1/max_gen+1 from the three clients' reported
// per-extent metadata, validates the guest-supplied generation against
// max_gen, and builds the mismatch list and its expanded task queue.
//
// metadata[client][extent] holds that client's report; all three slices
// must have the same length (extentCount).
func (r *ReconcileEngine) Collate(metadata [types.NumClients][]ExtentMetadata, guestGeneration uint64) (mismatches []Mend, maxGen uint64, err error) {
	var maxFlush uint64
	for _, perClient := range metadata {
		for _, m := range perClient {
			if m.FlushNumber > maxFlush {
				maxFlush = m.FlushNumber
			}
			if m.Generation > maxGen {
				maxGen = m.Generation
			}
		}
	}
	maxFlush++
	maxGen++

	if guestGeneration <= maxGen {
		return nil, maxGen, types.ErrGenerationTooLow
	}

	extentCount := len(metadata[0])
	for ext := 0; ext < extentCount; ext++ {
		if mend, ok := mendExtent(metadata, types.Extent(ext)); ok {
			mismatches = append(mismatches, mend)
		}
	}

	r.queue = r.queue[:0]
	for _, m := range mismatches {
		r.enqueueMend(m)
	}
	return mismatches, maxGen, nil
}

// mendExtent decides, per the glossary's mend rule, whether an extent's
// three reported triples disagree and if so which client is authoritative:
// the highest (generation, flush_number) wins; ties broken toward the
// lowest ClientId. Clients whose triple doesn't match the winner's become
// repair destinations.
func mendExtent(metadata [types.NumClients][]ExtentMetadata, ext types.Extent) (Mend, bool) {
	first := metadata[0][ext]
	allMatch := true
	for _, c := range types.AllClientIds() {
		m := metadata[c][ext]
		if m != first {
			allMatch = false
			break
		}
	}
	if allMatch {
		return Mend{}, false
	}

	source := types.ClientId0
	best := metadata[source][ext]
	for _, c := range types.AllClientIds() {
		m := metadata[c][ext]
		if m.Generation > best.Generation || (m.Generation == best.Generation && m.FlushNumber > best.FlushNumber) {
			best = m
			source = c
		}
	}

	var dests []types.ClientId
	for _, c := range types.AllClientIds() {
		if c == source {
			continue
		}
		if metadata[c][ext] != best {
			dests = append(dests, c)
		}
	}
	return Mend{Extent: ext, Source: source, Dests: dests}, true
}

func (r *ReconcileEngine) enqueueMend(m Mend) {
	for _, kind := range []ReconcileKind{ReconcileExtentFlush, ReconcileExtentClose, ReconcileExtentRepair, ReconcileExtentReopen} {
		r.queue = append(r.queue, ReconcileTask{
			Id:     r.nextId,
			Kind:   kind,
			Extent: m.Extent,
			Source: m.Source,
			Dests:  m.Dests,
		})
		r.nextId++
	}
}

// Next dequeues and returns the next task to send, or ok=false if the
// queue is drained. The returned task becomes in-flight: callers must
// report its outcome via Ack or Abort before calling Next again.
func (r *ReconcileEngine) Next() (task ReconcileTask, ok bool) {
	if r.inFlight != nil || len(r.queue) == 0 {
		return ReconcileTask{}, false
	}
	task = r.queue[0]
	r.queue = r.queue[1:]
	r.inFlight = &task
	return task, true
}

// Ack records that every Repair client returned a RepairAckId for the
// in-flight task, allowing the next one to be sent.
func (r *ReconcileEngine) Ack() {
	r.inFlight = nil
}

// Abort clears the remaining queue on any ExtentError or a client leaving
// Repair mid-sequence (§4.4 step 4). The caller is responsible for
// transitioning remaining Repair clients to FailedRepair.
func (r *ReconcileEngine) Abort() {
	r.inFlight = nil
	r.queue = nil
}

// Drained reports whether the reconcile queue has no more work and
// nothing in flight, i.e. all three clients may transition to Active.
func (r *ReconcileEngine) Drained() bool {
	return r.inFlight == nil && len(r.queue) == 0
}
