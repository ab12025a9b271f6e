package upstairs

import (
	"sort"

	"github.com/basinlabs/upstairs/internal/types"
)

// ActiveJobs is the ordered map described in the design note: JobIds in
// insertion order (which is also JobId order, by I1), a lookup by id, and
// an auxiliary extent -> jobs index so DependencyIndex queries don't have
// to walk every outstanding job (§4.1).
//
// It also keeps a bounded ring of recently retired JobIds. Nothing new
// ever depends on a retired job directly (a job's dependencies are only
// ever ids that were active at the moment it was enqueued, and retirement
// only removes a contiguous prefix), but the ring lets I2 be checked
// cheaply during tests and diagnostics without retaining every id forever.
type ActiveJobs struct {
	order       []types.JobId
	jobs        map[types.JobId]*DownstairsIO
	extentIndex map[types.Extent][]types.JobId
	lastFlush   types.JobId

	retiredRing []types.JobId
	retiredSet  map[types.JobId]struct{}
	retiredCap  int
}

// NewActiveJobs builds an empty ActiveJobs. retiredCap bounds the
// completed-id ring; 0 disables it.
func NewActiveJobs(retiredCap int) *ActiveJobs {
	return &ActiveJobs{
		jobs:        make(map[types.JobId]*DownstairsIO),
		extentIndex: make(map[types.Extent][]types.JobId),
		retiredSet:  make(map[types.JobId]struct{}),
		retiredCap:  retiredCap,
	}
}

// Insert adds a newly enqueued job and indexes the extents it touches.
// Callers must insert in strictly increasing JobId order (I1).
func (a *ActiveJobs) Insert(job *DownstairsIO, extentSizeBlocks uint64) {
	a.order = append(a.order, job.DsId)
	a.jobs[job.DsId] = job
	for _, ext := range extentsTouchedBy(job.Work, extentSizeBlocks) {
		a.extentIndex[ext] = append(a.extentIndex[ext], job.DsId)
	}
	if job.Work.Kind() == types.KindFlush {
		a.lastFlush = job.DsId
	}
}

// Get looks up a job still outstanding.
func (a *ActiveJobs) Get(id types.JobId) (*DownstairsIO, bool) {
	j, ok := a.jobs[id]
	return j, ok
}

// Len reports how many jobs are outstanding.
func (a *ActiveJobs) Len() int { return len(a.order) }

// Front returns the oldest outstanding job, which retire_check walks from.
func (a *ActiveJobs) Front() (*DownstairsIO, bool) {
	if len(a.order) == 0 {
		return nil, false
	}
	return a.jobs[a.order[0]], true
}

// Ordered returns the outstanding JobIds in insertion (= numeric) order.
// The caller must not mutate the returned slice.
func (a *ActiveJobs) Ordered() []types.JobId { return a.order }

// LastFlush is the JobId of the most recently enqueued flush, or 0 if none
// has been enqueued yet.
func (a *ActiveJobs) LastFlush() types.JobId { return a.lastFlush }

// IsRetired reports whether id is in the completed-id ring.
func (a *ActiveJobs) IsRetired(id types.JobId) bool {
	_, ok := a.retiredSet[id]
	return ok
}

// RetireFront pops the oldest outstanding job and records it as retired.
// Callers (retire_check) are responsible for only calling this on jobs
// that satisfy I3.
func (a *ActiveJobs) RetireFront() types.JobId {
	id := a.order[0]
	a.order = a.order[1:]
	delete(a.jobs, id)
	a.pushRetired(id)
	return id
}

func (a *ActiveJobs) pushRetired(id types.JobId) {
	if a.retiredCap == 0 {
		return
	}
	a.retiredRing = append(a.retiredRing, id)
	a.retiredSet[id] = struct{}{}
	if len(a.retiredRing) > a.retiredCap {
		oldest := a.retiredRing[0]
		a.retiredRing = a.retiredRing[1:]
		delete(a.retiredSet, oldest)
	}
}

func extentsTouchedBy(op types.IOop, extentSizeBlocks uint64) []types.Extent {
	if ext, ok := op.TouchedExtent(); ok {
		return []types.Extent{ext}
	}
	blocks, ok := op.Blocks()
	if !ok {
		return nil
	}
	first, last := blocks.Extents(extentSizeBlocks)
	exts := make([]types.Extent, 0, last-first+1)
	for e := first; e <= last; e++ {
		exts = append(exts, e)
	}
	return exts
}

// DependencyIndex answers deps_for_* queries against an ActiveJobs using
// the extent index, per §4.1. It is a thin view, not a copy: it always
// reflects the ActiveJobs' current contents.
type DependencyIndex struct {
	active           *ActiveJobs
	extentSizeBlocks uint64
}

// NewDependencyIndex builds a DependencyIndex over active. extentSizeBlocks
// is the region's fixed extent size, used to map block ranges to extents.
func NewDependencyIndex(active *ActiveJobs, extentSizeBlocks uint64) *DependencyIndex {
	return &DependencyIndex{active: active, extentSizeBlocks: extentSizeBlocks}
}

// DepsForRead returns every prior job whose writes (including live-repair
// writes) touch any block in blocks, plus the most recent prior flush.
//
// The most recent flush stands in for every earlier flush: deps_for_flush
// already makes each flush depend on everything enqueued since the one
// before it, so depending on the latest flush alone is transitively
// equivalent to depending on all of them, and cheaper to compute.
func (d *DependencyIndex) DepsForRead(blocks types.ImpactedBlocks) []types.JobId {
	return d.depsTouching(blocks, writeLikeKinds)
}

// DepsForWrite returns every prior job whose reads, writes, or flushes
// touch any block in blocks, plus the most recent prior flush.
func (d *DependencyIndex) DepsForWrite(blocks types.ImpactedBlocks) []types.JobId {
	return d.depsTouching(blocks, readOrWriteKinds)
}

// DepsForFlush returns the most recent prior flush plus every job issued
// after it. Because retirement only ever removes a contiguous prefix
// ending at an acked, fully-resolved flush, every job still outstanding in
// ActiveJobs already satisfies "at or after the most recent prior flush" —
// so the answer is simply every currently outstanding job.
func (d *DependencyIndex) DepsForFlush() []types.JobId {
	out := make([]types.JobId, len(d.active.order))
	copy(out, d.active.order)
	return out
}

// DepsForRepair returns every prior job touching extent, plus the prior
// flush barrier.
func (d *DependencyIndex) DepsForRepair(extent types.Extent) []types.JobId {
	seen := make(map[types.JobId]struct{})
	var deps []types.JobId
	add := func(id types.JobId) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		deps = append(deps, id)
	}
	for _, id := range d.active.extentIndex[extent] {
		if _, ok := d.active.jobs[id]; ok {
			add(id)
		}
	}
	d.addLastFlush(add)
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

type kindSet map[types.IOopKind]bool

var writeLikeKinds = kindSet{
	types.KindWrite:           true,
	types.KindWriteUnwritten:  true,
	types.KindExtentLiveRepair: true,
}

var readOrWriteKinds = kindSet{
	types.KindRead:            true,
	types.KindWrite:           true,
	types.KindWriteUnwritten:  true,
	types.KindExtentLiveRepair: true,
}

func (d *DependencyIndex) depsTouching(blocks types.ImpactedBlocks, kinds kindSet) []types.JobId {
	first, last := blocks.Extents(d.extentSizeBlocks)
	seen := make(map[types.JobId]struct{})
	var deps []types.JobId
	add := func(id types.JobId) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		deps = append(deps, id)
	}
	for ext := first; ext <= last; ext++ {
		for _, id := range d.active.extentIndex[ext] {
			job, ok := d.active.jobs[id]
			if !ok {
				continue
			}
			if !kinds[job.Work.Kind()] {
				continue
			}
			if jb, ok := job.Work.Blocks(); ok && !jb.Overlaps(blocks) {
				continue
			}
			add(id)
		}
	}
	d.addLastFlush(add)
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

func (d *DependencyIndex) addLastFlush(add func(types.JobId)) {
	if d.active.lastFlush == 0 {
		return
	}
	if _, ok := d.active.jobs[d.active.lastFlush]; ok {
		add(d.active.lastFlush)
	}
}
