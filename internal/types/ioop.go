package types

// IOopKind tags the concrete type of an IOop without a type switch at every
// call site; the ack rule table (internal/upstairs/client.go) and cdt-style summaries
// both dispatch on it.
type IOopKind int

const (
	KindRead IOopKind = iota
	KindWrite
	KindWriteUnwritten
	KindFlush
	KindExtentFlushClose
	KindExtentLiveRepair
	KindExtentLiveReopen
	KindExtentLiveNoOp
)

func (k IOopKind) String() string {
	switch k {
	case KindRead:
		return "Read"
	case KindWrite:
		return "Write"
	case KindWriteUnwritten:
		return "WriteUnwritten"
	case KindFlush:
		return "Flush"
	case KindExtentFlushClose:
		return "ExtentFlushClose"
	case KindExtentLiveRepair:
		return "ExtentLiveRepair"
	case KindExtentLiveReopen:
		return "ExtentLiveReopen"
	case KindExtentLiveNoOp:
		return "ExtentLiveNoOp"
	default:
		return "Unknown"
	}
}

// IOop is the closed sum type of every job the coordinator can submit to a
// Downstairs. It is a Go interface rather than a class hierarchy so the
// coordinator is forced to pattern-match (via Kind) exhaustively; adding a
// variant means updating the ack-rule table, the dependency index, and the
// show-work summary together instead of relying on virtual dispatch to
// paper over a forgotten case.
type IOop interface {
	// Dependencies returns the prior JobIds this job must follow.
	Dependencies() []JobId
	// Kind identifies which variant this is for ack-rule / dependency
	// dispatch.
	Kind() IOopKind
	// Blocks reports the range of blocks this job touches, when it has
	// one (Flush and the ExtentLive* repair ops don't touch guest blocks
	// directly and return the zero value with ok=false).
	Blocks() (blocks ImpactedBlocks, ok bool)
	// TouchedExtent reports the single extent a repair op targets, when
	// it has one.
	TouchedExtent() (extent Extent, ok bool)

	isIOop()
}

// WriteItem is a single block's worth of write payload.
type WriteItem struct {
	Block Block
	Data  []byte
}

// ReadRequest asks for NumBlocks blocks starting at Block.
type ReadRequest struct {
	Block     Block
	NumBlocks uint64
}

// SnapshotDetails requests a named point-in-time snapshot as part of a
// flush.
type SnapshotDetails struct {
	Name string
}

// Read requests block data. It is never fast-acked: ackability waits for
// the first Done response (§4.3).
type Read struct {
	Deps     []JobId
	Requests []ReadRequest
}

func (r *Read) isIOop()                {}
func (r *Read) Dependencies() []JobId  { return r.Deps }
func (r *Read) Kind() IOopKind         { return KindRead }
func (r *Read) TouchedExtent() (Extent, bool) { return 0, false }
func (r *Read) Blocks() (ImpactedBlocks, bool) {
	if len(r.Requests) == 0 {
		return ImpactedBlocks{}, false
	}
	first := r.Requests[0].Block
	last := first
	for _, req := range r.Requests {
		lo := req.Block
		hi := req.Block + Block(req.NumBlocks) - 1
		if lo < first {
			first = lo
		}
		if hi > last {
			last = hi
		}
	}
	return ImpactedBlocks{First: first, Last: last}, true
}

// Write is a normal write: it may overwrite previously written blocks.
// Writes are fast-acked at submission (§4.3).
type Write struct {
	Deps   []JobId
	Writes []WriteItem
}

func (w *Write) isIOop()               {}
func (w *Write) Dependencies() []JobId { return w.Deps }
func (w *Write) Kind() IOopKind        { return KindWrite }
func (w *Write) TouchedExtent() (Extent, bool) { return 0, false }
func (w *Write) Blocks() (ImpactedBlocks, bool) { return writesToBlocks(w.Writes) }

// Bytes returns the total payload size in bytes, used for
// write_bytes_outstanding accounting (I4).
func (w *Write) Bytes() uint64 { return writesBytes(w.Writes) }

// WriteUnwritten only takes effect on blocks that are still zero on the
// Downstairs ("write-if-zero").
type WriteUnwritten struct {
	Deps   []JobId
	Writes []WriteItem
}

func (w *WriteUnwritten) isIOop()               {}
func (w *WriteUnwritten) Dependencies() []JobId { return w.Deps }
func (w *WriteUnwritten) Kind() IOopKind        { return KindWriteUnwritten }
func (w *WriteUnwritten) TouchedExtent() (Extent, bool) { return 0, false }
func (w *WriteUnwritten) Blocks() (ImpactedBlocks, bool) { return writesToBlocks(w.Writes) }
func (w *WriteUnwritten) Bytes() uint64                  { return writesBytes(w.Writes) }

// Flush is a barrier: on success everywhere it lets retire_check retire
// every earlier resolved job (§4.3, I3).
type Flush struct {
	Deps        []JobId
	FlushNumber uint64
	GenNumber   uint64
	Snapshot    *SnapshotDetails
	ExtentLimit *Extent
}

func (f *Flush) isIOop()               {}
func (f *Flush) Dependencies() []JobId { return f.Deps }
func (f *Flush) Kind() IOopKind        { return KindFlush }
func (f *Flush) Blocks() (ImpactedBlocks, bool)        { return ImpactedBlocks{}, false }
func (f *Flush) TouchedExtent() (Extent, bool) { return 0, false }

// ExtentFlushClose is the live-repair Closing-phase op sent to the source
// client; it returns the extent's (gen, flush, dirty) triple.
type ExtentFlushClose struct {
	Deps          []JobId
	ExtentId      Extent
	FlushNumber   uint64
	GenNumber     uint64
	SourceClient  ClientId
	RepairClients []ClientId
}

func (e *ExtentFlushClose) isIOop()               {}
func (e *ExtentFlushClose) Dependencies() []JobId { return e.Deps }
func (e *ExtentFlushClose) Kind() IOopKind        { return KindExtentFlushClose }
func (e *ExtentFlushClose) Blocks() (ImpactedBlocks, bool) { return ImpactedBlocks{}, false }
func (e *ExtentFlushClose) TouchedExtent() (Extent, bool) { return e.ExtentId, true }

// ExtentLiveRepair copies an extent's contents from source to target while
// guest I/O continues on other extents.
type ExtentLiveRepair struct {
	Deps             []JobId
	ExtentId         Extent
	SourceClient     ClientId
	SourceRepairAddr string
	RepairClients    []ClientId
}

func (e *ExtentLiveRepair) isIOop()               {}
func (e *ExtentLiveRepair) Dependencies() []JobId { return e.Deps }
func (e *ExtentLiveRepair) Kind() IOopKind        { return KindExtentLiveRepair }
func (e *ExtentLiveRepair) Blocks() (ImpactedBlocks, bool) { return ImpactedBlocks{}, false }
func (e *ExtentLiveRepair) TouchedExtent() (Extent, bool) { return e.ExtentId, true }

// ExtentLiveReopen reopens an extent after close/repair/noop.
type ExtentLiveReopen struct {
	Deps     []JobId
	ExtentId Extent
}

func (e *ExtentLiveReopen) isIOop()               {}
func (e *ExtentLiveReopen) Dependencies() []JobId { return e.Deps }
func (e *ExtentLiveReopen) Kind() IOopKind        { return KindExtentLiveReopen }
func (e *ExtentLiveReopen) Blocks() (ImpactedBlocks, bool) { return ImpactedBlocks{}, false }
func (e *ExtentLiveReopen) TouchedExtent() (Extent, bool) { return e.ExtentId, true }

// ExtentLiveNoOp is an explicit barrier serializing an extent's live-repair
// pipeline; it carries no extent of its own (it targets whichever extent
// its dependencies already pin down).
type ExtentLiveNoOp struct {
	Deps []JobId
}

func (e *ExtentLiveNoOp) isIOop()               {}
func (e *ExtentLiveNoOp) Dependencies() []JobId { return e.Deps }
func (e *ExtentLiveNoOp) Kind() IOopKind        { return KindExtentLiveNoOp }
func (e *ExtentLiveNoOp) Blocks() (ImpactedBlocks, bool) { return ImpactedBlocks{}, false }
func (e *ExtentLiveNoOp) TouchedExtent() (Extent, bool) { return 0, false }

func writesToBlocks(writes []WriteItem) (ImpactedBlocks, bool) {
	if len(writes) == 0 {
		return ImpactedBlocks{}, false
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
	return ImpactedBlocks{First: first, Last: last}, true
}

func writesBytes(writes []WriteItem) uint64 {
	var total uint64
	for _, w := range writes {
		total += uint64(len(w.Data))
	}
	return total
}
