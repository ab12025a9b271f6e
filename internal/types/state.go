package types

// IOState is the per-(JobId, ClientId) lifecycle state of a single job on
// a single replica.
type IOState int

const (
	IOStateNew IOState = iota
	IOStateInProgress
	IOStateDone
	IOStateSkipped
	IOStateError
)

func (s IOState) String() string {
	switch s {
	case IOStateNew:
		return "New"
	case IOStateInProgress:
		return "InProgress"
	case IOStateDone:
		return "Done"
	case IOStateSkipped:
		return "Skipped"
	case IOStateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether this state will never change again for this job
// on this client.
func (s IOState) Terminal() bool {
	switch s {
	case IOStateDone, IOStateSkipped, IOStateError:
		return true
	default:
		return false
	}
}

// DsState is the lifecycle of one Downstairs client connection, per §4.2.
// Only the transitions in CanTransition are legal; the table lives here
// rather than as scattered `if` statements so every caller checks the same
// rule.
type DsState int

const (
	DsStateNew DsState = iota
	DsStateWaitActive
	DsStateWaitQuorum
	DsStateRepair
	DsStateFailedRepair
	DsStateActive
	DsStateOffline
	DsStateFaulted
	DsStateReplacing
	DsStateReplaced
	DsStateLiveRepairReady
	DsStateLiveRepair
	DsStateDisabled
)

func (s DsState) String() string {
	switch s {
	case DsStateNew:
		return "New"
	case DsStateWaitActive:
		return "WaitActive"
	case DsStateWaitQuorum:
		return "WaitQuorum"
	case DsStateRepair:
		return "Repair"
	case DsStateFailedRepair:
		return "FailedRepair"
	case DsStateActive:
		return "Active"
	case DsStateOffline:
		return "Offline"
	case DsStateFaulted:
		return "Faulted"
	case DsStateReplacing:
		return "Replacing"
	case DsStateReplaced:
		return "Replaced"
	case DsStateLiveRepairReady:
		return "LiveRepairReady"
	case DsStateLiveRepair:
		return "LiveRepair"
	case DsStateDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// dsTransitions enumerates every legal DsState -> DsState edge from §4.2.
// Disabled is terminal and has no outgoing edges.
var dsTransitions = map[DsState]map[DsState]bool{
	DsStateNew: {
		DsStateWaitActive: true,
	},
	DsStateWaitActive: {
		DsStateWaitQuorum: true,
		DsStateDisabled:   true,
	},
	DsStateWaitQuorum: {
		DsStateRepair: true,
		DsStateActive: true,
	},
	DsStateRepair: {
		DsStateActive:       true,
		DsStateFailedRepair: true,
	},
	DsStateFailedRepair: {
		DsStateNew: true,
	},
	DsStateActive: {
		DsStateOffline:  true,
		DsStateFaulted:  true,
		DsStateDisabled: true,
	},
	DsStateOffline: {
		DsStateActive:  true,
		DsStateFaulted: true,
	},
	DsStateFaulted: {
		DsStateReplacing: true,
		DsStateNew:       true,
	},
	DsStateReplacing: {
		DsStateReplaced: true,
	},
	DsStateReplaced: {
		DsStateLiveRepairReady: true,
	},
	DsStateLiveRepairReady: {
		DsStateLiveRepair: true,
	},
	DsStateLiveRepair: {
		DsStateActive:  true,
		DsStateFaulted: true,
	},
}

// CanTransition reports whether moving from s to next is a legal DsState
// edge.
func (s DsState) CanTransition(next DsState) bool {
	return dsTransitions[s][next]
}

// UnderRepair reports whether a client in this state is currently subject
// to the extent_limit gate of live repair (§4.5).
func (s DsState) UnderRepair() bool {
	return s == DsStateReplaced || s == DsStateLiveRepairReady || s == DsStateLiveRepair
}
