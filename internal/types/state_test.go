package types

import "testing"

func TestDsStateCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from DsState
		to   DsState
		want bool
	}{
		{"new to wait active", DsStateNew, DsStateWaitActive, true},
		{"new cannot skip to active", DsStateNew, DsStateActive, false},
		{"wait quorum to repair", DsStateWaitQuorum, DsStateRepair, true},
		{"wait quorum to active", DsStateWaitQuorum, DsStateActive, true},
		{"repair to active on clean reconcile", DsStateRepair, DsStateActive, true},
		{"repair to failed repair", DsStateRepair, DsStateFailedRepair, true},
		{"failed repair restarts at new", DsStateFailedRepair, DsStateNew, true},
		{"active to offline", DsStateActive, DsStateOffline, true},
		{"offline back to active after replay", DsStateOffline, DsStateActive, true},
		{"active to faulted", DsStateActive, DsStateFaulted, true},
		{"faulted drives replace cycle", DsStateFaulted, DsStateReplacing, true},
		{"replacing to replaced", DsStateReplacing, DsStateReplaced, true},
		{"replaced to live repair ready", DsStateReplaced, DsStateLiveRepairReady, true},
		{"live repair ready to live repair", DsStateLiveRepairReady, DsStateLiveRepair, true},
		{"live repair completes to active", DsStateLiveRepair, DsStateActive, true},
		{"live repair can fault again", DsStateLiveRepair, DsStateFaulted, true},
		{"disabled has no outgoing edges", DsStateDisabled, DsStateNew, false},
		{"cannot jump active to live repair", DsStateActive, DsStateLiveRepair, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%s.CanTransition(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestDsStateUnderRepair(t *testing.T) {
	tests := []struct {
		state DsState
		want  bool
	}{
		{DsStateActive, false},
		{DsStateReplaced, true},
		{DsStateLiveRepairReady, true},
		{DsStateLiveRepair, true},
		{DsStateFaulted, false},
	}
	for _, tt := range tests {
		if got := tt.state.UnderRepair(); got != tt.want {
			t.Errorf("%s.UnderRepair() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestIOStateTerminal(t *testing.T) {
	tests := []struct {
		state IOState
		want  bool
	}{
		{IOStateNew, false},
		{IOStateInProgress, false},
		{IOStateDone, true},
		{IOStateSkipped, true},
		{IOStateError, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
