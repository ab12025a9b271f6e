package wire

import (
	"encoding/json"
	"testing"

	"github.com/basinlabs/upstairs/internal/types"
)

func TestEnvelopeRoundTripsWritePayload(t *testing.T) {
	jobID := types.JobId(1001)
	deps := []types.JobId{1000}

	payload, err := json.Marshal(WritePayload{Writes: []types.WriteItem{{Block: 4, Data: []byte("abc")}}})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	env := Envelope{
		UpstairsID: "u1",
		SessionID:  "s1",
		Kind:       MsgWrite,
		JobID:      &jobID,
		Deps:       deps,
		Payload:    payload,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var out Envelope
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if out.Kind != MsgWrite {
		t.Errorf("Kind = %v, want MsgWrite", out.Kind)
	}
	if out.JobID == nil || *out.JobID != jobID {
		t.Fatalf("JobID mismatch: %+v", out.JobID)
	}
	if len(out.Deps) != 1 || out.Deps[0] != types.JobId(1000) {
		t.Fatalf("Deps mismatch: %+v", out.Deps)
	}

	var wp WritePayload
	if err := json.Unmarshal(out.Payload, &wp); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(wp.Writes) != 1 || wp.Writes[0].Block != 4 || string(wp.Writes[0].Data) != "abc" {
		t.Fatalf("unexpected payload: %+v", wp)
	}
}

func TestEnvelopeOmitsEmptyOptionalFields(t *testing.T) {
	env := Envelope{UpstairsID: "u1", SessionID: "s1", Kind: MsgFlushAck}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	for _, omitted := range []string{"job_id", "reconciliation_id", "deps", "extent_id", "error"} {
		if _, present := asMap[omitted]; present {
			t.Errorf("field %q should be omitted when zero, got %v", omitted, asMap[omitted])
		}
	}
}
