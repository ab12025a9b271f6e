// Package wire implements the framed Downstairs protocol: the messages
// exchanged per JobId/ReconciliationId (§6) and a websocket transport for
// them.
package wire

import "github.com/basinlabs/upstairs/internal/types"

// MessageKind tags the wire envelope's payload, mirroring the table in
// §6 of the guest/Downstairs interface.
type MessageKind string

const (
	MsgWrite                MessageKind = "write"
	MsgWriteUnwritten       MessageKind = "write_unwritten"
	MsgFlush                MessageKind = "flush"
	MsgReadRequest          MessageKind = "read_request"
	MsgExtentLiveClose      MessageKind = "extent_live_close"
	MsgExtentLiveFlushClose MessageKind = "extent_live_flush_close"
	MsgExtentLiveRepair     MessageKind = "extent_live_repair"
	MsgExtentLiveReopen     MessageKind = "extent_live_reopen"
	MsgExtentLiveNoOp       MessageKind = "extent_live_noop"
	MsgExtentFlush          MessageKind = "extent_flush"
	MsgExtentClose          MessageKind = "extent_close"
	MsgExtentRepair         MessageKind = "extent_repair"
	MsgExtentReopen         MessageKind = "extent_reopen"

	MsgWriteAck              MessageKind = "write_ack"
	MsgWriteUnwrittenAck     MessageKind = "write_unwritten_ack"
	MsgFlushAck              MessageKind = "flush_ack"
	MsgReadResponse          MessageKind = "read_response"
	MsgExtentLiveCloseAck    MessageKind = "extent_live_close_ack"
	MsgExtentLiveAckId       MessageKind = "extent_live_ack_id"
	MsgExtentLiveRepairAckId MessageKind = "extent_live_repair_ack_id"
	MsgRepairAckId           MessageKind = "repair_ack_id"
	MsgExtentError           MessageKind = "extent_error"
	MsgErrorReport           MessageKind = "error_report"
)

// Envelope is the outer frame for every message: identity fields common
// to all variants, plus a kind-tagged payload.
type Envelope struct {
	UpstairsID string      `json:"upstairs_id"`
	SessionID  string      `json:"session_id"`
	Kind       MessageKind `json:"kind"`

	JobID           *types.JobId `json:"job_id,omitempty"`
	ReconciliationID *uint64     `json:"reconciliation_id,omitempty"`
	Deps            []types.JobId `json:"deps,omitempty"`

	ExtentID         *types.Extent   `json:"extent_id,omitempty"`
	SourceClient     *types.ClientId `json:"source_client,omitempty"`
	SourceRepairAddr string          `json:"source_repair_addr,omitempty"`

	Payload []byte `json:"payload,omitempty"`

	// Response fields.
	Generation  *uint64 `json:"generation,omitempty"`
	FlushNumber *uint64 `json:"flush_number,omitempty"`
	Dirty       *bool   `json:"dirty,omitempty"`
	Hashes      []uint64 `json:"hashes,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// ReadRequestPayload packs a Read's block requests for transmission.
type ReadRequestPayload struct {
	Requests []types.ReadRequest `json:"requests"`
}

// WritePayload packs a Write/WriteUnwritten's items.
type WritePayload struct {
	Writes []types.WriteItem `json:"writes"`
}

// FlushPayload packs a Flush's generation/flush numbers and optional
// snapshot request.
type FlushPayload struct {
	FlushNumber uint64                 `json:"flush_number"`
	GenNumber   uint64                 `json:"gen_number"`
	Snapshot    *types.SnapshotDetails `json:"snapshot,omitempty"`
	ExtentLimit *types.Extent          `json:"extent_limit,omitempty"`
}
