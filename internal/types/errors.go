package types

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the guest or used internally to distinguish
// recoverable failures from process-aborting ones (§7).
var (
	// ErrIoError wraps an aggregate n/3-failed result from the ack rule.
	ErrIoError = errors.New("io error")

	// ErrGenerationTooLow means activation was refused because the
	// guest-supplied generation number did not exceed the region's
	// current maximum (§4.4 step 1).
	ErrGenerationTooLow = errors.New("generation number too low")

	// ErrUpstairsInactive means a client observed that the Upstairs is
	// not active; that client transitions to Disabled.
	ErrUpstairsInactive = errors.New("upstairs inactive")

	// ErrDecryption is a fatal invariant violation: the process must
	// abort.
	ErrDecryption = errors.New("decryption error")

	// ErrNoLongerActive means the client became Faulted while a result
	// was in flight; the result is discarded.
	ErrNoLongerActive = errors.New("client no longer active")

	// ErrUuidMismatch means an inbound message's upstairs_id/session_id
	// didn't match; the message is dropped, no state changes.
	ErrUuidMismatch = errors.New("uuid mismatch")

	// ErrReplaceInvalid is returned verbatim for a malformed replace
	// request.
	ErrReplaceInvalid = errors.New("invalid replacement")

	// ErrSnapshotExists is returned verbatim when a named snapshot
	// already exists.
	ErrSnapshotExists = errors.New("snapshot exists already")

	// ErrSnapshotDuringRepair is this implementation's resolution of
	// Open Question (a): a snapshot flush is rejected outright while any
	// client is under repair (Replaced, LiveRepairReady or LiveRepair; see
	// DsState.UnderRepair), rather than attempting to
	// define what a Skipped repair target means for an all-three-Done
	// requirement.
	ErrSnapshotDuringRepair = errors.New("snapshot flush not permitted during live repair")

	// ErrDeactivateWhileOffline is this implementation's resolution of
	// Open Question (b): deactivating while any client is Offline is
	// rejected rather than panicking the coordinator.
	ErrDeactivateWhileOffline = errors.New("cannot deactivate while a client is offline")

	// ErrNotActive is returned by guest operations issued before
	// activation completes.
	ErrNotActive = errors.New("upstairs not active")

	// ErrUnknownJob means an inbound message referenced a JobId the
	// coordinator has no record of. If the client's state indicates
	// active use this is fatal (§7); if the client is in a state where
	// the job could plausibly have already retired, it is ignored.
	ErrUnknownJob = errors.New("unknown job id")
)

// HashMismatchError is a fatal invariant violation (I8): two Done read
// responses for the same JobId had different content hashes. It is a
// distinct type (not a sentinel) because callers want the JobId and the
// two differing hashes in the panic/log message.
type HashMismatchError struct {
	JobId    JobId
	Previous uint64
	Current  uint64
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("read hash mismatch on %s: previous %#x, current %#x", e.JobId, e.Previous, e.Current)
}
