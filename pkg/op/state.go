package op

// LocalState is the local snapshot of an entity paired with the logical
// instant it reflects, used as input to a ConflictResolver.
type LocalState struct {
	Data      Payload
	Timestamp int64
}

// RemoteState is the remote snapshot of an entity paired with the logical
// instant it reflects, used as input to a ConflictResolver.
type RemoteState struct {
	Data      Payload
	Timestamp int64
}

// ResolutionKind tags the variant of a Resolution.
type ResolutionKind string

const (
	// UseLocalKind retries the pending operation without mutating the entity.
	UseLocalKind ResolutionKind = "UseLocal"
	// UseRemoteKind overwrites the entity with remote data and drops the
	// pending operation.
	UseRemoteKind ResolutionKind = "UseRemote"
	// MergeKind overwrites the entity with merged data and requeues the
	// pending operation against it.
	MergeKind ResolutionKind = "Merge"
	// ManualKind marks the pending operation Failed, requiring the
	// application to resolve the conflict out of band.
	ManualKind ResolutionKind = "Manual"
)

// Resolution is the outcome a ConflictResolver produces for a Conflict.
type Resolution struct {
	Kind ResolutionKind
	// Data carries the authoritative payload for UseRemoteKind and
	// MergeKind; it is unused for UseLocalKind and ManualKind.
	Data Payload
	// Reason optionally explains a ManualKind resolution, e.g. which
	// fields conflicted.
	Reason string
}

// UseLocal builds a Resolution that retries the pending operation as-is.
func UseLocal() Resolution { return Resolution{Kind: UseLocalKind} }

// UseRemote builds a Resolution that overwrites the entity with data and
// drops the pending operation.
func UseRemote(data Payload) Resolution {
	return Resolution{Kind: UseRemoteKind, Data: data}
}

// Merge builds a Resolution that overwrites the entity with data and
// requeues the pending operation against it.
func Merge(data Payload) Resolution {
	return Resolution{Kind: MergeKind, Data: data}
}

// Manual builds a Resolution that requires out-of-band resolution.
func Manual(reason string) Resolution {
	return Resolution{Kind: ManualKind, Reason: reason}
}

// SyncPhase is the coarse state of the sync engine, reported on SyncStatusEvent.
type SyncPhase string

const (
	// Idle means no sync is in progress.
	Idle SyncPhase = "Idle"
	// SyncingPhase means a sync is actively draining pending operations.
	SyncingPhase SyncPhase = "Syncing"
	// ErrorPhase means the last sync() call stopped due to an error.
	ErrorPhase SyncPhase = "Error"
)

// SyncStatusEvent is one observation emitted on the engine's status stream.
type SyncStatusEvent struct {
	Status    SyncPhase
	Total     int
	Completed int
	Err       error
}
