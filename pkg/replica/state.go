package replica

// State of a session
type State uint32

const (
	// StateNew is the state of a session not loaded yet
	StateNew State = iota
	// StateOpenStructural opens the local store
	StateOpenStructural
	// StateReadEpoch reads the epoch in the initial transaction
	StateReadEpoch
	// StateReadDataVersionOrManifest reads the data version or the local index
	StateReadDataVersionOrManifest
	// StateReload assembles the dataset while the local store is being rebuilt
	StateReload
	// StateReady means the dataset is available to the caller
	StateReady
	// StateError means the load failed
	StateError
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpenStructural:
		return "open-structural"
	case StateReadEpoch:
		return "read-epoch"
	case StateReadDataVersionOrManifest:
		return "read-dataversion-or-manifest"
	case StateReload:
		return "reload"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CommitResult tells what the background commit did
type CommitResult uint32

const (
	// CommitNone means no commit was attempted: no usable local store, or a stale session
	CommitNone CommitResult = iota
	// CommitPending means the commit is running
	CommitPending
	// CommitUpToDate means the local store was already synchronized: nothing was written
	CommitUpToDate
	// CommitWritten means the local store was updated
	CommitWritten
	// CommitFailed means the commit failed
	CommitFailed
)

func (c CommitResult) String() string {
	switch c {
	case CommitNone:
		return "none"
	case CommitPending:
		return "pending"
	case CommitUpToDate:
		return "up-to-date"
	case CommitWritten:
		return "written"
	case CommitFailed:
		return "failed"
	default:
		return "unknown"
	}
}
