package consensus

// BootstrapInfo is the replication position a node discovers at startup and
// must reconcile its local log against. The log recovery routine populates
// it; the engine consumes it once to seed round and commit tracking.
type BootstrapInfo struct {
	LastId          OpId
	LastCommittedId OpId
}

// NewBootstrapInfo returns a BootstrapInfo with both positions at MinimumOpId.
func NewBootstrapInfo() *BootstrapInfo {
	return &BootstrapInfo{
		LastId:          MinimumOpId(),
		LastCommittedId: MinimumOpId(),
	}
}
