package consensus

import "fmt"

// FaultHooks lets test harnesses inject delays or failures at precise
// protocol points without instrumenting production code paths. Embed
// NoOpFaultHooks and override the points of interest.
type FaultHooks interface {
	PreStart() error
	PostStart() error
	PreConfigChange() error
	PostConfigChange() error
	PreReplicate() error
	PostReplicate() error
	PreUpdate() error
	PostUpdate() error
	PreShutdown() error
	PostShutdown() error
}

// NoOpFaultHooks implements every FaultHooks point as a no-op.
type NoOpFaultHooks struct{}

func (NoOpFaultHooks) PreStart() error         { return nil }
func (NoOpFaultHooks) PostStart() error        { return nil }
func (NoOpFaultHooks) PreConfigChange() error  { return nil }
func (NoOpFaultHooks) PostConfigChange() error { return nil }
func (NoOpFaultHooks) PreReplicate() error     { return nil }
func (NoOpFaultHooks) PostReplicate() error    { return nil }
func (NoOpFaultHooks) PreUpdate() error        { return nil }
func (NoOpFaultHooks) PostUpdate() error       { return nil }
func (NoOpFaultHooks) PreShutdown() error      { return nil }
func (NoOpFaultHooks) PostShutdown() error     { return nil }

// HookPoint names a lifecycle point at which fault hooks run.
type HookPoint int

// The closed set of hook points.
const (
	HookPreStart HookPoint = iota
	HookPostStart
	HookPreConfigChange
	HookPostConfigChange
	HookPreReplicate
	HookPostReplicate
	HookPreUpdate
	HookPostUpdate
	HookPreShutdown
	HookPostShutdown
)

func (p HookPoint) String() string {
	switch p {
	case HookPreStart:
		return "PRE_START"
	case HookPostStart:
		return "POST_START"
	case HookPreConfigChange:
		return "PRE_CONFIG_CHANGE"
	case HookPostConfigChange:
		return "POST_CONFIG_CHANGE"
	case HookPreReplicate:
		return "PRE_REPLICATE"
	case HookPostReplicate:
		return "POST_REPLICATE"
	case HookPreUpdate:
		return "PRE_UPDATE"
	case HookPostUpdate:
		return "POST_UPDATE"
	case HookPreShutdown:
		return "PRE_SHUTDOWN"
	case HookPostShutdown:
		return "POST_SHUTDOWN"
	}
	return fmt.Sprintf("HookPoint(%d)", int(p))
}
