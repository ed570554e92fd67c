package shaper

import "fmt"

// Apply stages. A netem-stage failure leaves the interface with no qdisc
// at all; a tbf-stage failure leaves the netem layer active with no rate
// cap. Callers must be able to tell the two apart.
const (
	StageNetem = "netem"
	StageTbf   = "tbf"
)

// StageError reports which stage of an impairment apply failed. Reason is
// the kernel command's own diagnostic text, unparaphrased.
type StageError struct {
	Stage  string
	Device string
	Reason string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed on %s: %s", e.Stage, e.Device, e.Reason)
}

// BridgeError reports a load-bearing step failure during bridge
// reconciliation.
type BridgeError struct {
	Bridge string
	Step   string
	Reason string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge %s: %s failed: %s", e.Bridge, e.Step, e.Reason)
}
