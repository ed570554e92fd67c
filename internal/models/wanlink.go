package models

// WanLink is one emulated WAN path: a software bridge enslaving exactly
// the inner (emulator-facing) and outer (upstream-facing) ports.
// Impairment is always applied to the inner interface.
//
// LastRequested holds the exact values the operator last asked for,
// independent of kernel rounding. It is display-only, set on a successful
// apply and cleared when the impairment is cleared; the kernel read-back
// remains the source of truth for current state.
type WanLink struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Bridge        string             `json:"bridge"`
	Inner         string             `json:"inner"`
	Outer         string             `json:"outer"`
	LastRequested *ImpairmentRequest `json:"last_requested,omitempty"`
}
