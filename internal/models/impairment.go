package models

// ImpairmentState is the structured read-back of an interface's qdisc
// stack. Kind is empty when no qdisc is installed, "netem" for a shaping
// root we manage, or whatever other kind the kernel reports (present but
// opaque). Nil fields were absent from the kernel's text.
//
// DelayMs/JitterMs/LossPct come from the netem root; RateMbit comes from a
// tbf leaf, a separate qdisc layer that is managed together with netem but
// read from a different line of the listing.
type ImpairmentState struct {
	Raw      string   `json:"raw"`
	Kind     string   `json:"kind"`
	DelayMs  *float64 `json:"delay_ms,omitempty"`
	JitterMs *float64 `json:"jitter_ms,omitempty"`
	LossPct  *float64 `json:"loss_pct,omitempty"`
	RateMbit *float64 `json:"rate_mbit,omitempty"`
}

// IsNetem reports whether the root qdisc is a netem we can describe.
func (s ImpairmentState) IsNetem() bool { return s.Kind == "netem" }

// ImpairmentRequest carries the operator-requested parameters. Zero or
// negative values mean the parameter was not requested.
type ImpairmentRequest struct {
	DelayMs  float64 `json:"delay_ms"`
	JitterMs float64 `json:"jitter_ms"`
	LossPct  float64 `json:"loss_pct"`
	RateMbit float64 `json:"rate_mbit"`
}

// IsZero reports whether no parameter was requested at all.
func (r ImpairmentRequest) IsZero() bool {
	return r.DelayMs <= 0 && r.JitterMs <= 0 && r.LossPct <= 0 && r.RateMbit <= 0
}
