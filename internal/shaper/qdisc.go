package shaper

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"wanemu/internal/models"
)

const tcBin = "tc"

var (
	qdiscKindRe   = regexp.MustCompile(`qdisc\s+(\S+)\s+\d+:`)
	netemDelayRe  = regexp.MustCompile(`delay\s+([\d.]+)ms`)
	netemJitterRe = regexp.MustCompile(`delay\s+([\d.]+)ms\s+([\d.]+)ms`)
	netemLossRe   = regexp.MustCompile(`loss\s+([\d.]+)%`)
	tbfRateRe     = regexp.MustCompile(`tbf\s+.*rate\s+([\d.]+)([KMG])bit`)
)

// QdiscReader reads back the kernel's view of an interface's shaping
// state. The view is always a fresh read; nothing is cached.
type QdiscReader struct {
	runner Runner
	log    *logrus.Logger
}

func NewQdiscReader(runner Runner, log *logrus.Logger) *QdiscReader {
	return &QdiscReader{runner: runner, log: log}
}

// ReadQdiscState returns the impairment currently installed on iface. A
// failed tc invocation is not an error: its diagnostic text is run through
// the same parser and simply matches nothing, yielding an all-absent
// state, exactly as an interface with no qdisc would.
func (q *QdiscReader) ReadQdiscState(ctx context.Context, iface string) models.ImpairmentState {
	if err := ValidateName(iface); err != nil {
		q.log.WithField("device", iface).Warn("refusing qdisc read for invalid name")
		return models.ImpairmentState{}
	}

	res := q.runner.Run(ctx, tcBin, "qdisc", "show", "dev", iface)
	raw := res.Stdout
	if !res.OK() {
		raw = res.Diagnostic()
	}

	st := ParseQdiscOutput(raw)
	if st.Kind == "" && st.Raw != "" {
		q.log.WithField("device", iface).Debug("qdisc text did not match expected grammar")
	}
	return st
}

// ParseQdiscOutput parses `tc qdisc show dev X` output. Only the first
// line (the root qdisc) is inspected for the kind and the netem
// parameters; the tbf rate may appear on any line since it lives on a
// child qdisc. Kinds other than netem are reported present but opaque.
func ParseQdiscOutput(raw string) models.ImpairmentState {
	st := models.ImpairmentState{Raw: strings.TrimSpace(raw)}
	if st.Raw == "" {
		return st
	}

	lines := strings.Split(st.Raw, "\n")
	first := lines[0]

	m := qdiscKindRe.FindStringSubmatch(first)
	if m == nil {
		return st
	}
	st.Kind = m[1]
	if st.Kind != "netem" {
		return st
	}

	if m := netemDelayRe.FindStringSubmatch(first); m != nil {
		st.DelayMs = parseFloat(m[1])
	}
	// Jitter only exists in the two-number form "delay Xms Yms". A jitter
	// reading without a delay cannot be told apart from absence, so it is
	// treated as absent.
	if st.DelayMs != nil {
		if m := netemJitterRe.FindStringSubmatch(first); m != nil {
			st.JitterMs = parseFloat(m[2])
		}
	}
	if m := netemLossRe.FindStringSubmatch(first); m != nil {
		st.LossPct = parseFloat(m[1])
	}

	// The rate cap lives on the tbf leaf, a different qdisc layer than the
	// netem root. First match in listing order wins.
	for _, line := range lines {
		m := tbfRateRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v := parseFloat(m[1])
		if v == nil {
			continue
		}
		switch m[2] {
		case "K":
			*v /= 1000.0
		case "G":
			*v *= 1000.0
		}
		st.RateMbit = v
		break
	}

	return st
}

// parseFloat never panics or errors out: a malformed number in a matched
// pattern behaves as if the pattern had not matched.
func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
