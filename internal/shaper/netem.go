package shaper

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"wanemu/internal/models"
)

// Fixed handles for the two shaping layers: the netem root owns 1:, the
// tbf rate cap hangs off the root's first class as 10:.
const (
	netemRootHandle = "1:0"
	tbfParent       = "1:1"
	tbfHandle       = "10:"
)

// tbf sizing for typical WAN-emulation rates: enough bucket to sustain the
// cap without the tbf adding queueing latency of its own.
const (
	tbfBuffer = "3200"
	tbfLimit  = "32768"
)

// Applier drives the netem/tbf reconciliation sequence on one interface:
// clear the old root, install netem, then optionally cap the rate.
type Applier struct {
	runner Runner
	locks  *DeviceLocks
	log    *logrus.Logger
}

func NewApplier(runner Runner, locks *DeviceLocks, log *logrus.Logger) *Applier {
	return &Applier{runner: runner, locks: locks, log: log}
}

// ApplyImpairment installs the requested delay/jitter/loss/rate on iface.
// Zero or negative parameters mean "not requested"; requesting nothing
// still installs a bare netem root (impairment disabled, qdisc present).
//
// The existing root qdisc is always removed first: netem and tbf handles
// cannot be edited in place once installed, so delete-and-recreate is the
// only way to avoid handle collisions and stale parameters.
//
// On a netem-stage failure the interface is left clean. On a tbf-stage
// failure the netem layer stays active without the rate cap; the returned
// StageError tells the two apart.
func (a *Applier) ApplyImpairment(ctx context.Context, iface string, req models.ImpairmentRequest) error {
	if err := ValidateName(iface); err != nil {
		return err
	}

	unlock := a.locks.Lock(iface)
	defer unlock()

	a.clear(ctx, iface)

	args := []string{"qdisc", "add", "dev", iface, "root", "handle", netemRootHandle, "netem"}
	if req.DelayMs > 0 {
		args = append(args, "delay", fmt.Sprintf("%.1fms", req.DelayMs))
		if req.JitterMs > 0 {
			args = append(args, fmt.Sprintf("%.1fms", req.JitterMs))
		}
	}
	if req.LossPct > 0 {
		args = append(args, "loss", fmt.Sprintf("%.3f%%", req.LossPct))
	}

	if res := a.runner.Run(ctx, tcBin, args...); !res.OK() {
		return &StageError{Stage: StageNetem, Device: iface, Reason: res.Diagnostic()}
	}

	if req.RateMbit > 0 {
		res := a.runner.Run(ctx, tcBin, "qdisc", "add", "dev", iface,
			"parent", tbfParent, "handle", tbfHandle, "tbf",
			"rate", fmt.Sprintf("%.3fmbit", req.RateMbit),
			"buffer", tbfBuffer, "limit", tbfLimit)
		if !res.OK() {
			return &StageError{Stage: StageTbf, Device: iface, Reason: res.Diagnostic()}
		}
	}

	a.log.WithFields(logrus.Fields{
		"device": iface,
		"delay":  req.DelayMs,
		"jitter": req.JitterMs,
		"loss":   req.LossPct,
		"rate":   req.RateMbit,
	}).Info("impairment applied")
	return nil
}

// ClearImpairment removes the root qdisc from iface. Clearing an
// interface that has no qdisc is a success with no side effect.
func (a *Applier) ClearImpairment(ctx context.Context, iface string) error {
	if err := ValidateName(iface); err != nil {
		return err
	}

	unlock := a.locks.Lock(iface)
	defer unlock()

	a.clear(ctx, iface)
	return nil
}

func (a *Applier) clear(ctx context.Context, iface string) {
	res := a.runner.Run(ctx, tcBin, "qdisc", "del", "dev", iface, "root")
	if !res.OK() {
		// Usually "RTNETLINK answers: No such file or directory" when
		// there was nothing to remove.
		a.log.WithFields(logrus.Fields{
			"device": iface,
			"detail": res.Diagnostic(),
		}).Debug("qdisc delete reported nothing to remove")
	}
}
