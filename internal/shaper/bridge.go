package shaper

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// BridgeManager reconciles the software bridges that pair each WAN link's
// inner and outer ports.
//
// Reconciliation is always a full teardown and rebuild, never an
// incremental edit: reattaching ports in place can leave stale
// forwarding-database or VLAN-filter state behind, while rebuilding from a
// detached baseline makes the result depend only on the requested pair.
type BridgeManager struct {
	runner Runner
	locks  *DeviceLocks
	log    *logrus.Logger
}

func NewBridgeManager(runner Runner, locks *DeviceLocks, log *logrus.Logger) *BridgeManager {
	return &BridgeManager{runner: runner, locks: locks, log: log}
}

// ReconcileBridge rebuilds bridgeName with exactly inner and outer as
// members, all up. Calling it twice in a row yields the same topology as
// calling it once. Only the create and attach steps decide the verdict;
// "already down" or "no master" along the way are normal.
func (m *BridgeManager) ReconcileBridge(ctx context.Context, bridgeName, inner, outer string) error {
	for _, name := range []string{bridgeName, inner, outer} {
		if err := ValidateName(name); err != nil {
			return err
		}
	}
	if inner == outer {
		return fmt.Errorf("inner and outer must differ, both are %q", inner)
	}

	unlock := m.locks.Lock(bridgeName, inner, outer)
	defer unlock()

	// Detach both ports from whatever they are attached to right now.
	// A port enslaved elsewhere is released here; its old bridge is left
	// alone even if it ends up empty.
	for _, dev := range []string{inner, outer} {
		m.run(ctx, "link", "set", "dev", dev, "down")
		m.run(ctx, "link", "set", "dev", dev, "nomaster")
	}

	// A leftover bridge under this name is deleted, not edited.
	if m.bridgeExists(ctx, bridgeName) {
		m.run(ctx, "link", "delete", bridgeName, "type", "bridge")
	}

	if res := m.run(ctx, "link", "add", "name", bridgeName, "type", "bridge"); !res.OK() {
		return &BridgeError{Bridge: bridgeName, Step: "create", Reason: res.Diagnostic()}
	}

	for _, dev := range []string{inner, outer} {
		if res := m.run(ctx, "link", "set", "dev", dev, "master", bridgeName); !res.OK() {
			return &BridgeError{Bridge: bridgeName, Step: "attach " + dev, Reason: res.Diagnostic()}
		}
		m.run(ctx, "link", "set", "dev", dev, "up")
	}

	m.run(ctx, "link", "set", "dev", bridgeName, "up")

	m.log.WithFields(logrus.Fields{
		"bridge": bridgeName,
		"inner":  inner,
		"outer":  outer,
	}).Info("bridge reconciled")
	return nil
}

// DestroyBridge deletes bridgeName. Destroying an absent bridge is a
// no-op success.
func (m *BridgeManager) DestroyBridge(ctx context.Context, bridgeName string) error {
	if err := ValidateName(bridgeName); err != nil {
		return err
	}

	unlock := m.locks.Lock(bridgeName)
	defer unlock()

	if !m.bridgeExists(ctx, bridgeName) {
		return nil
	}
	m.run(ctx, "link", "set", "dev", bridgeName, "down")
	m.run(ctx, "link", "delete", bridgeName, "type", "bridge")
	m.log.WithField("bridge", bridgeName).Info("bridge destroyed")
	return nil
}

func (m *BridgeManager) bridgeExists(ctx context.Context, name string) bool {
	return m.runner.Run(ctx, ipBin, "link", "show", name).OK()
}

func (m *BridgeManager) run(ctx context.Context, args ...string) Result {
	res := m.runner.Run(ctx, ipBin, args...)
	if !res.OK() {
		m.log.WithFields(logrus.Fields{
			"args":   args,
			"detail": res.Diagnostic(),
		}).Debug("ip command reported failure")
	}
	return res
}
