package shaper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridgeManager(k *fakeKernel) *BridgeManager {
	return NewBridgeManager(k, NewDeviceLocks(), testLogger())
}

func assertTopology(t *testing.T, k *fakeKernel, bridge string, members ...string) {
	t.Helper()
	br := k.device(bridge)
	require.NotNil(t, br, "bridge %s must exist", bridge)
	assert.True(t, br.bridge)
	assert.True(t, br.up, "bridge %s must be up", bridge)
	for _, m := range members {
		dev := k.device(m)
		require.NotNil(t, dev)
		assert.Equal(t, bridge, dev.master, "%s must be enslaved to %s", m, bridge)
		assert.True(t, dev.up, "%s must be up", m)
	}
}

func TestReconcileBridgeCreatesTopology(t *testing.T) {
	k := newFakeKernel("eth1", "eth2")
	m := newTestBridgeManager(k)

	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	assertTopology(t, k, "br-wan1", "eth1", "eth2")
}

func TestReconcileBridgeIdempotent(t *testing.T) {
	k := newFakeKernel("eth1", "eth2")
	m := newTestBridgeManager(k)

	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	assertTopology(t, k, "br-wan1", "eth1", "eth2")
}

func TestReconcileBridgeStealsEnslavedPort(t *testing.T) {
	// eth1 starts out a member of br-old; reconciliation detaches it but
	// leaves br-old itself alone, even though it ends up empty.
	k := newFakeKernel("eth1", "eth2")
	k.addDevice("br-old", true)
	k.device("eth1").master = "br-old"
	m := newTestBridgeManager(k)

	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	assertTopology(t, k, "br-wan1", "eth1", "eth2")

	require.NotNil(t, k.device("br-old"), "foreign bridges are never deleted")
	assert.Empty(t, k.callsMatching("delete br-old"))
}

func TestReconcileBridgeReplacesExistingBridge(t *testing.T) {
	// A bridge already present under the target name is deleted and
	// rebuilt, never edited in place.
	k := newFakeKernel("eth1", "eth2", "eth3")
	m := newTestBridgeManager(k)

	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth3"))

	assertTopology(t, k, "br-wan1", "eth1", "eth3")
	assert.Empty(t, k.device("eth2").master, "replaced member must be detached")
	assert.NotEmpty(t, k.callsMatching("link delete br-wan1"))
}

func TestReconcileBridgeRejectsSamePort(t *testing.T) {
	k := newFakeKernel("eth1")
	m := newTestBridgeManager(k)

	err := m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth1")
	require.Error(t, err)
	assert.Empty(t, k.calls)
}

func TestReconcileBridgeCreateFailureIsLoadBearing(t *testing.T) {
	k := newFakeKernel("eth1", "eth2")
	k.failWith("ip link add name br-wan1", "RTNETLINK answers: Operation not permitted")
	m := newTestBridgeManager(k)

	err := m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2")
	var brErr *BridgeError
	require.ErrorAs(t, err, &brErr)
	assert.Equal(t, "create", brErr.Step)
	assert.Equal(t, "RTNETLINK answers: Operation not permitted", brErr.Reason)
}

func TestReconcileBridgeAttachFailureIsLoadBearing(t *testing.T) {
	k := newFakeKernel("eth1", "eth2")
	k.failWith("ip link set dev eth2 master", "RTNETLINK answers: Device or resource busy")
	m := newTestBridgeManager(k)

	err := m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2")
	var brErr *BridgeError
	require.ErrorAs(t, err, &brErr)
	assert.Equal(t, "attach eth2", brErr.Step)
}

func TestReconcileBridgeToleratesDownAndNomasterFailures(t *testing.T) {
	// "already down" style failures on the detach steps must not change
	// the verdict.
	k := newFakeKernel("eth1", "eth2")
	k.failWith("ip link set dev eth1 down", "RTNETLINK answers: Device or resource busy")
	k.failWith("ip link set dev eth1 nomaster", "RTNETLINK answers: Device or resource busy")
	m := newTestBridgeManager(k)

	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	assertTopology(t, k, "br-wan1", "eth2")
}

func TestDestroyBridgeIdempotent(t *testing.T) {
	k := newFakeKernel("eth1", "eth2")
	m := newTestBridgeManager(k)

	// Absent bridge: no-op success.
	require.NoError(t, m.DestroyBridge(testCtx(), "br-wan1"))

	require.NoError(t, m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2"))
	require.NoError(t, m.DestroyBridge(testCtx(), "br-wan1"))
	assert.Nil(t, k.device("br-wan1"))

	require.NoError(t, m.DestroyBridge(testCtx(), "br-wan1"))
}

func TestReconcileBridgeRejectsUnsafeNames(t *testing.T) {
	k := newFakeKernel("eth1", "eth2")
	m := newTestBridgeManager(k)

	for _, bad := range []string{"", "br wan1", "br-wan1;reboot", "averyveryverylongname"} {
		err := m.ReconcileBridge(testCtx(), bad, "eth1", "eth2")
		require.Error(t, err, "name %q", bad)
	}
	assert.Empty(t, k.calls)
}

func TestConcurrentReconcileDisjointBridges(t *testing.T) {
	k := newFakeKernel("eth1", "eth2", "eth3", "eth4")
	locks := NewDeviceLocks()
	m := NewBridgeManager(k, locks, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.ReconcileBridge(testCtx(), "br-wan1", "eth1", "eth2")
		}()
		go func() {
			defer wg.Done()
			_ = m.ReconcileBridge(testCtx(), "br-wan2", "eth3", "eth4")
		}()
	}
	wg.Wait()

	assertTopology(t, k, "br-wan1", "eth1", "eth2")
	assertTopology(t, k, "br-wan2", "eth3", "eth4")
}
