package shaper

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"wanemu/internal/models"
)

const ipBin = "ip"

// BridgePrefix is the naming convention for bridges this system manages.
// Anything carrying it is treated as a bridge regardless of who created it.
const BridgePrefix = "br-"

// Inventory enumerates host interfaces and classifies their roles. All
// queries degrade to empty results on failure; a host where `ip` cannot
// run simply has nothing to offer.
type Inventory struct {
	runner Runner
	log    *logrus.Logger
}

func NewInventory(runner Runner, log *logrus.Logger) *Inventory {
	return &Inventory{runner: runner, log: log}
}

// ListInterfaces scans the kernel link table and classifies each entry.
// mgmt is the recorded management interface name, or empty if none has
// been recorded yet. The loopback is dropped entirely.
func (inv *Inventory) ListInterfaces(ctx context.Context, mgmt string) []models.NetworkInterface {
	res := inv.runner.Run(ctx, ipBin, "-o", "link", "show")
	if !res.OK() {
		inv.log.WithField("detail", res.Diagnostic()).Warn("link table query failed, reporting no interfaces")
		return nil
	}

	hasIPv4 := make(map[string]bool)
	for _, name := range inv.ipv4Interfaces(ctx) {
		hasIPv4[name] = true
	}

	var out []models.NetworkInterface
	for _, line := range strings.Split(res.Stdout, "\n") {
		idx, name, master, ok := parseLinkLine(line)
		if !ok || name == "lo" {
			continue
		}
		ni := models.NetworkInterface{
			Index:   idx,
			Name:    name,
			Master:  master,
			HasIPv4: hasIPv4[name],
		}
		switch {
		case strings.HasPrefix(name, BridgePrefix):
			ni.Role = models.RoleBridge
		case name == mgmt:
			ni.Role = models.RoleManagement
		case master != "":
			ni.Role = models.RoleMember
		default:
			ni.Role = models.RoleEligible
		}
		out = append(out, ni)
	}
	return out
}

// InferManagementInterface guesses the management interface as the first
// non-loopback interface carrying an IPv4 address, in address-table order.
// The guess is only meant to be used when no management interface has been
// recorded yet.
func (inv *Inventory) InferManagementInterface(ctx context.Context) (string, bool) {
	names := inv.ipv4Interfaces(ctx)
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// EligibleInterfaces returns the names an operator may pick as a WAN
// link's inner or outer port: everything except the loopback, the
// management interface and bridge devices. Ports currently enslaved to a
// bridge stay selectable because reconciliation detaches them first.
func (inv *Inventory) EligibleInterfaces(ctx context.Context, mgmt string) []string {
	var out []string
	for _, ni := range inv.ListInterfaces(ctx, mgmt) {
		if ni.Role == models.RoleBridge || ni.Role == models.RoleManagement {
			continue
		}
		out = append(out, ni.Name)
	}
	return out
}

// ipv4Interfaces lists the non-loopback interfaces that carry at least one
// IPv4 address, in the kernel's address-table order.
func (inv *Inventory) ipv4Interfaces(ctx context.Context) []string {
	res := inv.runner.Run(ctx, ipBin, "-o", "addr", "show")
	if !res.OK() {
		return nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(res.Stdout, "\n") {
		// "2: ens18    inet 10.240.54.8/24 brd ..."
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[2] != "inet" {
			continue
		}
		name := stripAltName(fields[1])
		if name == "lo" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// parseLinkLine parses one `ip -o link show` line, e.g.
// "2: ens19: <BROADCAST,MULTICAST,UP> mtu 1500 qdisc fq_codel master br-wan1 state UP ..."
func parseLinkLine(line string) (index int, name, master string, ok bool) {
	parts := strings.SplitN(line, ": ", 3)
	if len(parts) < 3 {
		return 0, "", "", false
	}
	index, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, "", "", false
	}
	name = stripAltName(parts[1])
	if name == "" {
		return 0, "", "", false
	}

	fields := strings.Fields(parts[2])
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "master" {
			master = fields[i+1]
			break
		}
	}
	return index, name, master, true
}

// stripAltName drops the "@parent" suffix that VLAN and other
// sub-interfaces carry in ip's output.
func stripAltName(s string) string {
	return strings.TrimSpace(strings.SplitN(s, "@", 2)[0])
}
