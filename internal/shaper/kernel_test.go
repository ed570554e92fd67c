package shaper

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// fakeKernel simulates just enough of the kernel's link table and qdisc
// stack to exercise the reconciliation paths: it accepts the same ip/tc
// argv vectors the real runner would execute and renders listings in the
// kernel's textual format.
type fakeKernel struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	nextIdx int

	// Recorded invocations, one "name arg arg..." string per call.
	calls []string

	// Failure injection: any command line with one of these prefixes
	// fails with the mapped stderr text.
	failures map[string]string
}

type fakeDevice struct {
	index  int
	bridge bool
	up     bool
	master string
	ipv4   string

	netemDelay  string // literal clause values as given to tc
	netemJitter string
	netemLoss   string
	hasNetem    bool
	tbfRate     float64
	hasTbf      bool
}

func newFakeKernel(devices ...string) *fakeKernel {
	k := &fakeKernel{
		devices:  make(map[string]*fakeDevice),
		nextIdx:  2, // index 1 is the loopback, which the fake never lists
		failures: make(map[string]string),
	}
	for _, d := range devices {
		k.addDevice(d, false)
	}
	return k
}

func (k *fakeKernel) addDevice(name string, bridge bool) *fakeDevice {
	d := &fakeDevice{index: k.nextIdx, bridge: bridge}
	k.nextIdx++
	k.devices[name] = d
	return d
}

func (k *fakeKernel) setIPv4(name, cidr string) {
	k.devices[name].ipv4 = cidr
}

func (k *fakeKernel) failWith(prefix, stderr string) {
	k.failures[prefix] = stderr
}

func (k *fakeKernel) device(name string) *fakeDevice {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.devices[name]
}

func (k *fakeKernel) callsMatching(substr string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []string
	for _, c := range k.calls {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (k *fakeKernel) Run(_ context.Context, name string, args ...string) Result {
	k.mu.Lock()
	defer k.mu.Unlock()

	line := name + " " + strings.Join(args, " ")
	k.calls = append(k.calls, line)

	for prefix, stderr := range k.failures {
		if strings.HasPrefix(line, prefix) {
			return Result{ExitCode: 2, Stderr: stderr}
		}
	}

	switch name {
	case "ip":
		return k.ip(args)
	case "tc":
		return k.tc(args)
	}
	return Result{ExitCode: 127, Stderr: fmt.Sprintf("%s: command not found", name)}
}

func (k *fakeKernel) ip(args []string) Result {
	cmd := strings.Join(args, " ")

	switch {
	case cmd == "-o link show":
		return Result{Stdout: k.renderLinks()}
	case cmd == "-o addr show":
		return Result{Stdout: k.renderAddrs()}
	case len(args) == 3 && args[0] == "link" && args[1] == "show":
		if _, ok := k.devices[args[2]]; !ok {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Device %q does not exist.", args[2])}
		}
		return Result{}
	case len(args) == 6 && args[0] == "link" && args[1] == "add" && args[2] == "name" && args[4] == "type" && args[5] == "bridge":
		if _, ok := k.devices[args[3]]; ok {
			return Result{ExitCode: 2, Stderr: "RTNETLINK answers: File exists"}
		}
		k.addDevice(args[3], true)
		return Result{}
	case len(args) == 5 && args[0] == "link" && args[1] == "delete" && args[3] == "type" && args[4] == "bridge":
		if _, ok := k.devices[args[2]]; !ok {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Cannot find device %q", args[2])}
		}
		delete(k.devices, args[2])
		for _, d := range k.devices {
			if d.master == args[2] {
				d.master = ""
			}
		}
		return Result{}
	case len(args) >= 5 && args[0] == "link" && args[1] == "set" && args[2] == "dev":
		dev, ok := k.devices[args[3]]
		if !ok {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Cannot find device %q", args[3])}
		}
		switch args[4] {
		case "up":
			dev.up = true
			return Result{}
		case "down":
			dev.up = false
			return Result{}
		case "nomaster":
			dev.master = ""
			return Result{}
		case "master":
			if len(args) != 6 {
				break
			}
			if m, ok := k.devices[args[5]]; !ok || !m.bridge {
				return Result{ExitCode: 1, Stderr: fmt.Sprintf("Cannot find device %q", args[5])}
			}
			dev.master = args[5]
			return Result{}
		}
	}
	return Result{ExitCode: 255, Stderr: "Command line is not complete."}
}

func (k *fakeKernel) tc(args []string) Result {
	if len(args) < 4 || args[0] != "qdisc" {
		return Result{ExitCode: 255, Stderr: `What is "` + strings.Join(args, " ") + `"?`}
	}

	switch args[1] {
	case "show": // qdisc show dev X
		dev, ok := k.devices[args[3]]
		if !ok {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Cannot find device %q", args[3])}
		}
		return Result{Stdout: dev.renderQdiscs()}

	case "del": // qdisc del dev X root
		dev, ok := k.devices[args[3]]
		if !ok {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Cannot find device %q", args[3])}
		}
		if !dev.hasNetem && !dev.hasTbf {
			return Result{ExitCode: 2, Stderr: "Error: Cannot delete qdisc with handle of zero."}
		}
		dev.hasNetem, dev.hasTbf = false, false
		dev.netemDelay, dev.netemJitter, dev.netemLoss = "", "", ""
		dev.tbfRate = 0
		return Result{}

	case "add":
		dev, ok := k.devices[args[3]]
		if !ok {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Cannot find device %q", args[3])}
		}
		rest := args[4:]
		if contains(rest, "netem") {
			if dev.hasNetem {
				return Result{ExitCode: 2, Stderr: "RTNETLINK answers: File exists"}
			}
			dev.hasNetem = true
			for i := 0; i < len(rest); i++ {
				switch rest[i] {
				case "delay":
					dev.netemDelay = strings.TrimSuffix(rest[i+1], "ms")
					if i+2 < len(rest) && strings.HasSuffix(rest[i+2], "ms") {
						dev.netemJitter = strings.TrimSuffix(rest[i+2], "ms")
					}
				case "loss":
					dev.netemLoss = strings.TrimSuffix(rest[i+1], "%")
				}
			}
			return Result{}
		}
		if contains(rest, "tbf") {
			if !dev.hasNetem {
				return Result{ExitCode: 2, Stderr: "Error: Parent Qdisc doesn't exists."}
			}
			for i := 0; i < len(rest); i++ {
				if rest[i] == "rate" {
					v, err := strconv.ParseFloat(strings.TrimSuffix(rest[i+1], "mbit"), 64)
					if err != nil {
						return Result{ExitCode: 1, Stderr: `Illegal "rate"`}
					}
					dev.tbfRate = v
				}
			}
			dev.hasTbf = true
			return Result{}
		}
	}
	return Result{ExitCode: 255, Stderr: `What is "` + strings.Join(args, " ") + `"?`}
}

func (k *fakeKernel) sortedNames() []string {
	names := make([]string, 0, len(k.devices))
	for n := range k.devices {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return k.devices[names[i]].index < k.devices[names[j]].index
	})
	return names
}

func (k *fakeKernel) renderLinks() string {
	var b strings.Builder
	fmt.Fprintf(&b, "1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN mode DEFAULT group default qlen 1000\\    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00\n")
	for _, name := range k.sortedNames() {
		d := k.devices[name]
		state := "DOWN"
		if d.up {
			state = "UP"
		}
		master := ""
		if d.master != "" {
			master = " master " + d.master
		}
		fmt.Fprintf(&b, "%d: %s: <BROADCAST,MULTICAST> mtu 1500 qdisc noop%s state %s mode DEFAULT group default qlen 1000\\    link/ether 52:54:00:12:34:56 brd ff:ff:ff:ff:ff:ff\n",
			d.index, name, master, state)
	}
	return strings.TrimSpace(b.String())
}

func (k *fakeKernel) renderAddrs() string {
	var b strings.Builder
	fmt.Fprintf(&b, "1: lo    inet 127.0.0.1/8 scope host lo\\       valid_lft forever preferred_lft forever\n")
	for _, name := range k.sortedNames() {
		d := k.devices[name]
		if d.ipv4 == "" {
			continue
		}
		fmt.Fprintf(&b, "%d: %s    inet %s brd 10.0.0.255 scope global %s\\       valid_lft forever preferred_lft forever\n",
			d.index, name, d.ipv4, name)
	}
	return strings.TrimSpace(b.String())
}

// renderQdiscs mimics the kernel's qdisc listing closely enough for the
// parser grammar: netem first line, tbf on a later line.
func (d *fakeDevice) renderQdiscs() string {
	if !d.hasNetem {
		return "qdisc noqueue 0: root refcnt 2"
	}
	var b strings.Builder
	b.WriteString("qdisc netem 1: root refcnt 2 limit 1000")
	if d.netemDelay != "" {
		fmt.Fprintf(&b, " delay %sms", d.netemDelay)
		if d.netemJitter != "" {
			fmt.Fprintf(&b, "  %sms", d.netemJitter)
		}
	}
	if d.netemLoss != "" {
		fmt.Fprintf(&b, " loss %s%%", d.netemLoss)
	}
	if d.hasTbf {
		b.WriteString("\nqdisc tbf 10: parent 1:1 rate ")
		b.WriteString(renderRate(d.tbfRate))
		b.WriteString(" burst 3200b lat 26.0ms")
	}
	return b.String()
}

// renderRate prints a rate the way tc does, picking the unit.
func renderRate(mbit float64) string {
	switch {
	case mbit >= 1000:
		return trimFloat(mbit/1000) + "Gbit"
	case mbit < 1:
		return trimFloat(mbit*1000) + "Kbit"
	default:
		return trimFloat(mbit) + "Mbit"
	}
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
