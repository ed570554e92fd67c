package models

// InterfaceRole classifies how an interface may participate in WAN
// emulation. Roles are derived on every inventory scan, never persisted.
type InterfaceRole string

const (
	RoleLoopback   InterfaceRole = "loopback"
	RoleManagement InterfaceRole = "management"
	RoleBridge     InterfaceRole = "bridge"
	RoleMember     InterfaceRole = "member"
	RoleEligible   InterfaceRole = "eligible"
)

// NetworkInterface is one entry of the inventory scan.
type NetworkInterface struct {
	Index   int           `json:"index"`
	Name    string        `json:"name"`
	Role    InterfaceRole `json:"role"`
	Master  string        `json:"master,omitempty"`
	HasIPv4 bool          `json:"has_ipv4"`
}

// InterfaceDetail is the display-oriented view of an interface, filled in
// from netlink rather than from the inventory scan.
type InterfaceDetail struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	MTU       int      `json:"mtu"`
	State     string   `json:"state"`
	Type      string   `json:"type"`
	IPv4Addrs []string `json:"ipv4_addrs"`
	IPv6Addrs []string `json:"ipv6_addrs"`
}

type InterfaceStats struct {
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
}
