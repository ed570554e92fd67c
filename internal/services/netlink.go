package services

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"wanemu/internal/models"
)

// NetlinkService provides the display-oriented interface view: MAC, MTU,
// operational state, addresses and counters. Topology decisions never go
// through here; those belong to the shaper core.
type NetlinkService struct{}

func NewNetlinkService() *NetlinkService {
	return &NetlinkService{}
}

func (s *NetlinkService) GetInterface(name string) (*models.InterfaceDetail, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface not found: %w", err)
	}
	return s.detail(link), nil
}

func (s *NetlinkService) ListInterfaces() ([]models.InterfaceDetail, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	var out []models.InterfaceDetail
	for _, link := range links {
		out = append(out, *s.detail(link))
	}
	return out, nil
}

func (s *NetlinkService) detail(link netlink.Link) *models.InterfaceDetail {
	attrs := link.Attrs()
	d := &models.InterfaceDetail{
		Index: attrs.Index,
		Name:  attrs.Name,
		MTU:   attrs.MTU,
		Type:  link.Type(),
	}
	if attrs.HardwareAddr != nil {
		d.MAC = attrs.HardwareAddr.String()
	}

	switch {
	case attrs.OperState == netlink.OperUp:
		d.State = "UP"
	case attrs.OperState == netlink.OperDown:
		d.State = "DOWN"
	case attrs.Flags&net.FlagUp != 0:
		d.State = "UP"
	default:
		d.State = "DOWN"
	}

	if addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL); err == nil {
		for _, addr := range addrs {
			if addr.IP.To4() != nil {
				d.IPv4Addrs = append(d.IPv4Addrs, addr.IPNet.String())
			} else {
				d.IPv6Addrs = append(d.IPv6Addrs, addr.IPNet.String())
			}
		}
	}
	return d
}

func (s *NetlinkService) GetStats(name string) (*models.InterfaceStats, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface not found: %w", err)
	}
	stats := link.Attrs().Statistics
	if stats == nil {
		return &models.InterfaceStats{}, nil
	}
	return &models.InterfaceStats{
		RxBytes:   stats.RxBytes,
		TxBytes:   stats.TxBytes,
		RxPackets: stats.RxPackets,
		TxPackets: stats.TxPackets,
		RxErrors:  stats.RxErrors,
		TxErrors:  stats.TxErrors,
		RxDropped: stats.RxDropped,
		TxDropped: stats.TxDropped,
	}, nil
}
