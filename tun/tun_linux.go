package tun

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"github.com/treemana/dohtun/log"
)

type tunDevice struct {
	*water.Interface
	link netlink.Link
	mtu  int

	routes []*netlink.Route
	rule   *netlink.Rule

	once sync.Once
	err  error
}

var _ Device = (*tunDevice)(nil)

// Open creates the TUN interface, assigns its address, brings it up and
// installs the routes of o. Everything is undone by Close.
func Open(o Options) (d Device, err error) {
	o = o.WithDefaults()

	if o.Mark == 0 {
		return nil, ErrMarkRequired
	}

	prefixes, err := Routes(o)
	if err != nil {
		return nil, err
	}

	tun, err := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name:    o.Name,
			Persist: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TUN device: %w", err)
	}

	dev := &tunDevice{Interface: tun, mtu: o.MTU}
	defer func() {
		if err != nil {
			_ = dev.Close()
		}
	}()

	if dev.link, err = netlink.LinkByName(tun.Name()); err != nil {
		return nil, fmt.Errorf("newly created TUN device '%s' not found: %w", tun.Name(), err)
	}

	if err = dev.configure(o.Address, o.MTU); err != nil {
		return nil, err
	}

	for _, p := range prefixes {
		if err = dev.addRoute(p, o.Table); err != nil {
			return nil, err
		}
	}

	if err = dev.addRule(o.Mark, o.Table, o.Priority); err != nil {
		return nil, err
	}

	log.Sugar.Infof("tun %s up, address=%s/32, mtu=%d, split=%t, routes=%v", tun.Name(), o.Address, o.MTU, o.SplitTunnel, prefixes)

	return dev, nil
}

func (d *tunDevice) MTU() int {
	return d.mtu
}

func (d *tunDevice) configure(ip string, mtu int) error {
	subnet := ip + "/32"
	addr, err := netlink.ParseAddr(subnet)
	if err != nil {
		return fmt.Errorf("subnet address '%s' is not valid: %w", subnet, err)
	}
	if err = netlink.AddrAdd(d.link, addr); err != nil {
		return fmt.Errorf("failed to add subnet to TUN device '%s': %w", d.Name(), err)
	}
	if err = netlink.LinkSetMTU(d.link, mtu); err != nil {
		return fmt.Errorf("failed to set mtu of TUN device '%s': %w", d.Name(), err)
	}
	if err = netlink.LinkSetUp(d.link); err != nil {
		return fmt.Errorf("failed to bring TUN device '%s' up: %w", d.Name(), err)
	}
	return nil
}

func (d *tunDevice) addRoute(p netip.Prefix, table int) error {
	r := &netlink.Route{
		LinkIndex: d.link.Attrs().Index,
		Dst:       &net.IPNet{IP: p.Addr().AsSlice(), Mask: net.CIDRMask(p.Bits(), 32)},
		Scope:     netlink.SCOPE_LINK,
		Family:    netlink.FAMILY_V4,
		Table:     table,
	}

	if err := netlink.RouteAdd(r); err != nil {
		return fmt.Errorf("failed to add routing entry '%v': %w", p, err)
	}
	d.routes = append(d.routes, r)
	return nil
}

// addRule sends every packet not carrying mark to table.
func (d *tunDevice) addRule(mark uint32, table, priority int) error {
	rule := netlink.NewRule()
	rule.Family = netlink.FAMILY_V4
	rule.Table = table
	rule.Priority = priority
	rule.Mark = mark
	rule.Invert = true

	if err := netlink.RuleAdd(rule); err != nil {
		return fmt.Errorf("failed to add IP rule (table %v, fwmark %v): %w", table, mark, err)
	}
	d.rule = rule
	return nil
}

// Close removes the rule and routes, then releases the device. Later calls
// return the first result.
func (d *tunDevice) Close() error {
	d.once.Do(func() {
		var errs []error
		if d.rule != nil {
			if err := netlink.RuleDel(d.rule); err != nil {
				errs = append(errs, fmt.Errorf("failed to delete IP rule: %w", err))
			}
		}
		for _, r := range d.routes {
			if err := netlink.RouteDel(r); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove routing entry: %w", err))
			}
		}
		if err := d.Interface.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close TUN device: %w", err))
		}
		d.err = errors.Join(errs...)
		log.Sugar.Infof("tun %s closed", d.Name())
	})
	return d.err
}
