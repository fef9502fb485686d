//go:build !linux

package tun

// Open needs netlink to configure the interface and is Linux only.
func Open(o Options) (Device, error) {
	return nil, ErrNotSupported
}
