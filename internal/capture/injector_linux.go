//go:build linux

package capture

import (
	"fmt"

	"golang.org/x/sys/unix"

	"icc.tech/netem-agent/internal/core"
)

// injector reinjects raw IP packets through header-included raw
// sockets, one per address family.
type injector struct {
	fd4 int
	fd6 int
}

func newInjector() (*injector, error) {
	fd4, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to open IPv4 raw socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd4, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		unix.Close(fd4)
		return nil, fmt.Errorf("failed to set IP_HDRINCL: %w", err)
	}

	fd6, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		unix.Close(fd4)
		return nil, fmt.Errorf("failed to open IPv6 raw socket: %w", err)
	}

	return &injector{fd4: fd4, fd6: fd6}, nil
}

func (i *injector) inject(data []byte) error {
	switch core.IPVersion(data) {
	case 4:
		if len(data) < 20 {
			return fmt.Errorf("IPv4 packet too short: %d bytes", len(data))
		}
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], data[16:20])
		return unix.Sendto(i.fd4, data, 0, &sa)
	case 6:
		if len(data) < 40 {
			return fmt.Errorf("IPv6 packet too short: %d bytes", len(data))
		}
		var sa unix.SockaddrInet6
		copy(sa.Addr[:], data[24:40])
		return unix.Sendto(i.fd6, data, 0, &sa)
	default:
		return fmt.Errorf("not an IP packet")
	}
}

func (i *injector) close() {
	unix.Close(i.fd4)
	unix.Close(i.fd6)
}
