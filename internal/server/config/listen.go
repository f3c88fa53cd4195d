package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// PortRange is an inclusive range of TCP ports.
type PortRange struct {
	Start uint16
	End   uint16
}

// ParsePortRange parses "8080" or "8080:8099".
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	startStr, endStr, isRange := strings.Cut(s, ":")

	start, err := strconv.ParseUint(startStr, 10, 16)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", startStr)
	}
	if !isRange {
		return PortRange{Start: uint16(start), End: uint16(start)}, nil
	}

	end, err := strconv.ParseUint(endStr, 10, 16)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", endStr)
	}
	if end < start {
		return PortRange{}, fmt.Errorf("port range %q ends before it starts", s)
	}
	if start == 0 {
		return PortRange{}, errors.New("port 0 cannot start a range")
	}
	return PortRange{Start: uint16(start), End: uint16(end)}, nil
}

// String formats the range the way ParsePortRange reads it.
func (r PortRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(int(r.Start))
	}
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// ResolveHost turns the configured host into an IP.
func (l ListenConfig) ResolveHost(ctx context.Context) (net.IP, error) {
	switch strings.ToLower(l.Host) {
	case "any":
		if l.UseIPv6 {
			return net.IPv6unspecified, nil
		}
		return net.IPv4zero, nil
	case "localhost", "":
		if l.UseIPv6 {
			return net.IPv6loopback, nil
		}
		return net.IPv4(127, 0, 0, 1), nil
	}
	if ip := net.ParseIP(l.Host); ip != nil {
		return ip, nil
	}

	network := "ip4"
	if l.UseIPv6 {
		network = "ip6"
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, network, l.Host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", l.Host, err)
	}
	return ips[0], nil
}

// Listen binds the first free port of the configured range on the resolved
// host.
func (l ListenConfig) Listen(ctx context.Context) (net.Listener, error) {
	ports, err := ParsePortRange(l.Port)
	if err != nil {
		return nil, err
	}
	ip, err := l.ResolveHost(ctx)
	if err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	var lastErr error
	for p := int(ports.Start); p <= int(ports.End); p++ {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(p))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free port in %s on %s: %w", ports, ip, lastErr)
}
