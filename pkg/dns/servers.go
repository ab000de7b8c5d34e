package dns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrInvalidServer is returned when a DNS server entry is not an IP address
var ErrInvalidServer = errors.New("invalid DNS server address")

// Strategy selects how a list of custom servers is consulted
type Strategy string

const (
	// StrategySequential tries servers in listed order and stops at the first answer
	StrategySequential Strategy = "sequential"
	// StrategyParallel queries all servers at once and keeps the first answer
	StrategyParallel Strategy = "parallel"
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategySequential:
		return StrategySequential, nil
	case StrategyParallel:
		return StrategyParallel, nil
	default:
		return "", fmt.Errorf("unknown DNS strategy %q (want sequential or parallel)", s)
	}
}

// ParseServerList parses a comma-separated list of resolver addresses.
// Each entry is an IP address with an optional port ("1.1.1.1", "1.1.1.1:5353",
// "[2606:4700::1111]:53"). Blank entries are skipped; duplicates are dropped
// keeping the first occurrence.
func ParseServerList(s string) ([]string, error) {
	var servers []string
	seen := make(map[string]struct{})

	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		server, err := normalizeServer(field)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[server]; dup {
			continue
		}
		seen[server] = struct{}{}
		servers = append(servers, server)
	}

	return servers, nil
}

func normalizeServer(s string) (string, error) {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), nil
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		if ap.Port() == 0 {
			return "", fmt.Errorf("%w: %q has port 0", ErrInvalidServer, s)
		}
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()).String(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidServer, s)
}
