package dns

import (
	"cmp"
	"context"
	"errors"
	"net"
	"net/netip"
	"slices"
)

func (r *Resolver) resolveSystem(ctx context.Context, hostname string) *Outcome {
	out := &Outcome{
		Resolver:  "system",
		Transport: "system",
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	addrs, err := r.system.LookupNetIP(ctx, "ip", hostname)
	if err != nil {
		out.Error = classifySystemError(ctx, err)
		return out
	}

	out.Addresses = sortAddrs(addrs)
	if len(out.Addresses) == 0 {
		out.Error = &Error{Kind: KindNoRecords, Message: "no addresses for " + hostname}
	}
	return out
}

func classifySystemError(ctx context.Context, err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return &Error{Kind: KindNoRecords, Message: dnsErr.Error()}
		case dnsErr.IsTimeout:
			return &Error{Kind: KindTimeout, Message: dnsErr.Error()}
		}
	}
	if ctx.Err() != nil || isTimeout(err) {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	return &Error{Kind: KindRefused, Message: err.Error()}
}

// sortAddrs unmaps, dedupes and orders addresses IPv4 first, keeping the
// resolver's order within each family
func sortAddrs(addrs []netip.Addr) []netip.Addr {
	out := make([]netip.Addr, 0, len(addrs))
	seen := make(map[netip.Addr]struct{}, len(addrs))
	for _, a := range addrs {
		a = a.Unmap()
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b netip.Addr) int {
		return cmp.Compare(family(a), family(b))
	})
	return out
}

func family(a netip.Addr) int {
	if a.Is4() {
		return 4
	}
	return 6
}
