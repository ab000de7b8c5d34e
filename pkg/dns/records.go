package dns

import (
	"context"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

// RegistrableDomain returns the eTLD+1 of hostname ("www.example.co.uk" ->
// "example.co.uk"), or "" when hostname is itself a public suffix.
func RegistrableDomain(hostname string) string {
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(hostname, "."))
	if err != nil {
		return ""
	}
	return domain
}

// lookupExtra fills in the registrable domain, its name servers and their
// addresses and, for the system resolver, the canonical name. Failures are
// logged and ignored.
func (r *Resolver) lookupExtra(ctx context.Context, hostname string, out *Outcome) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	out.Domain = RegistrableDomain(hostname)

	if out.AnsweredBy == "" {
		if cname, err := r.system.LookupCNAME(ctx, hostname); err == nil {
			cname = strings.TrimSuffix(cname, ".")
			if cname != "" && !strings.EqualFold(cname, hostname) {
				out.CNAMEs = []string{cname}
			}
		}
	}

	if out.Domain == "" {
		return
	}

	var err error
	if out.AnsweredBy != "" {
		out.NameServers, err = r.queryNS(ctx, out.AnsweredBy, out.Domain)
	} else {
		out.NameServers, err = r.systemNS(ctx, out.Domain)
	}
	if err != nil {
		slog.Debug("NS lookup failed", "hostname", hostname, "domain", out.Domain, "error", err)
		return
	}

	out.NameServerAddrs = r.nameServerAddrs(ctx, out.AnsweredBy, out.NameServers)
}

// nameServerAddrs resolves NS host names through the server that answered
// the hostname, or the system resolver when server is empty. Hosts that fail
// to resolve are skipped.
func (r *Resolver) nameServerAddrs(ctx context.Context, server string, hosts []string) []netip.Addr {
	if len(hosts) == 0 {
		return nil
	}

	var (
		mu    sync.Mutex
		addrs []netip.Addr
		g     errgroup.Group
	)
	for _, host := range hosts {
		g.Go(func() error {
			var found []netip.Addr
			if server != "" {
				a := r.queryServer(ctx, server, host)
				if a.err != nil {
					slog.Debug("NS address lookup failed", "ns", host, "error", a.err.Message)
					return nil
				}
				found = a.addresses
			} else {
				var err error
				found, err = r.system.LookupNetIP(ctx, "ip", host)
				if err != nil {
					slog.Debug("NS address lookup failed", "ns", host, "error", err)
					return nil
				}
			}
			mu.Lock()
			addrs = append(addrs, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(addrs) == 0 {
		return nil
	}
	slices.SortFunc(addrs, netip.Addr.Compare)
	return sortAddrs(addrs)
}

func (r *Resolver) queryNS(ctx context.Context, server, domain string) ([]string, error) {
	resp, _, err := r.transport.Exchange(ctx, server, NewQuery(domain, dns.TypeNS, r.opts))
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			hosts = append(hosts, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	slices.Sort(hosts)
	return hosts, nil
}

func (r *Resolver) systemNS(ctx context.Context, domain string) ([]string, error) {
	records, err := r.system.LookupNS(ctx, domain)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, len(records))
	for _, ns := range records {
		hosts = append(hosts, strings.TrimSuffix(ns.Host, "."))
	}
	slices.Sort(hosts)
	return hosts, nil
}
