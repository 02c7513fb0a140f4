// Package geo maps client addresses to coarse region codes.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
)

// ErrUnresolved is returned when no region is known for an address.
var ErrUnresolved = errors.New("region unresolved")

// DefaultRegion is assigned to loopback and private addresses.
const DefaultRegion = "IN"

// Resolver maps an address ("ip" or "ip:port") to a region code.
type Resolver interface {
	Resolve(ctx context.Context, addr string) (string, error)
}

// Rule assigns Region to every address within Prefix.
type Rule struct {
	Prefix netip.Prefix
	Region string
}

// StaticResolver resolves against a fixed CIDR table. The most specific
// prefix wins.
type StaticResolver struct {
	local string
	rules []Rule
}

var _ Resolver = (*StaticResolver)(nil)

// NewStatic builds a resolver. Empty local disables the loopback and private
// fallback.
func NewStatic(local string, rules []Rule) *StaticResolver {
	rs := append([]Rule(nil), rules...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Prefix.Bits() > rs[j].Prefix.Bits() })
	return &StaticResolver{local: strings.ToUpper(local), rules: rs}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, addr string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ip, err := parseAddr(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	for _, rule := range r.rules {
		if rule.Prefix.Contains(ip) {
			return rule.Region, nil
		}
	}
	if r.local != "" && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
		return r.local, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolved, ip)
}

func parseAddr(addr string) (netip.Addr, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return netip.Addr{}, errors.New("empty address")
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, err
	}
	return ip.Unmap(), nil
}

// ParseCIDRTable parses "10.0.0.0/8=IN,203.0.113.0/24=US".
func ParseCIDRTable(s string) ([]Rule, error) {
	var out []Rule
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		cidr, region, ok := strings.Cut(item, "=")
		region = strings.ToUpper(strings.TrimSpace(region))
		if !ok || region == "" {
			return nil, fmt.Errorf("geo rule %q: want CIDR=REGION", item)
		}
		p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("geo rule %q: %w", item, err)
		}
		out = append(out, Rule{Prefix: p.Masked(), Region: region})
	}
	return out, nil
}
