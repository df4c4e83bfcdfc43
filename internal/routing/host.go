// Package routing holds the per-request routing decisions of the edge:
// hostname to tenant resolution, portal protection, the tenant path rewrite,
// and the role to dashboard mapping. Everything here is pure and built once.
package routing

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/Strob0t/StudioGate/internal/domain"
	"github.com/Strob0t/StudioGate/internal/domain/tenant"
)

// DomainMapping associates one hostname with a tenant slug.
type DomainMapping struct {
	Hostname string `json:"hostname" yaml:"hostname"`
	Slug     string `json:"slug" yaml:"slug"`
}

// Resolver maps inbound hostnames to tenant slugs with exact lookups.
type Resolver struct {
	hosts      map[string]string
	directory  *tenant.Directory
	mainDomain string
}

// NewResolver builds the host table from explicit mappings plus one
// "<slug>.<mainDomain>" entry per directory tenant. Mappings must target
// known slugs and a hostname may not point at two different tenants.
func NewResolver(dir *tenant.Directory, mainDomain string, mappings []DomainMapping) (*Resolver, error) {
	mainDomain = NormalizeHost(mainDomain)
	hosts := make(map[string]string, len(mappings)+dir.Len())

	add := func(host, slug string) error {
		host = NormalizeHost(host)
		if host == "" {
			return fmt.Errorf("%w: empty hostname for tenant %q", domain.ErrValidation, slug)
		}
		if _, ok := dir.LookupBySlug(slug); !ok {
			return fmt.Errorf("%w: hostname %q maps to unknown tenant %q", domain.ErrValidation, host, slug)
		}
		if prev, ok := hosts[host]; ok && prev != slug {
			return fmt.Errorf("%w: hostname %q maps to both %q and %q", domain.ErrValidation, host, prev, slug)
		}
		hosts[host] = slug
		return nil
	}

	for _, m := range mappings {
		if err := add(m.Hostname, m.Slug); err != nil {
			return nil, err
		}
	}
	if mainDomain != "" {
		for _, slug := range dir.Slugs() {
			if err := add(slug+"."+mainDomain, slug); err != nil {
				return nil, err
			}
		}
	}

	return &Resolver{hosts: hosts, directory: dir, mainDomain: mainDomain}, nil
}

// ResolveTenantForHost returns the slug mapped to host. Unmapped hosts are
// not an error: they mean "no tenant override".
func (r *Resolver) ResolveTenantForHost(host string) (string, bool) {
	slug, ok := r.hosts[NormalizeHost(host)]
	return slug, ok
}

// ResolveTenantFromPath returns the slug when the first path segment names
// a known tenant ("/espaco-revelle/aluno" -> "espaco-revelle").
func (r *Resolver) ResolveTenantFromPath(path string) (string, bool) {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if seg == "" {
		return "", false
	}
	if _, ok := r.directory.LookupBySlug(seg); !ok {
		return "", false
	}
	return seg, true
}

// Mappings returns the number of hostnames in the table.
func (r *Resolver) Mappings() int {
	return len(r.hosts)
}

// Hosts returns the full table sorted by hostname.
func (r *Resolver) Hosts() []DomainMapping {
	out := make([]DomainMapping, 0, len(r.hosts))
	for h, s := range r.hosts {
		out = append(out, DomainMapping{Hostname: h, Slug: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}

// MainDomain returns the normalized platform domain.
func (r *Resolver) MainDomain() string {
	return r.mainDomain
}

// NormalizeHost strips any port and trailing dot and lower-cases host.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}
