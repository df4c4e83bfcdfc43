package tenant

import (
	"fmt"
	"sort"

	"github.com/Strob0t/StudioGate/internal/domain"
)

// Directory is an immutable slug -> Tenant table. Build it once with
// NewDirectory; all methods are safe for concurrent use without locking.
type Directory struct {
	bySlug      map[string]Tenant
	defaultSlug string
}

// NewDirectory validates tenants and returns a directory whose fallback
// tenant is defaultSlug. Duplicate slugs and an unknown default are errors.
func NewDirectory(tenants []Tenant, defaultSlug string) (*Directory, error) {
	bySlug := make(map[string]Tenant, len(tenants))
	for i := range tenants {
		t := tenants[i]
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := bySlug[t.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate tenant slug %q", domain.ErrValidation, t.Slug)
		}
		if t.ID == "" {
			t.ID = DerivedID(t.Slug)
		}
		bySlug[t.Slug] = t
	}
	if _, ok := bySlug[defaultSlug]; !ok {
		return nil, fmt.Errorf("%w: default tenant %q is not configured", domain.ErrValidation, defaultSlug)
	}
	return &Directory{bySlug: bySlug, defaultSlug: defaultSlug}, nil
}

// LookupBySlug returns the tenant for slug. The boolean is false for
// unknown slugs so callers can apply their own fallback.
func (d *Directory) LookupBySlug(slug string) (Tenant, bool) {
	t, ok := d.bySlug[slug]
	return t, ok
}

// Current returns the tenant for slug, or the default tenant when slug is
// empty or unknown (requests rendered outside any tenant context).
func (d *Directory) Current(slug string) Tenant {
	if t, ok := d.bySlug[slug]; ok {
		return t
	}
	return d.bySlug[d.defaultSlug]
}

// DefaultSlug returns the fallback tenant slug.
func (d *Directory) DefaultSlug() string {
	return d.defaultSlug
}

// Slugs returns all slugs in lexical order.
func (d *Directory) Slugs() []string {
	out := make([]string, 0, len(d.bySlug))
	for s := range d.bySlug {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tenants.
func (d *Directory) Len() int {
	return len(d.bySlug)
}
