// Package tenant defines the tenant (dance school) model and the read-only
// directory used for routing and branding.
package tenant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/StudioGate/internal/domain"
)

// idNamespace seeds ids derived from slugs for tenants configured without one.
var idNamespace = uuid.MustParse("6f1c2a7e-7d5b-4c8e-9b1a-3e0d4f6a2b90")

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Tenant is the branding and routing configuration of one school.
type Tenant struct {
	ID              string `json:"id" yaml:"id"`
	Slug            string `json:"slug" yaml:"slug"`
	Name            string `json:"name" yaml:"name"`
	PrimaryColor    string `json:"primaryColor" yaml:"primary_color"`
	SecondaryColor  string `json:"secondaryColor,omitempty" yaml:"secondary_color"`
	AccentColor     string `json:"accentColor" yaml:"accent_color"`
	BackgroundColor string `json:"backgroundColor" yaml:"background_color"`
	PaperColor      string `json:"paperColor" yaml:"paper_color"`
	LogoURL         string `json:"logoUrl,omitempty" yaml:"logo_url"`
}

// Validate checks the slug format and required branding fields.
func (t *Tenant) Validate() error {
	if !ValidSlug(t.Slug) {
		return fmt.Errorf("%w: invalid slug %q: must be 3-64 lowercase alphanumeric characters or hyphens", domain.ErrValidation, t.Slug)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tenant %s: name is required", domain.ErrValidation, t.Slug)
	}
	if t.PrimaryColor == "" {
		return fmt.Errorf("%w: tenant %s: primary color is required", domain.ErrValidation, t.Slug)
	}
	return nil
}

// ValidSlug reports whether s is usable as a hostname label and path prefix.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// DerivedID returns a stable id for a slug, used when the source has none.
func DerivedID(slug string) string {
	return uuid.NewSHA1(idNamespace, []byte(slug)).String()
}
