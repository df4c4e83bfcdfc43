package routing

import (
	"path"
	"strings"
)

// excludedPrefixes never take part in tenant resolution or auth.
var excludedPrefixes = []string{
	"/_next/",
	"/api/",
}

var excludedExact = map[string]bool{
	"/_next":       true,
	"/api":         true,
	"/favicon.ico": true,
}

// IsExcluded reports whether p is a framework asset, a backend route or any
// path whose last segment carries a file extension.
func IsExcluded(p string) bool {
	if excludedExact[p] {
		return true
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return strings.Contains(path.Base(p), ".")
}

// Rewrite moves p into the tenant's route namespace: "/<slug>" + p. It is
// idempotent because an already prefixed path is returned unchanged, as
// is p when no slug was resolved.
func Rewrite(p, slug string) string {
	if slug == "" || HasSlugPrefix(p, slug) {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "/" + slug + p
}

// HasSlugPrefix reports whether p is "/<slug>" or lies under it.
func HasSlugPrefix(p, slug string) bool {
	prefix := "/" + slug
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// TrimSlugPrefix returns p relative to the tenant namespace, so
// "/espaco-revelle/aluno" becomes "/aluno".
func TrimSlugPrefix(p, slug string) string {
	if !HasSlugPrefix(p, slug) {
		return p
	}
	rest := strings.TrimPrefix(p, "/"+slug)
	if rest == "" {
		return "/"
	}
	return rest
}
