package tenant_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/StudioGate/internal/domain"
	"github.com/Strob0t/StudioGate/internal/domain/tenant"
)

func testTenants() []tenant.Tenant {
	return []tenant.Tenant{
		{Slug: "espaco-revelle", Name: "Espaço Revelle", PrimaryColor: "#8E2C48", AccentColor: "#D4A24C"},
		{ID: "school-2", Slug: "studio-movimento", Name: "Studio Movimento", PrimaryColor: "#1F4E79"},
	}
}

func TestNewDirectory(t *testing.T) {
	d, err := tenant.NewDirectory(testTenants(), "espaco-revelle")
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	if d.DefaultSlug() != "espaco-revelle" {
		t.Errorf("DefaultSlug = %q", d.DefaultSlug())
	}
	got := d.Slugs()
	if len(got) != 2 || got[0] != "espaco-revelle" || got[1] != "studio-movimento" {
		t.Errorf("Slugs = %v", got)
	}
}

func TestNewDirectory_Errors(t *testing.T) {
	tests := []struct {
		name        string
		tenants     []tenant.Tenant
		defaultSlug string
	}{
		{
			name:        "duplicate slug",
			tenants:     append(testTenants(), tenant.Tenant{Slug: "espaco-revelle", Name: "Dup", PrimaryColor: "#000"}),
			defaultSlug: "espaco-revelle",
		},
		{
			name:        "unknown default",
			tenants:     testTenants(),
			defaultSlug: "nowhere",
		},
		{
			name:        "invalid slug",
			tenants:     []tenant.Tenant{{Slug: "Bad Slug", Name: "x", PrimaryColor: "#000"}},
			defaultSlug: "Bad Slug",
		},
		{
			name:        "missing name",
			tenants:     []tenant.Tenant{{Slug: "no-name", PrimaryColor: "#000"}},
			defaultSlug: "no-name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tenant.NewDirectory(tt.tenants, tt.defaultSlug)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestLookupBySlug(t *testing.T) {
	d, err := tenant.NewDirectory(testTenants(), "espaco-revelle")
	if err != nil {
		t.Fatal(err)
	}

	got, ok := d.LookupBySlug("studio-movimento")
	if !ok {
		t.Fatal("expected studio-movimento to be found")
	}
	if got.ID != "school-2" {
		t.Errorf("ID = %q, want school-2", got.ID)
	}

	if _, ok := d.LookupBySlug("unknown-school"); ok {
		t.Error("expected unknown slug to be not found")
	}
}

func TestLookupBySlug_DerivedIDIsStable(t *testing.T) {
	d1, _ := tenant.NewDirectory(testTenants(), "espaco-revelle")
	d2, _ := tenant.NewDirectory(testTenants(), "espaco-revelle")
	a, _ := d1.LookupBySlug("espaco-revelle")
	b, _ := d2.LookupBySlug("espaco-revelle")
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("derived ids differ or empty: %q vs %q", a.ID, b.ID)
	}
	if a.ID != tenant.DerivedID("espaco-revelle") {
		t.Errorf("ID = %q, want DerivedID", a.ID)
	}
}

func TestCurrent_FallsBackToDefault(t *testing.T) {
	d, _ := tenant.NewDirectory(testTenants(), "espaco-revelle")

	for _, slug := range []string{"", "missing"} {
		if got := d.Current(slug); got.Slug != "espaco-revelle" {
			t.Errorf("Current(%q) = %q, want default", slug, got.Slug)
		}
	}
	if got := d.Current("studio-movimento"); got.Slug != "studio-movimento" {
		t.Errorf("Current = %q", got.Slug)
	}
}

func TestDirectory_ConcurrentReads(t *testing.T) {
	d, _ := tenant.NewDirectory(testTenants(), "espaco-revelle")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = d.LookupBySlug("studio-movimento")
				_ = d.Current("")
			}
		}()
	}
	wg.Wait()
}

func TestValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"espaco-revelle", true},
		{"abc", true},
		{"ab", false},
		{"-abc", false},
		{"abc-", false},
		{"ABC", false},
		{"a_b_c", false},
	}
	for _, tt := range tests {
		if got := tenant.ValidSlug(tt.slug); got != tt.want {
			t.Errorf("ValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
		}
	}
}
