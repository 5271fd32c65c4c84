package research

import (
	"errors"
	"strings"
	"testing"

	"contentforge/internal/domain"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		identity domain.Identity
		depth    domain.Depth
		want     string
	}{
		{
			name:     "url_only_shallow",
			identity: domain.Identity{URL: "https://example.io"},
			depth:    domain.DepthShallow,
			want:     "Comprehensive analysis of https://example.io",
		},
		{
			name:     "named_deep",
			identity: domain.Identity{Name: " Example ", URL: "https://example.io"},
			depth:    domain.DepthDeep,
			want:     "Comprehensive analysis of Example crypto project https://example.io including: features, tokenomics, technology, team, roadmap, use cases",
		},
		{
			name:     "contract",
			identity: domain.Identity{URL: "https://example.io", ContractAddress: "0xabc"},
			depth:    domain.DepthShallow,
			want:     "Comprehensive analysis of https://example.io contract 0xabc",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := BuildQuery(tc.identity, tc.depth)
			if err != nil {
				t.Fatalf("BuildQuery error: %v", err)
			}
			if q.Text != tc.want {
				t.Fatalf("Text = %q, want %q", q.Text, tc.want)
			}
			if q.Depth != tc.depth {
				t.Fatalf("Depth = %q, want %q", q.Depth, tc.depth)
			}
		})
	}
}

func TestBuildQueryShallowOmitsAspects(t *testing.T) {
	q, err := BuildQuery(domain.Identity{URL: "https://example.io"}, domain.DepthShallow)
	if err != nil {
		t.Fatalf("BuildQuery error: %v", err)
	}
	if strings.Contains(q.Text, "tokenomics") {
		t.Fatalf("shallow query carries aspect keywords: %q", q.Text)
	}
}

func TestBuildQueryRejectsBadIdentity(t *testing.T) {
	t.Parallel()
	cases := []domain.Identity{
		{},
		{Name: "Example"},
		{URL: "not a url"},
		{URL: "ftp://example.io"},
		{URL: "/relative/path"},
	}
	for _, id := range cases {
		if _, err := BuildQuery(id, domain.DepthDeep); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("BuildQuery(%+v) error = %v, want ErrValidation", id, err)
		}
	}
	if _, err := BuildQuery(domain.Identity{URL: "https://example.io"}, "wide"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown depth error = %v, want ErrValidation", err)
	}
}

func TestProjectIDIsStable(t *testing.T) {
	t.Parallel()
	first, err := ProjectID("https://example.io")
	if err != nil {
		t.Fatalf("ProjectID error: %v", err)
	}
	if len(first) != 12 {
		t.Fatalf("len(id) = %d, want 12", len(first))
	}
	for _, variant := range []string{"https://example.io", "https://EXAMPLE.io/", "  https://example.io#top "} {
		got, err := ProjectID(variant)
		if err != nil {
			t.Fatalf("ProjectID(%q) error: %v", variant, err)
		}
		if got != first {
			t.Fatalf("ProjectID(%q) = %q, want %q", variant, got, first)
		}
	}
	other, _ := ProjectID("https://other.io")
	if other == first {
		t.Fatalf("distinct urls share id %q", first)
	}
}

func TestParseDepth(t *testing.T) {
	t.Parallel()
	cases := map[string]domain.Depth{
		"":         domain.DepthDeep,
		"deep":     domain.DepthDeep,
		"Advanced": domain.DepthDeep,
		"shallow":  domain.DepthShallow,
		"basic":    domain.DepthShallow,
	}
	for in, want := range cases {
		got, err := ParseDepth(in)
		if err != nil || got != want {
			t.Fatalf("ParseDepth(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDepth("everything"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ParseDepth(everything) error = %v, want ErrValidation", err)
	}
}
