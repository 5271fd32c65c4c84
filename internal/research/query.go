package research

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"contentforge/internal/domain"
)

// aspectKeywords are appended to deep queries so the provider covers every
// schema area.
var aspectKeywords = []string{"features", "tokenomics", "technology", "team", "roadmap", "use cases"}

var validate = validator.New()

// Query is a composed search request for one project.
type Query struct {
	ProjectID string
	Text      string
	Depth     domain.Depth
}

// NormalizeIdentity trims the identity and checks it is researchable.
func NormalizeIdentity(id domain.Identity) (domain.Identity, error) {
	id.Name = strings.TrimSpace(id.Name)
	id.URL = strings.TrimSpace(id.URL)
	id.ContractAddress = strings.TrimSpace(id.ContractAddress)
	if id.URL == "" {
		return id, fmt.Errorf("%w: project url is required", domain.ErrValidation)
	}
	if err := validate.Struct(id); err != nil {
		return id, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	u, err := url.Parse(id.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return id, fmt.Errorf("%w: project url must be an absolute http(s) url", domain.ErrValidation)
	}
	return id, nil
}

// ParseDepth maps user input onto a depth, defaulting to deep.
func ParseDepth(raw string) (domain.Depth, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "deep", "advanced":
		return domain.DepthDeep, nil
	case "shallow", "basic":
		return domain.DepthShallow, nil
	default:
		return "", fmt.Errorf("%w: unknown research depth %q", domain.ErrValidation, raw)
	}
}

// BuildQuery composes the search query for identity at depth.
func BuildQuery(identity domain.Identity, depth domain.Depth) (Query, error) {
	identity, err := NormalizeIdentity(identity)
	if err != nil {
		return Query{}, err
	}
	if depth != domain.DepthDeep && depth != domain.DepthShallow {
		return Query{}, fmt.Errorf("%w: unknown research depth %q", domain.ErrValidation, depth)
	}

	var b strings.Builder
	b.WriteString("Comprehensive analysis of ")
	if identity.Name != "" {
		b.WriteString(identity.Name)
		b.WriteString(" crypto project ")
	}
	b.WriteString(identity.URL)
	if identity.ContractAddress != "" {
		b.WriteString(" contract ")
		b.WriteString(identity.ContractAddress)
	}
	if depth == domain.DepthDeep {
		b.WriteString(" including: ")
		b.WriteString(strings.Join(aspectKeywords, ", "))
	}

	id, err := ProjectID(identity.URL)
	if err != nil {
		return Query{}, err
	}
	return Query{ProjectID: id, Text: b.String(), Depth: depth}, nil
}

// CanonicalURL lowercases scheme and host and drops fragments and trailing
// slashes so cosmetic variants of a url map to one project.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid project url %q", domain.ErrValidation, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// ProjectID derives the stable record id from the canonical url.
func ProjectID(rawURL string) (string, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])[:12], nil
}
