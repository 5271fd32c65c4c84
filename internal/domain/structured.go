package domain

// Keys of the structured research schema, in prompt order.
const (
	KeySummary     = "summary"
	KeyDescription = "description"
	KeyFeatures    = "key_features"
	KeyTokenomics  = "tokenomics"
	KeyTechnology  = "technology"
	KeyTeam        = "team"
	KeyRoadmap     = "roadmap"
	KeySocialLinks = "social_links"
	KeyCompetitors = "competitors"
)

// SchemaKeys lists every key a structured record must carry.
var SchemaKeys = []string{
	KeySummary,
	KeyDescription,
	KeyFeatures,
	KeyTokenomics,
	KeyTechnology,
	KeyTeam,
	KeyRoadmap,
	KeySocialLinks,
	KeyCompetitors,
}

// StructuredData is the validated schema instance produced by structuring.
// Fields carry no omitempty so a missing value serializes as an explicit null.
type StructuredData struct {
	Summary     *string           `json:"summary"`
	Description *string           `json:"description"`
	KeyFeatures []string          `json:"key_features"`
	Tokenomics  map[string]any    `json:"tokenomics"`
	Technology  *string           `json:"technology"`
	Team        []string          `json:"team"`
	Roadmap     []string          `json:"roadmap"`
	SocialLinks map[string]string `json:"social_links"`
	Competitors []string          `json:"competitors"`

	// Missing names schema keys the model left out or returned with an
	// unusable type.
	Missing []string `json:"missing"`
}

func (d *StructuredData) Clone() *StructuredData {
	if d == nil {
		return nil
	}
	out := *d
	out.Summary = cloneString(d.Summary)
	out.Description = cloneString(d.Description)
	out.Technology = cloneString(d.Technology)
	out.KeyFeatures = cloneStrings(d.KeyFeatures)
	out.Team = cloneStrings(d.Team)
	out.Roadmap = cloneStrings(d.Roadmap)
	out.Competitors = cloneStrings(d.Competitors)
	out.Missing = cloneStrings(d.Missing)
	if d.Tokenomics != nil {
		out.Tokenomics = make(map[string]any, len(d.Tokenomics))
		for k, v := range d.Tokenomics {
			out.Tokenomics[k] = v
		}
	}
	if d.SocialLinks != nil {
		out.SocialLinks = make(map[string]string, len(d.SocialLinks))
		for k, v := range d.SocialLinks {
			out.SocialLinks[k] = v
		}
	}
	return &out
}

// Has reports whether key was populated by the model.
func (d *StructuredData) Has(key string) bool {
	if d == nil {
		return false
	}
	for _, m := range d.Missing {
		if m == key {
			return false
		}
	}
	return true
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
