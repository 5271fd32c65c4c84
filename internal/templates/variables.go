package templates

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"contentforge/internal/domain"
)

const maxListItems = 5

// projectVariables derives template values from a project record. Values
// that the record cannot supply are left out so rendering reports them.
func (c *Catalog) projectVariables(rec *domain.ProjectRecord) map[string]string {
	values := map[string]string{}
	if rec == nil {
		return values
	}
	name := c.projectName(rec.Identity)
	values["project_name"] = name
	values["title"] = name
	values["text"] = name
	values["project_url"] = rec.Identity.URL
	if rec.Identity.ContractAddress != "" {
		values["contract_address"] = rec.Identity.ContractAddress
	}

	data := rec.StructuredData
	if data == nil {
		values["project_info"] = "Website: " + rec.Identity.URL
		values["project_context"] = values["project_info"]
		return values
	}
	if data.Summary != nil && *data.Summary != "" {
		values["summary"] = strings.TrimRight(*data.Summary, ". ")
	}
	if data.Description != nil && *data.Description != "" {
		values["description"] = *data.Description
	}
	if data.Technology != nil && *data.Technology != "" {
		values["technical_details"] = *data.Technology
	}
	if len(data.KeyFeatures) > 0 {
		values["key_feature"] = data.KeyFeatures[0]
		values["feature_name"] = data.KeyFeatures[0]
		values["key_features"] = strings.Join(limit(data.KeyFeatures), "; ")
	}
	if len(data.Competitors) > 0 {
		values["competitor"] = data.Competitors[0]
	}
	if len(data.Tokenomics) > 0 {
		values["data_points"] = tokenomicsLine(data.Tokenomics)
	}
	if len(data.Roadmap) > 0 {
		values["roadmap"] = strings.Join(limit(data.Roadmap), "; ")
	}
	values["project_info"] = projectInfo(rec)
	values["project_context"] = values["project_info"]
	values["research_data"] = researchData(rec)
	return values
}

// projectName prefers the given name and otherwise titles the first label of
// the url host.
func (c *Catalog) projectName(id domain.Identity) string {
	if n := strings.TrimSpace(id.Name); n != "" {
		return n
	}
	u, err := url.Parse(id.URL)
	if err != nil || u.Hostname() == "" {
		return id.URL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	label, _, _ := strings.Cut(host, ".")
	return titleCase(label)
}

func projectInfo(rec *domain.ProjectRecord) string {
	data := rec.StructuredData
	var lines []string
	if data.Summary != nil && *data.Summary != "" {
		lines = append(lines, "Summary: "+*data.Summary)
	}
	if data.Description != nil && *data.Description != "" {
		lines = append(lines, "Description: "+*data.Description)
	}
	if len(data.KeyFeatures) > 0 {
		lines = append(lines, "Key features: "+strings.Join(limit(data.KeyFeatures), "; "))
	}
	lines = append(lines, "Website: "+rec.Identity.URL)
	return strings.Join(lines, "\n")
}

func researchData(rec *domain.ProjectRecord) string {
	data := rec.StructuredData
	var b strings.Builder
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	write("Summary", deref(data.Summary))
	write("Description", deref(data.Description))
	write("Key features", strings.Join(data.KeyFeatures, "; "))
	write("Tokenomics", tokenomicsLine(data.Tokenomics))
	write("Technology", deref(data.Technology))
	write("Team", strings.Join(data.Team, "; "))
	write("Roadmap", strings.Join(data.Roadmap, "; "))
	write("Competitors", strings.Join(data.Competitors, "; "))
	links := make([]string, 0, len(data.SocialLinks))
	for k, v := range data.SocialLinks {
		links = append(links, k+" "+v)
	}
	sort.Strings(links)
	write("Social", strings.Join(links, "; "))
	write("Website", rec.Identity.URL)
	return strings.TrimSpace(b.String())
}

func tokenomicsLine(t map[string]any) string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %v", strings.ReplaceAll(k, "_", " "), t[k]))
	}
	return strings.Join(parts, ", ")
}

func limit(items []string) []string {
	if len(items) > maxListItems {
		return items[:maxListItems]
	}
	return items
}
