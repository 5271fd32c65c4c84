package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/providers/llm"
	"contentforge/internal/retry"
)

const (
	defaultMaxPromptChars = 24000
	maxSnippetChars       = 600
	maxSources            = 10
	maxRepairEcho         = 8000
)

// Completer is the LLM capability used for extraction.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Structurer maps raw research into the fixed project schema.
type Structurer struct {
	llm      Completer
	policy   retry.Policy
	logger   infra.Logger
	maxChars int
}

func NewStructurer(completer Completer, policy retry.Policy, logger infra.Logger, maxChars int) *Structurer {
	if maxChars <= 0 {
		maxChars = defaultMaxPromptChars
	}
	return &Structurer{llm: completer, policy: policy, logger: logger, maxChars: maxChars}
}

// Structure extracts StructuredData from raw. Unparseable model output gets a
// single repair round before the run is failed with ErrStructuring.
func (s *Structurer) Structure(ctx context.Context, raw *domain.RawResults) (*domain.StructuredData, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no research results to structure", domain.ErrStructuring)
	}
	out, err := s.complete(ctx, buildStructuringPrompt(raw, s.maxChars))
	if err != nil {
		return nil, err
	}
	obj, parseErr := parseSchemaObject(out)
	if parseErr != nil {
		s.logger.Warn().Err(parseErr).Str("provider", s.llm.Name()).Msg("research: model output unparseable, requesting repair")
		repaired, err := s.complete(ctx, buildRepairPrompt(out, parseErr))
		if err != nil {
			return nil, err
		}
		if obj, parseErr = parseSchemaObject(repaired); parseErr != nil {
			return nil, fmt.Errorf("%w: model output is not valid JSON after repair: %v", domain.ErrStructuring, parseErr)
		}
	}
	data := normalizeStructured(obj)
	if len(data.Missing) > 0 {
		s.logger.Info().Strs("missing", data.Missing).Msg("research: partial extraction")
	}
	return data, nil
}

func (s *Structurer) complete(ctx context.Context, prompt string) (string, error) {
	policy := s.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Str("provider", s.llm.Name()).Msg("research: llm call failed, retrying")
	}
	var out string
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		text, err := s.llm.Complete(ctx, prompt, true)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, context.Canceled):
		return "", err
	case errors.Is(err, domain.ErrContentPolicy):
		return "", fmt.Errorf("%w: %w", domain.ErrStructuring, err)
	default:
		return "", fmt.Errorf("%w: %s failed after %d attempt(s): %v", domain.ErrUpstreamUnavailable, s.llm.Name(), attempts, err)
	}
}

func schemaInstruction() string {
	return `{"summary": string|null, "description": string|null, "key_features": [string], ` +
		`"tokenomics": {string: any}, "technology": string|null, "team": [string], ` +
		`"roadmap": [string], "social_links": {string: string}, "competitors": [string]}`
}

func buildStructuringPrompt(raw *domain.RawResults, maxChars int) string {
	var b strings.Builder
	b.WriteString("You extract structured facts about a crypto project from web research.\n")
	b.WriteString("Respond with a single JSON object and nothing else, using exactly these keys:\n")
	b.WriteString(schemaInstruction())
	b.WriteString("\nUse null, [] or {} when the research does not cover a field. Do not invent facts.\n")
	b.WriteString("key_features and roadmap keep the order the sources give.\n\n")
	b.WriteString("Research query: ")
	b.WriteString(raw.Query)
	b.WriteString("\n\nResearch answer:\n")
	b.WriteString(strings.TrimSpace(raw.Answer))
	b.WriteString("\n\nSources:\n")

	budget := maxChars - b.Len()
	for i, src := range raw.Results {
		if i >= maxSources {
			break
		}
		entry := fmt.Sprintf("[%d] %s\n%s\n%s\n\n", i+1, strings.TrimSpace(src.Title), src.URL, truncate(strings.TrimSpace(src.Snippet), maxSnippetChars))
		if len(entry) > budget {
			break
		}
		b.WriteString(entry)
		budget -= len(entry)
	}
	return b.String()
}

func buildRepairPrompt(malformed string, parseErr error) string {
	var b strings.Builder
	b.WriteString("The text below was meant to be a single JSON object with these keys:\n")
	b.WriteString(schemaInstruction())
	fmt.Fprintf(&b, "\nIt could not be parsed (%v). Return only the corrected JSON object, no commentary.\n\n", parseErr)
	b.WriteString(truncate(malformed, maxRepairEcho))
	return b.String()
}

// parseSchemaObject decodes the first JSON object in text. A single wrapper
// key around the real object is unwrapped.
func parseSchemaObject(text string) (map[string]json.RawMessage, error) {
	fragment := llm.ExtractJSON(text)
	if fragment == "" {
		return nil, errors.New("empty response")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(fragment), &obj); err != nil {
		return nil, err
	}
	if len(obj) == 1 && !hasSchemaKey(obj) {
		for _, inner := range obj {
			var nested map[string]json.RawMessage
			if json.Unmarshal(inner, &nested) == nil && hasSchemaKey(nested) {
				return nested, nil
			}
		}
	}
	return obj, nil
}

func hasSchemaKey(obj map[string]json.RawMessage) bool {
	for _, k := range domain.SchemaKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// normalizeStructured coerces model output into StructuredData. A key that is
// absent, null or of an unusable type is left nil and listed in Missing.
func normalizeStructured(obj map[string]json.RawMessage) *domain.StructuredData {
	data := &domain.StructuredData{Missing: []string{}}
	for _, key := range domain.SchemaKeys {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			data.Missing = append(data.Missing, key)
			continue
		}
		var usable bool
		switch key {
		case domain.KeySummary:
			data.Summary, usable = asText(raw)
		case domain.KeyDescription:
			data.Description, usable = asText(raw)
		case domain.KeyTechnology:
			data.Technology, usable = asText(raw)
		case domain.KeyFeatures:
			data.KeyFeatures, usable = asList(raw)
		case domain.KeyTeam:
			data.Team, usable = asList(raw)
		case domain.KeyRoadmap:
			data.Roadmap, usable = asList(raw)
		case domain.KeyCompetitors:
			data.Competitors, usable = asList(raw)
		case domain.KeyTokenomics:
			data.Tokenomics, usable = asMapping(raw)
		case domain.KeySocialLinks:
			data.SocialLinks, usable = asLinks(raw)
		}
		if !usable {
			data.Missing = append(data.Missing, key)
		}
	}
	return data
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func asText(raw json.RawMessage) (*string, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		s = strings.TrimSpace(s)
		return &s, true
	}
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any, []any:
		flat := flatten(t)
		return &flat, true
	}
	return nil, false
}

func asList(raw json.RawMessage) ([]string, bool) {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(flatten(item)); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}, true
		}
		return []string{}, true
	}
	return nil, false
}

func asMapping(raw json.RawMessage) (map[string]any, bool) {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return map[string]any{"summary": s}, true
		}
		return map[string]any{}, true
	}
	return nil, false
}

func asLinks(raw json.RawMessage) (map[string]string, bool) {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return nil, false
	}
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s := strings.TrimSpace(flatten(val)); s != "" {
				out[k] = s
			}
		}
		return out, true
	case []any:
		for _, item := range t {
			link := strings.TrimSpace(flatten(item))
			if link == "" {
				continue
			}
			key := link
			if u, err := url.Parse(link); err == nil && u.Host != "" {
				key = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
			}
			out[key] = link
		}
		return out, true
	}
	return nil, false
}

var preferredFields = []string{"name", "title", "phase", "milestone", "role", "date", "quarter", "status", "description"}

// flatten renders any JSON value as a single line of text.
func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		var parts []string
		seen := map[string]bool{}
		for _, k := range preferredFields {
			if val, ok := t[k]; ok {
				seen[k] = true
				if s := flatten(val); s != "" {
					parts = append(parts, s)
				}
			}
		}
		rest := make([]string, 0, len(t))
		for k := range t {
			if !seen[k] {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			if s := flatten(t[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, " - ")
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back up to a rune boundary so the cut never splits a character
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
