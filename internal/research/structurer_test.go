package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"contentforge/internal/domain"
	"contentforge/internal/retry"
)

func sampleRaw() *domain.RawResults {
	return &domain.RawResults{
		Query:  "Comprehensive analysis of https://example.io including: features, tokenomics, technology, team, roadmap, use cases",
		Answer: "Example covers features, tokenomics, technology, team, roadmap and use cases.",
		Results: []domain.Source{
			{URL: "https://x", Title: "X", Snippet: "tokenomics: 1B supply"},
		},
	}
}

func TestStructureAllKeysPresent(t *testing.T) {
	llm := &stubLLM{}
	s := NewStructurer(llm, noSleepPolicy(3), nop(), 0)
	data, err := s.Structure(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Structure error: %v", err)
	}
	if len(data.Missing) != 0 {
		t.Fatalf("Missing = %v, want none", data.Missing)
	}
	if data.Tokenomics["total_supply"] != "1B" {
		t.Fatalf("Tokenomics = %v", data.Tokenomics)
	}
	if got := strings.Join(data.Roadmap, "|"); got != "Q1 mainnet|Q2 bridge" {
		t.Fatalf("Roadmap order = %q", got)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var keys map[string]json.RawMessage
	_ = json.Unmarshal(encoded, &keys)
	for _, k := range domain.SchemaKeys {
		if _, ok := keys[k]; !ok {
			t.Fatalf("encoded data lacks key %q", k)
		}
	}
}

func TestStructureMissingKeysAreExplicit(t *testing.T) {
	llm := &stubLLM{replies: []string{`{"summary":"s","key_features":null,"tokenomics":42}`}}
	s := NewStructurer(llm, noSleepPolicy(1), nop(), 0)
	data, err := s.Structure(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Structure error: %v", err)
	}
	want := map[string]bool{}
	for _, k := range domain.SchemaKeys {
		if k != domain.KeySummary {
			want[k] = true
		}
	}
	if len(data.Missing) != len(want) {
		t.Fatalf("Missing = %v, want %d keys", data.Missing, len(want))
	}
	for _, k := range data.Missing {
		if !want[k] {
			t.Fatalf("unexpected missing key %q", k)
		}
	}
	if data.Tokenomics != nil || data.KeyFeatures != nil {
		t.Fatalf("unusable values kept: %+v", data)
	}

	encoded, _ := json.Marshal(data)
	if !strings.Contains(string(encoded), `"tokenomics":null`) {
		t.Fatalf("missing key not serialized as null: %s", encoded)
	}
}

func TestStructureRepairsOnce(t *testing.T) {
	llm := &stubLLM{replies: []string{"Sure! {summary: broken", "```json\n" + validSchemaJSON + "\n```"}}
	s := NewStructurer(llm, noSleepPolicy(3), nop(), 0)
	data, err := s.Structure(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Structure error: %v", err)
	}
	if llm.calls.Load() != 2 {
		t.Fatalf("llm calls = %d, want 2", llm.calls.Load())
	}
	if !strings.Contains(llm.prompts[1], "{summary: broken") {
		t.Fatalf("repair prompt does not echo the malformed output")
	}
	if data.Summary == nil || *data.Summary != "Example is a rollup." {
		t.Fatalf("Summary = %v", data.Summary)
	}
}

func TestStructureFailsAfterRepair(t *testing.T) {
	llm := &stubLLM{replies: []string{"not json", "still not json"}}
	s := NewStructurer(llm, noSleepPolicy(3), nop(), 0)
	_, err := s.Structure(context.Background(), sampleRaw())
	if !errors.Is(err, domain.ErrStructuring) {
		t.Fatalf("error = %v, want ErrStructuring", err)
	}
	if llm.calls.Load() != 2 {
		t.Fatalf("llm calls = %d, want 2", llm.calls.Load())
	}
}

func TestStructureRetriesTransientLLMFailures(t *testing.T) {
	llm := &stubLLM{errs: []error{retry.Transient(errors.New("503")), nil}}
	s := NewStructurer(llm, noSleepPolicy(3), nop(), 0)
	if _, err := s.Structure(context.Background(), sampleRaw()); err != nil {
		t.Fatalf("Structure error: %v", err)
	}
	if llm.calls.Load() != 2 {
		t.Fatalf("llm calls = %d, want 2", llm.calls.Load())
	}
}

func TestStructureLLMUnavailable(t *testing.T) {
	boom := retry.Transient(errors.New("503"))
	llm := &stubLLM{errs: []error{boom, boom, boom}}
	s := NewStructurer(llm, noSleepPolicy(3), nop(), 0)
	_, err := s.Structure(context.Background(), sampleRaw())
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if llm.calls.Load() != 3 {
		t.Fatalf("llm calls = %d, want 3", llm.calls.Load())
	}
}

func TestStructureContentPolicyIsNotRetried(t *testing.T) {
	llm := &stubLLM{errs: []error{retry.Permanent(domain.ErrContentPolicy)}}
	s := NewStructurer(llm, noSleepPolicy(3), nop(), 0)
	_, err := s.Structure(context.Background(), sampleRaw())
	if !errors.Is(err, domain.ErrStructuring) || !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("error = %v, want ErrStructuring wrapping ErrContentPolicy", err)
	}
	if llm.calls.Load() != 1 {
		t.Fatalf("llm calls = %d, want 1", llm.calls.Load())
	}
}

func TestNormalizeCoercesShapes(t *testing.T) {
	obj, err := parseSchemaObject(`{"project": {
		"summary": "  padded  ",
		"technology": {"chain": "Ethereum", "consensus": "PoS"},
		"key_features": "single feature",
		"team": [{"name": "Ada", "role": "CEO"}, "Bob", ""],
		"roadmap": [{"quarter": "Q1", "milestone": "mainnet"}],
		"tokenomics": "fixed supply",
		"social_links": ["https://www.twitter.com/example", "https://t.me/example"],
		"competitors": [],
		"description": null
	}}`)
	if err != nil {
		t.Fatalf("parseSchemaObject error: %v", err)
	}
	data := normalizeStructured(obj)
	if *data.Summary != "padded" {
		t.Fatalf("Summary = %q", *data.Summary)
	}
	if *data.Technology != "chain: Ethereum - consensus: PoS" {
		t.Fatalf("Technology = %q", *data.Technology)
	}
	if len(data.KeyFeatures) != 1 || data.KeyFeatures[0] != "single feature" {
		t.Fatalf("KeyFeatures = %v", data.KeyFeatures)
	}
	if strings.Join(data.Team, "|") != "Ada - CEO|Bob" {
		t.Fatalf("Team = %v", data.Team)
	}
	if data.Roadmap[0] != "mainnet - Q1" {
		t.Fatalf("Roadmap = %v", data.Roadmap)
	}
	if data.Tokenomics["summary"] != "fixed supply" {
		t.Fatalf("Tokenomics = %v", data.Tokenomics)
	}
	if data.SocialLinks["twitter.com"] != "https://www.twitter.com/example" || data.SocialLinks["t.me"] == "" {
		t.Fatalf("SocialLinks = %v", data.SocialLinks)
	}
	if data.Competitors == nil || len(data.Competitors) != 0 {
		t.Fatalf("Competitors = %#v, want empty non-nil", data.Competitors)
	}
	if len(data.Missing) != 1 || data.Missing[0] != domain.KeyDescription {
		t.Fatalf("Missing = %v, want [description]", data.Missing)
	}
}

func TestStructuringPromptIsBounded(t *testing.T) {
	raw := sampleRaw()
	for i := 0; i < 40; i++ {
		raw.Results = append(raw.Results, domain.Source{URL: "https://s", Snippet: strings.Repeat("word ", 400)})
	}
	prompt := buildStructuringPrompt(raw, 4000)
	if len(prompt) > 4000 {
		t.Fatalf("prompt length = %d, want <= 4000", len(prompt))
	}
	if !strings.Contains(prompt, "tokenomics: 1B supply") {
		t.Fatalf("prompt lost the first source")
	}
}

func TestTruncateKeepsWholeRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "éb", n: 2, want: "é…"},
		{in: "éb", n: 1, want: "…"},
		{in: "a日本", n: 5, want: "a日…"},
		{in: "a日本", n: 3, want: "a…"},
		{in: "tokenomics", n: 5, want: "token…"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.n)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) produced invalid UTF-8", tc.in, tc.n)
		}
	}
}
