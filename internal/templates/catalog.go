// Package templates renders generation prompts from named templates, project
// research and the brand style.
package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"contentforge/internal/domain"
)

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Rendered is a prompt ready for a backend.
type Rendered struct {
	Template    string
	Prompt      string
	AspectRatio string
	Duration    int
	// Variables holds the values substituted into the template.
	Variables map[string]string
}

// Descriptor is the public listing entry of a template.
type Descriptor struct {
	Kind        domain.JobKind `json:"kind"`
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Duration    int            `json:"duration_seconds,omitempty"`
	Scenes      []Scene        `json:"scenes,omitempty"`
	Variables   []string       `json:"variables"`
}

// Catalog holds the templates of every kind together with the brand style.
type Catalog struct {
	style *Style
	text  map[string]TextTemplate
	image map[string]ImageTemplate
	video map[string]VideoTemplate
}

func NewCatalog(style *Style) *Catalog {
	if style == nil {
		style = DefaultStyle()
	}
	c := &Catalog{
		style: style,
		text:  make(map[string]TextTemplate, len(textTemplates)),
		image: make(map[string]ImageTemplate, len(imageTemplates)),
		video: make(map[string]VideoTemplate, len(videoTemplates)),
	}
	for _, t := range textTemplates {
		c.text[t.Name] = t
	}
	for _, t := range imageTemplates {
		c.image[t.Name] = t
	}
	for _, t := range videoTemplates {
		c.video[t.Name] = t
	}
	return c
}

func (c *Catalog) Style() *Style { return c.style }

// Render fills the named template of kind. Project variables are the base,
// caller variables override them, and any placeholder left unresolved is a
// validation error.
func (c *Catalog) Render(kind domain.JobKind, name string, project *domain.ProjectRecord, vars map[string]string) (Rendered, error) {
	values := c.projectVariables(project)
	for k, v := range vars {
		values[k] = strings.TrimSpace(v)
	}
	if err := c.styleVariables(values); err != nil {
		return Rendered{}, err
	}

	switch kind {
	case domain.KindText:
		t, ok := c.text[name]
		if !ok {
			return Rendered{}, unknownTemplate(kind, name)
		}
		if _, ok := values["duration"]; !ok {
			values["duration"] = "30"
		}
		prompt, used, err := fill(t.Body, values)
		if err != nil {
			return Rendered{}, fmt.Errorf("template %s: %w", name, err)
		}
		return Rendered{Template: name, Prompt: prompt, Variables: used}, nil

	case domain.KindImage:
		t, ok := c.image[name]
		if !ok {
			return Rendered{}, unknownTemplate(kind, name)
		}
		prompt, used, err := fill(t.Prompt, values)
		if err != nil {
			return Rendered{}, fmt.Errorf("template %s: %w", name, err)
		}
		if preset := c.style.Preset(t.Preset); len(preset.StyleKeywords) > 0 {
			prompt += ", " + strings.Join(preset.StyleKeywords, ", ")
		}
		return Rendered{Template: name, Prompt: prompt, AspectRatio: t.AspectRatio, Variables: used}, nil

	case domain.KindVideo:
		t, ok := c.video[name]
		if !ok {
			return Rendered{}, unknownTemplate(kind, name)
		}
		prompt, used, err := fill(c.videoPrompt(t), values)
		if err != nil {
			return Rendered{}, fmt.Errorf("template %s: %w", name, err)
		}
		return Rendered{Template: name, Prompt: prompt, AspectRatio: "16:9", Duration: t.Duration, Variables: used}, nil
	}
	return Rendered{}, fmt.Errorf("%w: unknown content kind %q", domain.ErrValidation, kind)
}

// RenderPrompt decorates a raw caller prompt for kind.
func (c *Catalog) RenderPrompt(kind domain.JobKind, prompt, aspectRatio string) (Rendered, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Rendered{}, fmt.Errorf("%w: prompt is empty", domain.ErrValidation)
	}
	if aspectRatio != "" && !ValidAspectRatio(aspectRatio) {
		return Rendered{}, fmt.Errorf("%w: unsupported aspect ratio %q", domain.ErrValidation, aspectRatio)
	}
	switch kind {
	case domain.KindText:
		return Rendered{Prompt: prompt}, nil
	case domain.KindImage:
		if aspectRatio == "" {
			aspectRatio = c.style.Preset(DefaultPreset).AspectRatio
		}
		return Rendered{Prompt: c.style.Apply(prompt, true), AspectRatio: aspectRatio}, nil
	case domain.KindVideo:
		if aspectRatio == "" {
			aspectRatio = "16:9"
		}
		return Rendered{Prompt: c.style.Apply(prompt, false), AspectRatio: aspectRatio}, nil
	}
	return Rendered{}, fmt.Errorf("%w: unknown content kind %q", domain.ErrValidation, kind)
}

func (c *Catalog) videoPrompt(t VideoTemplate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A %d-second promotional video %s. Visual style: {brand_style}.", t.Duration, t.Subject)
	b.WriteString(" Featuring {mascot}.")
	for i, s := range t.Scenes {
		fmt.Fprintf(&b, " Scene %d (%ds, %s): %s.", i+1, s.Duration, strings.ReplaceAll(s.Type, "_", " "), s.Goal)
	}
	return b.String()
}

// List describes every template, grouped by kind and sorted by name.
func (c *Catalog) List() []Descriptor {
	var out []Descriptor
	for _, t := range textTemplates {
		out = append(out, Descriptor{Kind: domain.KindText, Name: t.Name, Title: c.displayTitle(t.Name), Description: t.Description, Variables: placeholders(t.Body)})
	}
	for _, t := range imageTemplates {
		out = append(out, Descriptor{Kind: domain.KindImage, Name: t.Name, Title: c.displayTitle(t.Name), Description: t.Structure, AspectRatio: t.AspectRatio, Variables: placeholders(t.Prompt)})
	}
	for _, t := range videoTemplates {
		out = append(out, Descriptor{Kind: domain.KindVideo, Name: t.Name, Title: c.displayTitle(t.Name), Duration: t.Duration, Scenes: t.Scenes, Variables: placeholders(c.videoPrompt(t))})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Has reports whether kind has a template called name.
func (c *Catalog) Has(kind domain.JobKind, name string) bool {
	switch kind {
	case domain.KindText:
		_, ok := c.text[name]
		return ok
	case domain.KindImage:
		_, ok := c.image[name]
		return ok
	case domain.KindVideo:
		_, ok := c.video[name]
		return ok
	}
	return false
}

func (c *Catalog) displayTitle(name string) string {
	return titleCase(strings.ReplaceAll(name, "_", " "))
}

// titleCase builds a fresh Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func (c *Catalog) styleVariables(values map[string]string) error {
	if _, ok := values["mascot"]; !ok {
		mascot, err := c.style.MascotPrompt(values["emotion"], values["action"])
		if err != nil {
			return err
		}
		values["mascot"] = mascot
	}
	if _, ok := values["brand_style"]; !ok {
		values["brand_style"] = c.style.BrandLine()
	}
	return nil
}

func unknownTemplate(kind domain.JobKind, name string) error {
	return fmt.Errorf("%w: no %s template named %q", domain.ErrValidation, kind, name)
}

// fill substitutes {name} placeholders. Empty values count as unresolved.
func fill(body string, values map[string]string) (string, map[string]string, error) {
	used := map[string]string{}
	var missing []string
	out := placeholder.ReplaceAllStringFunc(body, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := values[key]
		if !ok || v == "" {
			missing = appendUnique(missing, key)
			return m
		}
		used[key] = v
		return v
	})
	if len(missing) > 0 {
		return "", nil, fmt.Errorf("%w: missing template variables: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return out, used, nil
}

func placeholders(body string) []string {
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(body, -1) {
		names = appendUnique(names, m[1])
	}
	return names
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
