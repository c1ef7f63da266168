// Package prompt loads the prompt template catalog and renders prompts for the
// model backend.
package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yuedu-lab/yuedu/internal/ports"
)

// Template names the services render.
const (
	DefaultSchema       = "translate"
	TranslationOnly     = "translation_only"
	TranslationFallback = "translation_fallback"
	Questions           = "questions"
	Linguistic          = "linguistic"
	SummarizeChinese    = "summarize_chi"
	SummarizeEnglish    = "summarize_eng"
	WordChinese         = "word_analysis_chi"
	WordEnglish         = "word_analysis_eng"
)

var requiredTemplates = []string{
	DefaultSchema, TranslationOnly, TranslationFallback, Questions, Linguistic,
	SummarizeChinese, SummarizeEnglish, WordChinese, WordEnglish,
}

//go:embed prompts.yaml
var embedded []byte

// Options are the sampling parameters stored with a template.
type Options struct {
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	NumCtx      int     `yaml:"num_ctx"`
	NumPredict  int     `yaml:"num_predict"`
}

type rawTemplate struct {
	Description string  `yaml:"description"`
	Schema      bool    `yaml:"schema"`
	TwoStage    bool    `yaml:"two_stage"`
	Options     Options `yaml:"options"`
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
}

type rawCatalog struct {
	Templates map[string]rawTemplate `yaml:"templates"`
}

// Template is one parsed catalog entry.
type Template struct {
	Name        string
	Description string
	// Schema marks a translation schema selectable by clients.
	Schema bool
	// TwoStage schemas refine a first-pass translation.
	TwoStage bool
	Options  Options

	system *template.Template
	user   *template.Template
}

// Catalog is an immutable set of templates.
type Catalog struct {
	templates map[string]*Template
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return "", err
		}
		return strings.TrimRight(buf.String(), "\n"), nil
	},
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(embedded))
}

// LoadFile reads a catalog from path. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompt catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a YAML catalog.
func Parse(r io.Reader) (*Catalog, error) {
	var raw rawCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode prompt catalog: %w", err)
	}

	c := &Catalog{templates: make(map[string]*Template, len(raw.Templates))}
	for name, rt := range raw.Templates {
		t, err := compile(name, rt)
		if err != nil {
			return nil, err
		}
		c.templates[name] = t
	}

	var missing []string
	for _, name := range requiredTemplates {
		if _, ok := c.templates[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("prompt catalog is missing templates: %s", strings.Join(missing, ", "))
	}
	if t := c.templates[DefaultSchema]; !t.Schema {
		return nil, fmt.Errorf("template %q must be a schema", DefaultSchema)
	}
	return c, nil
}

func compile(name string, rt rawTemplate) (*Template, error) {
	if strings.TrimSpace(rt.User) == "" {
		return nil, fmt.Errorf("template %q: user text is required", name)
	}
	t := &Template{
		Name:        name,
		Description: rt.Description,
		Schema:      rt.Schema,
		TwoStage:    rt.TwoStage,
		Options:     rt.Options,
	}
	var err error
	if t.user, err = template.New(name + ".user").Funcs(funcs).Option("missingkey=error").Parse(rt.User); err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	if rt.System != "" {
		if t.system, err = template.New(name + ".system").Funcs(funcs).Option("missingkey=error").Parse(rt.System); err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
	}
	return t, nil
}

// Get returns the template called name.
func (c *Catalog) Get(name string) (*Template, bool) {
	t, ok := c.templates[name]
	return t, ok
}

// Schema returns the translation schema called name, falling back to the
// default schema for unknown names and for templates that are not schemas.
func (c *Catalog) Schema(name string) *Template {
	if t, ok := c.templates[name]; ok && t.Schema {
		return t
	}
	return c.templates[DefaultSchema]
}

// Schemas lists the translation schemas by name with their descriptions.
func (c *Catalog) Schemas() map[string]string {
	out := make(map[string]string)
	for name, t := range c.templates {
		if t.Schema {
			out[name] = t.Description
		}
	}
	return out
}

// Names returns every template name in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownTemplate is returned by Render for names not in the catalog.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// Render executes the template called name with data and returns the prompt
// together with the template's generation options.
func (c *Catalog) Render(name string, data any) (string, ports.GenerateOptions, error) {
	t, ok := c.templates[name]
	if !ok {
		return "", ports.GenerateOptions{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	p, err := t.Render(data)
	if err != nil {
		return "", ports.GenerateOptions{}, err
	}
	return p, t.GenerateOptions(), nil
}

// Render executes the template with data.
func (t *Template) Render(data any) (string, error) {
	user, err := execute(t.user, data)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name, err)
	}
	if t.system == nil {
		return user, nil
	}
	system, err := execute(t.system, data)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name, err)
	}
	return fmt.Sprintf("System: %s\n\nUser: %s\n\nAssistant:", system, user), nil
}

// GenerateOptions converts the stored options, labelling the call with the
// template name.
func (t *Template) GenerateOptions() ports.GenerateOptions {
	return ports.GenerateOptions{
		Temperature:     t.Options.Temperature,
		TopP:            t.Options.TopP,
		ContextSize:     t.Options.NumCtx,
		MaxOutputTokens: t.Options.NumPredict,
		Stage:           t.Name,
	}
}

func execute(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
