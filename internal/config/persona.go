package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPersonaName is the builtin persona used when PERSONA_FILE is unset.
const DefaultPersonaName = "aviation"

//go:embed personas/*.toml
var builtinPersonas embed.FS

// Persona describes what the chat page shows and how the model is prompted.
type Persona struct {
	Title            string   `toml:"title" json:"title"`
	Icon             string   `toml:"icon" json:"icon"`
	Heading          string   `toml:"heading" json:"heading"`
	Intro            string   `toml:"intro" json:"intro"`
	InputPlaceholder string   `toml:"input_placeholder" json:"input_placeholder"`
	GatedNotice      string   `toml:"gated_notice" json:"gated_notice"`
	ExamplePrompts   []string `toml:"example_prompts" json:"example_prompts"`

	SystemPrompt string  `toml:"system_prompt" json:"-"`
	Model        string  `toml:"model" json:"model"`
	Temperature  float64 `toml:"temperature" json:"-"`
	TopP         float64 `toml:"top_p" json:"-"`

	Banner BannerSource `toml:"banner" json:"-"`
}

// BannerSource selects the decorative image.
type BannerSource struct {
	Mode        string   `toml:"mode"`
	URL         string   `toml:"url"`
	Caption     string   `toml:"caption"`
	Candidates  []string `toml:"candidates"`
	FallbackURL string   `toml:"fallback_url"`
}

// LoadPersona loads a builtin persona by name, or a TOML file by path.
func LoadPersona(nameOrPath string) (*Persona, error) {
	if nameOrPath == "" {
		nameOrPath = DefaultPersonaName
	}

	var (
		p  Persona
		md toml.MetaData
	)
	if data, err := builtinPersonas.ReadFile(path.Join("personas", nameOrPath+".toml")); err == nil {
		if md, err = toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("decode builtin persona %q: %w", nameOrPath, err)
		}
	} else {
		if _, statErr := os.Stat(nameOrPath); statErr != nil {
			return nil, fmt.Errorf("persona %q is neither builtin nor a readable file: %w", nameOrPath, statErr)
		}
		var err error
		if md, err = toml.DecodeFile(nameOrPath, &p); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}

	p.fillDefaults(md)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persona %q: %w", nameOrPath, err)
	}
	return &p, nil
}

// BuiltinPersonas lists the embedded persona names.
func BuiltinPersonas() []string {
	entries, err := builtinPersonas.ReadDir("personas")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".toml"))
	}
	return names
}

// fillDefaults applies defaults. Sampling values are defaulted only when the
// key is absent, so an explicit zero is kept and validated.
func (p *Persona) fillDefaults(md toml.MetaData) {
	if p.Model == "" {
		p.Model = "gpt-4o"
	}
	if !md.IsDefined("temperature") {
		p.Temperature = 0.7
	}
	if !md.IsDefined("top_p") {
		p.TopP = 0.9
	}
	if p.Heading == "" {
		p.Heading = p.Title
	}
	if p.GatedNotice == "" {
		p.GatedNotice = "Enter an OpenAI API key in the sidebar to start chatting."
	}
	if p.Banner.Mode == "" {
		p.Banner.Mode = "static"
	}
}

// Validate checks the persona fields the chat cannot run without.
func (p *Persona) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, errors.New("title cannot be empty"))
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		errs = append(errs, errors.New("system_prompt cannot be empty"))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %v out of range [0, 2]", p.Temperature))
	}
	if p.TopP <= 0 || p.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p %v out of range (0, 1]", p.TopP))
	}
	return errors.Join(errs...)
}
