// Package starter provides the fragments and libraries a new session begins with.
package starter

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
)

//go:embed default.yaml
var defaultTemplate []byte

// Template is the initial content of a session
type Template struct {
	Name      string   `yaml:"name" toml:"name" json:"name"`
	Markup    string   `yaml:"markup" toml:"markup" json:"markup"`
	Style     string   `yaml:"style" toml:"style" json:"style"`
	Script    string   `yaml:"script" toml:"script" json:"script"`
	Libraries []string `yaml:"libraries" toml:"libraries" json:"libraries"`
}

// Fragments returns the template text keyed by kind
func (t Template) Fragments() fragment.Set {
	return fragment.Set{
		fragment.Markup: t.Markup,
		fragment.Style:  t.Style,
		fragment.Script: t.Script,
	}
}

// Default returns the embedded template
func Default() Template {
	t, err := Parse(defaultTemplate, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded starter template: %v", err))
	}
	return t
}

// Empty returns a template with no content and no libraries
func Empty() Template {
	return Template{Name: "empty"}
}

// Load reads a template file. The format follows the extension:
// .yaml/.yml, .toml or .json.
func Load(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read starter template: %w", err)
	}

	t, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Template{}, fmt.Errorf("%s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// LoadOrDefault loads path, or the embedded template when path is empty
func LoadOrDefault(path string) (Template, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes data in the format named by ext
func Parse(data []byte, ext string) (Template, error) {
	var t Template
	var err error

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &t)
	case ".toml":
		err = toml.Unmarshal(data, &t)
	case ".json":
		err = sonic.Unmarshal(data, &t)
	default:
		return Template{}, fmt.Errorf("unsupported starter template format %q", ext)
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to parse starter template: %w", err)
	}
	return t, nil
}
