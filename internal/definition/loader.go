// Package definition loads calculator templates, validates calculator
// configurations, and provides a template registry with atomic pointer swap.
package definition

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pitabwire/quotecfg/model"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateID is the id of the built-in print calculator template.
const DefaultTemplateID = "default-calculator"

//go:embed templates/*.yaml
var builtinFS embed.FS

// Loader scans directories for template files, parses them, and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new template Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Builtin returns the templates compiled into the binary.
func (l *Loader) Builtin() ([]model.Template, error) {
	entries, err := fs.ReadDir(builtinFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("reading builtin templates: %w", err)
	}
	var tmpls []model.Template
	for _, e := range entries {
		p := path.Join("templates", e.Name())
		data, err := builtinFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		t, err := l.Parse(data, p)
		if err != nil {
			return nil, err
		}
		tmpls = append(tmpls, t)
	}
	return tmpls, nil
}

// DefaultTemplate returns the built-in default print calculator.
func (l *Loader) DefaultTemplate() (model.Template, error) {
	tmpls, err := l.Builtin()
	if err != nil {
		return model.Template{}, err
	}
	for _, t := range tmpls {
		if t.ID == DefaultTemplateID {
			return t, nil
		}
	}
	return model.Template{}, fmt.Errorf("builtin template %q missing", DefaultTemplateID)
}

// LoadCatalog returns the builtin templates followed by every template found
// in directories, so a directory template overrides a builtin with its id.
func (l *Loader) LoadCatalog(directories []string) ([]model.Template, error) {
	tmpls, err := l.Builtin()
	if err != nil {
		return nil, err
	}
	fromDirs, err := l.LoadAll(directories)
	if err != nil {
		return nil, err
	}
	return append(tmpls, fromDirs...), nil
}

// LoadAll recursively scans directories for *.yaml, *.yml and *.json files
// and parses each into a Template.
func (l *Loader) LoadAll(directories []string) ([]model.Template, error) {
	var tmpls []model.Template

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isTemplateFile(p) {
				return nil
			}

			t, err := l.LoadFile(p)
			if err != nil {
				return fmt.Errorf("loading %s: %w", p, err)
			}
			tmpls = append(tmpls, t)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return tmpls, nil
}

// LoadFile loads and parses a single template file.
func (l *Loader) LoadFile(p string) (model.Template, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return model.Template{}, fmt.Errorf("reading %s: %w", p, err)
	}
	return l.Parse(data, p)
}

// Parse decodes template bytes. Files ending in .json are decoded as JSON
// with camelCase keys; everything else as YAML with snake_case keys.
func (l *Loader) Parse(data []byte, source string) (model.Template, error) {
	var t model.Template
	if strings.EqualFold(filepath.Ext(source), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return model.Template{}, fmt.Errorf("parsing %s: %w", source, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &t); err != nil {
			return model.Template{}, fmt.Errorf("parsing %s: %w", source, err)
		}
	}
	if t.ID == "" {
		return model.Template{}, fmt.Errorf("parsing %s: template id is required", source)
	}
	t.CalculatorConfig = t.CalculatorConfig.Normalized()
	if t.Version == 0 {
		t.Version = 1
	}

	t.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	t.SourceFile = source
	return t, nil
}

func isTemplateFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
