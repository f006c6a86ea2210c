// Package templates loads workflow template definitions from YAML files.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// LoadFile parses a single YAML template file.
func LoadFile(path string) (*schema.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	var tpl schema.WorkflowTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse template %s: %v", filepath.Base(path), err).WithCause(err)
	}
	if tpl.ID == "" {
		// Fall back to the file name for templates that omit an id.
		tpl.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &tpl, nil
}

// LoadDir parses every .yaml/.yml file in a directory, sorted by name so
// registration order is deterministic. Subdirectories are not descended.
func LoadDir(dir string) ([]*schema.WorkflowTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var templates []*schema.WorkflowTemplate
	for _, name := range names {
		tpl, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}
