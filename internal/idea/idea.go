// Package idea loads the research idea an experiment session implements.
package idea

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when an idea file lacks a title or experiment.
var ErrInvalid = errors.New("invalid idea")

// Idea is the input of a session. JSON idea files parse as YAML.
type Idea struct {
	Name       string
	Title      string
	Experiment string
}

// Load reads and validates an idea file. Keys are matched case-insensitively.
func Load(path string) (Idea, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Idea{}, fmt.Errorf("read idea: %w", err)
	}
	idea, err := Parse(data)
	if err != nil {
		return Idea{}, fmt.Errorf("%s: %w", path, err)
	}
	if idea.Name == "" {
		idea.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return idea, nil
}

// Parse decodes an idea document. Keys are folded to lower case and read in
// document order, so a later "title" overrides an earlier "Title".
func Parse(data []byte) (Idea, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Idea{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var idea Idea
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return Idea{}, fmt.Errorf("%w: expected a mapping at line %d", ErrInvalid, root.Line)
		}
		for k := 0; k+1 < len(root.Content); k += 2 {
			key, value := root.Content[k], root.Content[k+1]
			if value.Kind != yaml.ScalarNode {
				continue
			}
			text := strings.TrimSpace(value.Value)
			switch strings.ToLower(key.Value) {
			case "name":
				idea.Name = text
			case "title":
				idea.Title = text
			case "experiment":
				idea.Experiment = text
			}
		}
	}
	if err := idea.Validate(); err != nil {
		return Idea{}, err
	}
	return idea, nil
}

// Validate checks the fields the first prompt needs.
func (i Idea) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if i.Experiment == "" {
		return fmt.Errorf("%w: experiment is required", ErrInvalid)
	}
	return nil
}
