// Package concepts manages named context documents and their dependency graph.
package concepts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Concept is a named, reusable context document. References name other
// concepts that should be loaded before this one.
type Concept struct {
	Name       string
	Content    string
	References []string
	Path       string // backing markdown file
}

// frontMatter is the structured header block of a concept file.
type frontMatter struct {
	Name       string   `yaml:"name"`
	References []string `yaml:"references"`
}

const frontMatterDelim = "---"

// LoadConcept parses a concept markdown file. The optional front-matter
// block carries the name and reference list; without one, the file stem
// becomes the name and the whole file the content.
func LoadConcept(path string) (*Concept, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read concept: %w", err)
	}

	c := &Concept{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: string(data),
		Path:    path,
	}

	header, body, ok := splitFrontMatter(string(data))
	if !ok {
		return c, nil
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("parse front matter of %s: %w", filepath.Base(path), err)
	}

	if fm.Name != "" {
		c.Name = fm.Name
	}
	c.References = fm.References
	c.Content = body
	return c, nil
}

// splitFrontMatter separates a leading --- delimited block from the body.
func splitFrontMatter(s string) (header, body string, ok bool) {
	lines := strings.Split(s, "\n")
	if len(lines) < 3 || strings.TrimRight(lines[0], "\r") != frontMatterDelim {
		return "", "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == frontMatterDelim {
			header = strings.Join(lines[1:i], "\n")
			body = strings.TrimPrefix(strings.Join(lines[i+1:], "\n"), "\n")
			return header, body, true
		}
	}
	return "", "", false
}

// Save writes the concept back to its file, references rendered as a
// bracketed, comma-separated list for compatibility with existing files.
func (c *Concept) Save() error {
	if c.Path == "" {
		return fmt.Errorf("concept %q has no file path", c.Name)
	}

	refs := "[]"
	if len(c.References) > 0 {
		refs = "[" + strings.Join(c.References, ", ") + "]"
	}

	full := fmt.Sprintf("---\nname: %s\nreferences: %s\n---\n\n%s", c.Name, refs, c.Content)

	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("create concepts dir: %w", err)
	}
	if err := os.WriteFile(c.Path, []byte(full), 0o644); err != nil {
		return fmt.Errorf("write concept %s: %w", c.Name, err)
	}
	return nil
}

// MissingReferences returns the subset of c's references not present in known.
func (c *Concept) MissingReferences(known map[string]*Concept) []string {
	var missing []string
	for _, ref := range c.References {
		if _, ok := known[ref]; !ok {
			missing = append(missing, ref)
		}
	}
	return missing
}

// starterTemplate is the body given to newly created concepts.
func starterTemplate(name string) string {
	return fmt.Sprintf(`# %s Concepts

## Overview
[Add overview here]

## Key Points
- [Add key points]

## Examples
[Add examples if applicable]
`, titleCase(name))
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove concept file: %w", err)
	}
	return nil
}
