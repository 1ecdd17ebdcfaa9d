package concepts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConceptFrontMatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.md")
	content := "---\nname: auth\nreferences: [core, security]\n---\n\n# Auth\n\nDetails here.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConcept(path)
	if err != nil {
		t.Fatalf("LoadConcept: %v", err)
	}
	if c.Name != "auth" {
		t.Errorf("Name = %q, want auth", c.Name)
	}
	if len(c.References) != 2 || c.References[0] != "core" || c.References[1] != "security" {
		t.Errorf("References = %v", c.References)
	}
	if !strings.Contains(c.Content, "# Auth") {
		t.Errorf("Content = %q, front matter not stripped?", c.Content)
	}
	if strings.Contains(c.Content, "references:") {
		t.Errorf("Content leaked front matter: %q", c.Content)
	}
}

func TestLoadConceptWithoutFrontMatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain-notes.md")
	if err := os.WriteFile(path, []byte("# Notes\n\nBody.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConcept(path)
	if err != nil {
		t.Fatalf("LoadConcept: %v", err)
	}
	if c.Name != "plain-notes" {
		t.Errorf("Name = %q, want file stem fallback", c.Name)
	}
	if len(c.References) != 0 {
		t.Errorf("References = %v, want none", c.References)
	}
	if !strings.Contains(c.Content, "# Notes") {
		t.Errorf("Content = %q", c.Content)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := &Concept{
		Name:       "storage",
		Content:    "# Storage\n\nHow data is kept.\n",
		References: []string{"core"},
		Path:       filepath.Join(dir, "storage.md"),
	}
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadConcept(c.Path)
	if err != nil {
		t.Fatalf("LoadConcept: %v", err)
	}
	if got.Name != c.Name {
		t.Errorf("Name = %q, want %q", got.Name, c.Name)
	}
	if len(got.References) != 1 || got.References[0] != "core" {
		t.Errorf("References = %v", got.References)
	}
	if !strings.Contains(got.Content, "How data is kept.") {
		t.Errorf("Content = %q", got.Content)
	}
}

func TestSaveEmptyReferences(t *testing.T) {
	dir := t.TempDir()
	c := &Concept{
		Name:    "lone",
		Content: "body",
		Path:    filepath.Join(dir, "lone.md"),
	}
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "references: []") {
		t.Errorf("expected empty bracket list, got:\n%s", raw)
	}

	got, err := LoadConcept(c.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.References) != 0 {
		t.Errorf("References = %v", got.References)
	}
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"auth":           "Auth",
		"error-handling": "Error Handling",
		"api_design":     "Api Design",
	}
	for in, want := range cases {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
