package concepts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConcept(t *testing.T, dir, name string, refs []string, body string) {
	t.Helper()
	refStr := "[]"
	if len(refs) > 0 {
		refStr = "[" + strings.Join(refs, ", ") + "]"
	}
	content := "---\nname: " + name + "\nreferences: " + refStr + "\n---\n\n" + body
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func TestLoadOrderRespectsReferences(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "auth", []string{"core", "security"}, "auth body")
	writeConcept(t, dir, "core", nil, "core body")
	writeConcept(t, dir, "security", []string{"core"}, "security body")

	g := NewGraph(dir)
	order, err := g.LoadOrder()
	if err != nil {
		t.Fatalf("LoadOrder: %v", err)
	}

	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 names", order)
	}
	if indexOf(order, "core") > indexOf(order, "security") {
		t.Errorf("core must precede security: %v", order)
	}
	if indexOf(order, "core") > indexOf(order, "auth") {
		t.Errorf("core must precede auth: %v", order)
	}
	if indexOf(order, "security") > indexOf(order, "auth") {
		t.Errorf("security must precede auth: %v", order)
	}
}

func TestLoadOrderTerminatesOnCycle(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "a", []string{"b"}, "a body")
	writeConcept(t, dir, "b", []string{"c"}, "b body")
	writeConcept(t, dir, "c", []string{"a"}, "c body")

	g := NewGraph(dir)
	order, err := g.LoadOrder()
	if err != nil {
		t.Fatalf("LoadOrder: %v", err)
	}

	// Complete permutation, each name exactly once
	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 names", order)
	}
	seen := make(map[string]int)
	for _, n := range order {
		seen[n]++
	}
	for _, n := range []string{"a", "b", "c"} {
		if seen[n] != 1 {
			t.Errorf("name %q appears %d times in %v", n, seen[n], order)
		}
	}
}

func TestLoadOrderIgnoresDanglingReferences(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "app", []string{"ghost", "base"}, "app body")
	writeConcept(t, dir, "base", nil, "base body")

	g := NewGraph(dir)
	order, err := g.LoadOrder()
	if err != nil {
		t.Fatalf("LoadOrder: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("order = %v, want 2 names (ghost omitted)", order)
	}
	if indexOf(order, "ghost") != -1 {
		t.Errorf("dangling reference leaked into order: %v", order)
	}
}

func TestLoadWithDependencies(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "a", []string{"b"}, "content of a")
	writeConcept(t, dir, "b", nil, "content of b")
	writeConcept(t, dir, "unrelated", nil, "noise")

	g := NewGraph(dir)
	out, err := g.LoadWithDependencies([]string{"a"})
	if err != nil {
		t.Fatalf("LoadWithDependencies: %v", err)
	}

	posB := strings.Index(out, "## Concept: b")
	posA := strings.Index(out, "## Concept: a")
	if posB == -1 || posA == -1 {
		t.Fatalf("missing sections in output:\n%s", out)
	}
	if posB > posA {
		t.Errorf("b's section must precede a's:\n%s", out)
	}
	if strings.Contains(out, "unrelated") {
		t.Errorf("unrelated concept leaked into output:\n%s", out)
	}
	if !strings.Contains(out, "content of b") {
		t.Errorf("missing b content:\n%s", out)
	}
}

func TestLoadWithDependenciesOmitsUnknownNames(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "real", nil, "real body")

	g := NewGraph(dir)
	out, err := g.LoadWithDependencies([]string{"real", "imaginary"})
	if err != nil {
		t.Fatalf("LoadWithDependencies: %v", err)
	}
	if !strings.Contains(out, "## Concept: real") {
		t.Errorf("missing real section:\n%s", out)
	}
	if strings.Contains(out, "imaginary") {
		t.Errorf("unknown name should be silently omitted:\n%s", out)
	}
}

func TestCreateAndDuplicate(t *testing.T) {
	dir := t.TempDir()
	g := NewGraph(dir)

	c, err := g.Create("auth", []string{"core"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Name != "auth" {
		t.Errorf("Name = %q", c.Name)
	}
	if !strings.Contains(c.Content, "# Auth Concepts") {
		t.Errorf("starter template missing: %q", c.Content)
	}

	// A fresh graph instance reads it back from disk
	fresh := NewGraph(dir)
	got, err := fresh.Get("auth")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("concept not persisted")
	}
	if len(got.References) != 1 || got.References[0] != "core" {
		t.Errorf("References = %v", got.References)
	}

	if _, err := g.Create("auth", nil); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	g := NewGraph(dir)

	if _, err := g.Create("tmp", nil); err != nil {
		t.Fatal(err)
	}

	ok, err := g.Remove("tmp")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !ok {
		t.Error("expected Remove to report existence")
	}

	ok, err = g.Remove("tmp")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second Remove should report missing")
	}

	if _, err := os.Stat(filepath.Join(dir, "tmp.md")); !os.IsNotExist(err) {
		t.Error("concept file still on disk")
	}
}

func TestValidateAllReferences(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "ok", []string{"base"}, "x")
	writeConcept(t, dir, "base", nil, "x")
	writeConcept(t, dir, "broken", []string{"base", "missing1", "missing2"}, "x")

	g := NewGraph(dir)
	issues, err := g.ValidateAllReferences()
	if err != nil {
		t.Fatalf("ValidateAllReferences: %v", err)
	}

	if len(issues) != 1 {
		t.Fatalf("issues = %v, want only broken", issues)
	}
	missing := issues["broken"]
	if len(missing) != 2 || missing[0] != "missing1" || missing[1] != "missing2" {
		t.Errorf("broken missing = %v", missing)
	}
}

func TestLoadSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "good", nil, "fine")
	// Unclosed front matter with invalid YAML inside
	bad := "---\nname: [unclosed\n---\nbody"
	if err := os.WriteFile(filepath.Join(dir, "bad.md"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	g := NewGraph(dir)
	list, err := g.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "good" {
		t.Errorf("List = %v, want only good", list)
	}
}

func TestLoadRecursesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "backend")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConcept(t, dir, "top", nil, "top body")
	writeConcept(t, sub, "nested", nil, "nested body")

	g := NewGraph(dir)
	list, err := g.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("List = %d concepts, want 2 (nested included)", len(list))
	}
}

func TestForceReload(t *testing.T) {
	dir := t.TempDir()
	writeConcept(t, dir, "only", nil, "v1")

	g := NewGraph(dir)
	if err := g.Load(false); err != nil {
		t.Fatal(err)
	}

	// Written behind the cache's back
	writeConcept(t, dir, "later", nil, "v1")

	c, err := g.Get("later")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("cache should not see the new file without reload")
	}

	if err := g.Load(true); err != nil {
		t.Fatal(err)
	}
	c, err = g.Get("later")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Error("forced reload should pick up the new file")
	}
}
