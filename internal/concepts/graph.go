package concepts

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrExists is returned when creating a concept whose name is taken.
var ErrExists = errors.New("concept already exists")

// Graph is a collection of concepts with their reference graph. Concepts
// are read into a per-instance cache on first use; writes go straight to
// disk and update the cache.
type Graph struct {
	mu     sync.Mutex
	dir    string
	cache  map[string]*Concept
	names  []string // discovery order, keeps ordering deterministic
	loaded bool
}

// NewGraph creates a Graph rooted at the given concepts directory.
func NewGraph(dir string) *Graph {
	return &Graph{dir: dir}
}

// load scans the concepts directory. Malformed files are skipped, not fatal.
func (g *Graph) load(force bool) error {
	if g.loaded && !force {
		return nil
	}

	g.cache = make(map[string]*Concept)
	g.names = nil

	// Recursive glob so concepts can be organized in subdirectories.
	paths, err := doublestar.FilepathGlob(filepath.Join(g.dir, "**", "*.md"))
	if err != nil {
		return fmt.Errorf("scan concepts: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		c, err := LoadConcept(path)
		if err != nil {
			continue // skip malformed concepts
		}
		if _, ok := g.cache[c.Name]; ok {
			continue // first file wins on duplicate names
		}
		g.cache[c.Name] = c
		g.names = append(g.names, c.Name)
	}

	g.loaded = true
	return nil
}

// Load reads all concepts from disk, once per instance unless forced.
func (g *Graph) Load(force bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load(force)
}

// Get returns the concept by exact name, or nil.
func (g *Graph) Get(name string) (*Concept, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return nil, err
	}
	return g.cache[name], nil
}

// List returns all concepts in discovery order.
func (g *Graph) List() ([]*Concept, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return nil, err
	}

	list := make([]*Concept, 0, len(g.names))
	for _, name := range g.names {
		list = append(list, g.cache[name])
	}
	return list, nil
}

// Create persists a new concept with a starter template body. Fails with
// ErrExists when the name is already taken.
func (g *Graph) Create(name string, references []string) (*Concept, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return nil, err
	}

	if _, ok := g.cache[name]; ok {
		return nil, fmt.Errorf("concept %q: %w", name, ErrExists)
	}

	c := &Concept{
		Name:       name,
		Content:    starterTemplate(name),
		References: references,
		Path:       filepath.Join(g.dir, name+".md"),
	}
	if err := c.Save(); err != nil {
		return nil, err
	}

	g.cache[name] = c
	g.names = append(g.names, name)
	return c, nil
}

// Add persists an existing concept value into the graph, overwriting any
// concept with the same name.
func (g *Graph) Add(c *Concept) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return err
	}

	if c.Path == "" {
		c.Path = filepath.Join(g.dir, c.Name+".md")
	}
	if err := c.Save(); err != nil {
		return err
	}

	if _, ok := g.cache[c.Name]; !ok {
		g.names = append(g.names, c.Name)
	}
	g.cache[c.Name] = c
	return nil
}

// Remove deletes the concept's file and cache entry, reporting whether it
// existed. Other concepts' reference lists are not rewritten; their
// references may dangle afterwards.
func (g *Graph) Remove(name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return false, err
	}

	c, ok := g.cache[name]
	if !ok {
		return false, nil
	}

	if err := removeFile(c.Path); err != nil {
		return false, err
	}

	delete(g.cache, name)
	for i, n := range g.names {
		if n == name {
			g.names = append(g.names[:i], g.names[i+1:]...)
			break
		}
	}
	return true, nil
}

// LoadOrder returns all concept names in dependency order: a concept
// appears after every one of its references that exists in the graph.
// The traversal is depth-first post-order with a visited set, so it is a
// total function over any graph: reference cycles degrade to "load once,
// in discovery order" and dangling references are ignored.
func (g *Graph) LoadOrder() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return nil, err
	}
	return g.loadOrder(), nil
}

func (g *Graph) loadOrder() []string {
	visited := make(map[string]bool, len(g.names))
	order := make([]string, 0, len(g.names))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		for _, ref := range g.cache[name].References {
			if _, ok := g.cache[ref]; ok { // only visit existing concepts
				visit(ref)
			}
		}
		order = append(order, name)
	}

	for _, name := range g.names {
		visit(name)
	}
	return order
}

// LoadWithDependencies computes the transitive closure of the requested
// names under the reference relation and emits each closed-over concept in
// load order, prefixed with a section header. Requested names missing from
// the graph are silently omitted.
func (g *Graph) LoadWithDependencies(names []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return "", err
	}

	// Iterative frontier expansion; the seen set both dedups and
	// terminates cyclic reference chains.
	needed := make(map[string]bool)
	frontier := append([]string(nil), names...)
	for len(frontier) > 0 {
		name := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if needed[name] {
			continue
		}
		c, ok := g.cache[name]
		if !ok {
			continue
		}
		needed[name] = true
		frontier = append(frontier, c.References...)
	}

	var b strings.Builder
	for _, name := range g.loadOrder() {
		if !needed[name] {
			continue
		}
		b.WriteString("\n## Concept: " + name + "\n")
		b.WriteString(g.cache[name].Content)
		b.WriteString("\n" + strings.Repeat("-", 40) + "\n")
	}
	return b.String(), nil
}

// ValidateAllReferences reports, per concept, the references that don't
// resolve to an existing concept. Empty when there are no issues.
func (g *Graph) ValidateAllReferences() (map[string][]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return nil, err
	}

	issues := make(map[string][]string)
	for _, name := range g.names {
		if missing := g.cache[name].MissingReferences(g.cache); len(missing) > 0 {
			issues[name] = missing
		}
	}
	return issues, nil
}

// ReferencedBy returns the names of concepts that reference the given one.
func (g *Graph) ReferencedBy(name string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(false); err != nil {
		return nil, err
	}

	var result []string
	for _, other := range g.names {
		for _, ref := range g.cache[other].References {
			if ref == name {
				result = append(result, other)
				break
			}
		}
	}
	return result, nil
}

// Stats summarizes the graph.
type Stats struct {
	Total            int
	TotalSize        int
	TotalReferences  int
	ValidationIssues int
}

// Summarize computes collection statistics.
func (g *Graph) Summarize() (Stats, error) {
	issues, err := g.ValidateAllReferences()
	if err != nil {
		return Stats{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats{ValidationIssues: len(issues)}
	for _, name := range g.names {
		c := g.cache[name]
		s.Total++
		s.TotalSize += len(c.Content)
		s.TotalReferences += len(c.References)
	}
	return s, nil
}
