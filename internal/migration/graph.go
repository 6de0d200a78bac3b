package migration

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Key identifies a migration within its app.
type Key struct {
	App  string
	Name string
}

func (k Key) String() string { return k.App + "/" + k.Name }

// Ordinal is the numeric prefix of the migration name, e.g. 45 for
// "0045_workgroup_chat". Names without one sort first.
func (k Key) Ordinal() int {
	end := 0
	for end < len(k.Name) && k.Name[end] >= '0' && k.Name[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(k.Name[:end])
	if err != nil {
		return 0
	}
	return n
}

// ParseKey reads "app/name".
func ParseKey(s string) (Key, error) {
	app, name, ok := strings.Cut(s, "/")
	if !ok || app == "" || name == "" {
		return Key{}, fmt.Errorf("invalid migration key %q, want app/name", s)
	}
	return Key{App: app, Name: name}, nil
}

// Migration is an atomic, ordered list of operations.
type Migration struct {
	App          string
	Name         string
	Dependencies []Key
	Operations   []Operation
}

func (m *Migration) Key() Key { return Key{App: m.App, Name: m.Name} }

// Graph is the validated dependency graph of every known migration.
type Graph struct {
	nodes    map[Key]*Migration
	children map[Key][]Key
	order    []Key
	position map[Key]int
}

// NewGraph validates the migration set and computes its total order.
func NewGraph(migrations []*Migration) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[Key]*Migration, len(migrations)),
		children: make(map[Key][]Key),
		position: make(map[Key]int, len(migrations)),
	}
	for _, m := range migrations {
		k := m.Key()
		if _, dup := g.nodes[k]; dup {
			return nil, fmt.Errorf("%w: duplicate migration %s", ErrInvalidGraph, k)
		}
		g.nodes[k] = m
	}

	inDegree := make(map[Key]int, len(g.nodes))
	for k, m := range g.nodes {
		inDegree[k] += 0
		for _, dep := range m.Dependencies {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on unknown migration %s", ErrInvalidGraph, k, dep)
			}
			g.children[dep] = append(g.children[dep], k)
			inDegree[k]++
		}
	}

	var ready []Key
	for k, d := range inDegree {
		if d == 0 {
			ready = append(ready, k)
		}
	}
	for len(ready) > 0 {
		slices.SortFunc(ready, compareKeys)
		next := ready[0]
		ready = ready[1:]
		g.position[next] = len(g.order)
		g.order = append(g.order, next)
		for _, child := range g.children[next] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(g.order) != len(g.nodes) {
		var stuck []string
		for k, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, k.String())
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("%w: dependency cycle among %s", ErrInvalidGraph, strings.Join(stuck, ", "))
	}
	return g, nil
}

func compareKeys(a, b Key) int {
	return cmp.Or(
		cmp.Compare(a.Ordinal(), b.Ordinal()),
		cmp.Compare(a.App, b.App),
		cmp.Compare(a.Name, b.Name),
	)
}

// Order returns every migration key in execution order.
func (g *Graph) Order() []Key {
	return slices.Clone(g.order)
}

func (g *Graph) Migration(k Key) (*Migration, bool) {
	m, ok := g.nodes[k]
	return m, ok
}

// Ancestors returns the transitive dependencies of k in execution order.
func (g *Graph) Ancestors(k Key) []Key {
	seen := map[Key]bool{}
	var walk func(Key)
	walk = func(cur Key) {
		for _, dep := range g.nodes[cur].Dependencies {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(k)
	return g.sorted(seen)
}

// Descendants returns every migration that transitively depends on k, in
// execution order.
func (g *Graph) Descendants(k Key) []Key {
	seen := map[Key]bool{}
	var walk func(Key)
	walk = func(cur Key) {
		for _, child := range g.children[cur] {
			if !seen[child] {
				seen[child] = true
				walk(child)
			}
		}
	}
	walk(k)
	return g.sorted(seen)
}

// AppKeys returns the migrations of one app in execution order.
func (g *Graph) AppKeys(app string) []Key {
	var out []Key
	for _, k := range g.order {
		if k.App == app {
			out = append(out, k)
		}
	}
	return out
}

func (g *Graph) sorted(set map[Key]bool) []Key {
	out := make([]Key, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b Key) int {
		return cmp.Compare(g.position[a], g.position[b])
	})
	return out
}

// StateBefore replays the ancestors of k and returns the schema k starts
// from.
func (g *Graph) StateBefore(k Key) (*State, error) {
	s := NewState()
	for _, anc := range g.Ancestors(k) {
		for _, op := range g.nodes[anc].Operations {
			if err := op.StateForward(s); err != nil {
				return nil, &MigrationError{Key: anc, Op: op.Describe(), Err: err}
			}
		}
	}
	return s, nil
}

// StateAt replays every migration in the given set, in execution order.
func (g *Graph) StateAt(keys []Key) (*State, error) {
	set := make(map[Key]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	s := NewState()
	for _, k := range g.sorted(set) {
		for _, op := range g.nodes[k].Operations {
			if err := op.StateForward(s); err != nil {
				return nil, &MigrationError{Key: k, Op: op.Describe(), Err: err}
			}
		}
	}
	return s, nil
}
