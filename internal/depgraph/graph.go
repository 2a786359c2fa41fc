// Package depgraph implements a directed graph over installed package
// names (and the provides they satisfy), used to compute install order,
// reverse dependencies, orphans, and rebuild closures.
package depgraph

import (
	"sort"
	"strings"

	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Vertex is one node in the graph: an installed (or about-to-be-installed)
// package identity plus what it provides and depends on.
type Vertex struct {
	Name     string
	Version  string
	Provides []string
	Depends  []string // build ∪ run, bare names only (predicates stripped)
}

// Graph is a snapshot of the dependency relation over a set of vertices.
type Graph struct {
	vertices map[string]Vertex // by name
	provides map[string]string // provided name -> providing package name
}

// Build constructs a Graph from manifest index entries, the form both the
// Manifest Store and a resolved metafile set can supply.
func Build(entries []manifest.IndexEntry) *Graph {
	g := &Graph{
		vertices: make(map[string]Vertex, len(entries)),
		provides: make(map[string]string),
	}
	for _, e := range entries {
		v := Vertex{
			Name:     e.Name,
			Version:  e.Version,
			Provides: append([]string{}, e.Provides...),
			Depends:  bareNames(append(append([]string{}, e.Depends.Build...), e.Depends.Run...)),
		}
		g.vertices[e.Name] = v
		for _, p := range e.Provides {
			g.provides[p] = e.Name
		}
	}
	return g
}

func bareNames(toks []string) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, bareName(t))
	}
	return out
}

func bareName(tok string) string {
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<", "="} {
		if idx := strings.Index(tok, op); idx > 0 {
			return strings.TrimSpace(tok[:idx])
		}
	}
	return strings.TrimSpace(tok)
}

// resolveTarget finds the vertex name that satisfies dep, either directly
// or via provides. Returns ok=false if nothing in the graph satisfies it.
func (g *Graph) resolveTarget(dep string) (string, bool) {
	if _, ok := g.vertices[dep]; ok {
		return dep, true
	}
	if provider, ok := g.provides[dep]; ok {
		return provider, true
	}
	return "", false
}

// Resolve exposes resolveTarget for callers outside the package that need
// to know whether a dependency token is already satisfied by a vertex in
// the graph (name or provides) before pulling in its recipe.
func (g *Graph) Resolve(dep string) (string, bool) {
	return g.resolveTarget(dep)
}

// BareName strips a version predicate off a dependency token, e.g.
// "zlib>=1.2" -> "zlib".
func BareName(tok string) string {
	return bareName(tok)
}

// AddTarget inserts an extra vertex (e.g. the metafile currently being
// resolved for install, which may not be in the store yet). Version
// predicates in v.Depends are stripped, as in Build.
func (g *Graph) AddTarget(v Vertex) {
	v.Depends = bareNames(v.Depends)
	g.vertices[v.Name] = v
	for _, p := range v.Provides {
		g.provides[p] = v.Name
	}
}

// OrderOptions configures Order.
type OrderOptions struct {
	SkipInstalled map[string]bool
}

// Order returns the topological order (leaves first) of target's
// dependency closure, tie-broken lexicographically on name. Returns a
// *pkgerrors.Cycle wrapped error if any strongly connected component of
// size > 1 is found.
func (g *Graph) Order(target string, opts OrderOptions) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var order []string
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			cycle := append(append([]string{}, stack...), name)
			return &pkgerrors.Cycle{Members: cycle}
		}
		color[name] = gray
		stack = append(stack, name)

		v, ok := g.vertices[name]
		if !ok {
			return pkgerrors.Wrap("depgraph.order", pkgerrors.KindDependency, name, errNotFoundInGraph)
		}
		deps := append([]string{}, v.Depends...)
		sort.Strings(deps)
		for _, dep := range deps {
			depName, ok := g.resolveTarget(dep)
			if !ok {
				return pkgerrors.Wrap("depgraph.order", pkgerrors.KindDependency, dep, errUnsatisfied)
			}
			if opts.SkipInstalled != nil && opts.SkipInstalled[depName] {
				continue
			}
			if err := visit(depName); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		if opts.SkipInstalled == nil || !opts.SkipInstalled[name] {
			order = append(order, name)
		}
		return nil
	}
	if err := visit(target); err != nil {
		return nil, err
	}
	return order, nil
}

// Revdeps returns the direct dependents of name: vertices whose Depends
// (after provides resolution) names it. Indirect ancestors are not
// included; Rebuild walks Revdeps into the full ancestor closure.
func (g *Graph) Revdeps(name string) []string {
	var out []string
	for vName, v := range g.vertices {
		for _, dep := range v.Depends {
			depName, ok := g.resolveTarget(dep)
			if ok && depName == name {
				out = append(out, vName)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Orphans returns vertices with zero in-degree. If explicit is non-nil,
// only vertices absent from it are eligible.
func (g *Graph) Orphans(explicit map[string]bool) []string {
	indegree := map[string]int{}
	for name := range g.vertices {
		indegree[name] = 0
	}
	for _, v := range g.vertices {
		for _, dep := range v.Depends {
			if depName, ok := g.resolveTarget(dep); ok {
				indegree[depName]++
			}
		}
	}
	var out []string
	for name, deg := range indegree {
		if deg != 0 {
			continue
		}
		if explicit != nil && explicit[name] {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Rebuild returns the revdep closure of name: every ancestor, transitively,
// that should be marked for rebuild.
func (g *Graph) Rebuild(name string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, anc := range g.Revdeps(n) {
			if !seen[anc] {
				seen[anc] = true
				walk(anc)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Missing returns the subset of target's dependency closure that is not
// present in the graph at all (i.e. unsatisfied even by provides).
func (g *Graph) Missing(target string) []string {
	seen := map[string]bool{}
	var missing []string
	var walk func(string)
	walk = func(name string) {
		v, ok := g.vertices[name]
		if !ok {
			return
		}
		for _, dep := range v.Depends {
			depName, ok := g.resolveTarget(dep)
			if !ok {
				if !seen[dep] {
					seen[dep] = true
					missing = append(missing, dep)
				}
				continue
			}
			if !seen[depName] {
				seen[depName] = true
				walk(depName)
			}
		}
	}
	walk(target)
	sort.Strings(missing)
	return missing
}
