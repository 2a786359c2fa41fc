package depgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fcanata00/newpkg/internal/fsutil"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

var (
	errNotFoundInGraph = errors.New("package not present in graph")
	errUnsatisfied     = errors.New("dependency unsatisfied by any vertex or provides")
)

// cacheFile is the on-disk JSON cache of a Graph snapshot.
type cacheFile struct {
	Vertices []Vertex `json:"vertices"`
}

// Sync rebuilds the graph from the manifest store's current index entries
// and overwrites the cache file at path with it. The previous cache is not
// read, so the store always wins: nothing from an older cache survives.
func Sync(path string, entries []manifest.IndexEntry) (*Graph, error) {
	g := Build(entries)
	if err := writeCache(path, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Load reads a previously written cache file without consulting the store.
// Callers that need the store's current truth should call Sync instead;
// Load exists for offline inspection of a written cache.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap("depgraph.load", pkgerrors.KindIO, path, err)
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, pkgerrors.Wrap("depgraph.load", pkgerrors.KindMalformed, path, err)
	}
	g := &Graph{vertices: make(map[string]Vertex), provides: make(map[string]string)}
	for _, v := range cf.Vertices {
		g.AddTarget(v)
	}
	return g, nil
}

func writeCache(path string, g *Graph) error {
	names := make([]string, 0, len(g.vertices))
	for n := range g.vertices {
		names = append(names, n)
	}
	sort.Strings(names)
	cf := cacheFile{Vertices: make([]Vertex, 0, len(names))}
	for _, n := range names {
		cf.Vertices = append(cf.Vertices, g.vertices[n])
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return pkgerrors.Wrap("depgraph.sync", pkgerrors.KindIO, path, err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return pkgerrors.Wrap("depgraph.sync", pkgerrors.KindIO, path, err)
	}
	return nil
}

// ExportFormat selects the rendering used by Export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportDOT  ExportFormat = "dot"
)

// Export renders the whole graph as JSON or Graphviz DOT.
func (g *Graph) Export(format ExportFormat) (string, error) {
	switch format {
	case ExportJSON:
		names := make([]string, 0, len(g.vertices))
		for n := range g.vertices {
			names = append(names, n)
		}
		sort.Strings(names)
		out := make([]Vertex, 0, len(names))
		for _, n := range names {
			out = append(out, g.vertices[n])
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", pkgerrors.Wrap("depgraph.export", pkgerrors.KindIO, "", err)
		}
		return string(data), nil
	case ExportDOT:
		var b strings.Builder
		b.WriteString("digraph newpkg {\n")
		names := make([]string, 0, len(g.vertices))
		for n := range g.vertices {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			v := g.vertices[n]
			deps := append([]string{}, v.Depends...)
			sort.Strings(deps)
			for _, dep := range deps {
				target, ok := g.resolveTarget(dep)
				if !ok {
					target = dep
				}
				fmt.Fprintf(&b, "  %q -> %q;\n", n, target)
			}
		}
		b.WriteString("}\n")
		return b.String(), nil
	default:
		return "", pkgerrors.New("depgraph.export", pkgerrors.KindUsage)
	}
}
