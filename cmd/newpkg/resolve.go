package main

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/metafile"
)

// findRecipe walks portsDir recursively for a "<name>.yaml" file.
func findRecipe(portsDir, name string) (string, error) {
	var found string
	err := filepath.WalkDir(portsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Base(p) == name+".yaml" {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("recipe %q not found under %s", name, portsDir)
	}
	return found, nil
}

// loadMetafiles resolves and parses one metafile per name.
func loadMetafiles(portsDir string, names []string) ([]*metafile.Metafile, error) {
	out := make([]*metafile.Metafile, 0, len(names))
	for _, n := range names {
		path, err := findRecipe(portsDir, n)
		if err != nil {
			return nil, err
		}
		m, err := metafile.Load(path)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// resolveDependencyClosure adds every root metafile to graph, then walks
// each root's Depends recursively, loading and adding any dependency not
// already satisfied by a vertex already in the graph (installed, or pulled
// in earlier in this same walk). Returns every metafile it loaded,
// deduplicated by name, in depth-first visit order: each root comes before
// the dependencies it pulled in, and those come before the next root.
func resolveDependencyClosure(portsDir string, graph *depgraph.Graph, roots []*metafile.Metafile) ([]*metafile.Metafile, error) {
	var out []*metafile.Metafile
	seen := map[string]bool{}

	var walk func(m *metafile.Metafile) error
	walk = func(m *metafile.Metafile) error {
		if seen[m.Name] {
			return nil
		}
		seen[m.Name] = true
		deps := append(append([]string{}, m.Depends.Build...), m.Depends.Run...)
		graph.AddTarget(depgraph.Vertex{Name: m.Name, Version: m.Version, Provides: m.Provides, Depends: deps})
		out = append(out, m)

		for _, dep := range deps {
			name := depgraph.BareName(dep)
			if _, ok := graph.Resolve(name); ok {
				continue
			}
			path, err := findRecipe(portsDir, name)
			if err != nil {
				return fmt.Errorf("resolving dependency %q of %s: %w", name, m.Name, err)
			}
			dm, err := metafile.Load(path)
			if err != nil {
				return err
			}
			if err := walk(dm); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range roots {
		if err := walk(m); err != nil {
			return nil, err
		}
	}
	return out, nil
}
