package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/manifest"
)

func writeRecipe(t *testing.T, portsDir, relDir, name string) {
	t.Helper()
	writeRecipeWithDeps(t, portsDir, relDir, name, nil)
}

func writeRecipeWithDeps(t *testing.T, portsDir, relDir, name string, runDeps []string) {
	t.Helper()
	dir := filepath.Join(portsDir, relDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := "name: " + name + "\nversion: \"1.0\"\n"
	if len(runDeps) > 0 {
		body += "depends:\n  run: [\"" + strings.Join(runDeps, "\", \"") + "\"]\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644))
}

func TestFindRecipeLocatesNestedFile(t *testing.T) {
	ports := t.TempDir()
	writeRecipe(t, ports, "core/zlib", "zlib")

	path, err := findRecipe(ports, "zlib")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ports, "core", "zlib", "zlib.yaml"), path)
}

func TestFindRecipeMissingReturnsError(t *testing.T) {
	ports := t.TempDir()
	_, err := findRecipe(ports, "nope")
	require.Error(t, err)
}

func TestLoadMetafilesResolvesEach(t *testing.T) {
	ports := t.TempDir()
	writeRecipe(t, ports, "a", "alpha")
	writeRecipe(t, ports, "b", "beta")

	metafiles, err := loadMetafiles(ports, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, metafiles, 2)
	require.Equal(t, "alpha-1.0", metafiles[0].ID())
	require.Equal(t, "beta-1.0", metafiles[1].ID())
}

func TestLoadMetafilesPropagatesNotFound(t *testing.T) {
	ports := t.TempDir()
	_, err := loadMetafiles(ports, []string{"missing"})
	require.Error(t, err)
}

func TestResolveDependencyClosurePullsInTransitiveDeps(t *testing.T) {
	ports := t.TempDir()
	writeRecipeWithDeps(t, ports, "a", "alpha", []string{"beta"})
	writeRecipeWithDeps(t, ports, "b", "beta", []string{"gamma"})
	writeRecipe(t, ports, "c", "gamma")

	roots, err := loadMetafiles(ports, []string{"alpha"})
	require.NoError(t, err)

	graph := depgraph.Build(nil)
	closure, err := resolveDependencyClosure(ports, graph, roots)
	require.NoError(t, err)

	var names []string
	for _, m := range closure {
		names = append(names, m.Name)
	}
	require.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, names)

	order, err := graph.Order("alpha", depgraph.OrderOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"gamma", "beta", "alpha"}, order)
}

func TestResolveDependencyClosureSkipsAlreadyInstalledDeps(t *testing.T) {
	ports := t.TempDir()
	writeRecipeWithDeps(t, ports, "a", "alpha", []string{"beta"})

	roots, err := loadMetafiles(ports, []string{"alpha"})
	require.NoError(t, err)

	graph := depgraph.Build([]manifest.IndexEntry{{Name: "beta", Version: "1.0"}})
	closure, err := resolveDependencyClosure(ports, graph, roots)
	require.NoError(t, err)
	require.Len(t, closure, 1)
	require.Equal(t, "alpha", closure[0].Name)
}

func TestResolveDependencyClosurePropagatesMissingDependency(t *testing.T) {
	ports := t.TempDir()
	writeRecipeWithDeps(t, ports, "a", "alpha", []string{"nope"})

	roots, err := loadMetafiles(ports, []string{"alpha"})
	require.NoError(t, err)

	graph := depgraph.Build(nil)
	_, err = resolveDependencyClosure(ports, graph, roots)
	require.Error(t, err)
}
