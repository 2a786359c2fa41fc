package depgraph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

func sampleEntries() []manifest.IndexEntry {
	return []manifest.IndexEntry{
		{Name: "zlib", Version: "1.3", Provides: []string{"libz"}},
		{Name: "openssl", Version: "3.0", Depends: manifest.Depends{Build: []string{"zlib>=1.2"}}},
		{Name: "curl", Version: "8.0", Depends: manifest.Depends{Run: []string{"openssl", "libz"}}},
	}
}

func TestOrderTopologicalForLinearChain(t *testing.T) {
	g := Build(sampleEntries())
	order, err := g.Order("curl", OrderOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"zlib", "openssl", "curl"}, order)
}

func TestOrderDetectsCycle(t *testing.T) {
	entries := []manifest.IndexEntry{
		{Name: "a", Depends: manifest.Depends{Run: []string{"b"}}},
		{Name: "b", Depends: manifest.Depends{Run: []string{"a"}}},
	}
	g := Build(entries)
	_, err := g.Order("a", OrderOptions{})
	var cyc *pkgerrors.Cycle
	require.ErrorAs(t, err, &cyc)
}

func TestOrderSkipsInstalled(t *testing.T) {
	g := Build(sampleEntries())
	order, err := g.Order("curl", OrderOptions{SkipInstalled: map[string]bool{"zlib": true}})
	require.NoError(t, err)
	require.Equal(t, []string{"openssl", "curl"}, order)
}

func TestRevdepsAndOrphans(t *testing.T) {
	g := Build(sampleEntries())
	// curl counts too: it depends on "libz", which zlib provides.
	require.Equal(t, []string{"curl", "openssl"}, g.Revdeps("zlib"))

	orphans := g.Orphans(nil)
	require.Equal(t, []string{"curl"}, orphans)
}

func TestRebuildClosure(t *testing.T) {
	g := Build(sampleEntries())
	require.ElementsMatch(t, []string{"openssl", "curl"}, g.Rebuild("zlib"))
}

func TestMissingDependency(t *testing.T) {
	entries := []manifest.IndexEntry{
		{Name: "app", Depends: manifest.Depends{Run: []string{"libfoo>=2.0"}}},
	}
	g := Build(entries)
	require.Equal(t, []string{"libfoo"}, g.Missing("app"))
}

func TestSyncAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depgraph.json")
	g, err := Sync(path, sampleEntries())
	require.NoError(t, err)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	order, err := reloaded.Order("curl", OrderOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"zlib", "openssl", "curl"}, order)
	_ = g
}

func TestExportDOTAndJSON(t *testing.T) {
	g := Build(sampleEntries())
	dot, err := g.Export(ExportDOT)
	require.NoError(t, err)
	require.Contains(t, dot, "digraph newpkg")

	j, err := g.Export(ExportJSON)
	require.NoError(t, err)
	require.Contains(t, j, "curl")
}
