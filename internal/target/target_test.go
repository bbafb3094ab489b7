package target

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram/local"
)

func TestIsActive(t *testing.T) {
	for _, ref := range []string{"active", "ACTIVE", " Active "} {
		assert.True(t, IsActive(ref), ref)
	}
	for _, ref := range []string{"", "activex", "/tmp/active"} {
		assert.False(t, IsActive(ref), ref)
	}
}

func TestNormalizePathWindows(t *testing.T) {
	r := &Resolver{Style: Windows}
	tests := []struct {
		in   string
		want string
	}{
		{"visio-files/plan.vsdx", `C:\visio-files\plan.vsdx`},
		{"/visio-files/plan.vsdx", `C:\visio-files\plan.vsdx`},
		{`D:\work\plan.vsdx`, `D:\work\plan.vsdx`},
		{"D:/work/plan.vsdx", `D:\work\plan.vsdx`},
		{`\\server\share\plan.vsdx`, `\\server\share\plan.vsdx`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.NormalizePath(tt.in), tt.in)
	}

	r.DefaultDrive = "E:"
	assert.Equal(t, `E:\plan.vsdx`, r.NormalizePath("plan.vsdx"))
}

func TestNormalizePathPosix(t *testing.T) {
	r := &Resolver{Style: Posix}
	assert.Equal(t, "/tmp/a/plan.vsdx", r.NormalizePath(`\tmp\a\plan.vsdx`))
	assert.Equal(t, "/plan.vsdx", r.NormalizePath("plan.vsdx"))
	assert.Equal(t, "/tmp/plan.vsdx", r.NormalizePath("/tmp/./x/../plan.vsdx"))
}

func TestLocateRetriesUnderWorkDir(t *testing.T) {
	present := map[string]bool{`C:\visio-files\plan.vsdx`: true}
	r := &Resolver{
		Style:   Windows,
		WorkDir: `C:\visio-files`,
		Stat: func(p string) (fs.FileInfo, error) {
			if present[p] {
				return nil, nil
			}
			return nil, fs.ErrNotExist
		},
	}

	got, err := r.Locate("plan.vsdx")
	require.NoError(t, err)
	assert.Equal(t, `C:\visio-files\plan.vsdx`, got)

	_, err = r.Locate(`D:\elsewhere\plan.vsdx`)
	assert.Equal(t, diagerr.FileNotFound, diagerr.CodeOf(err))
}

func TestResolveActiveWithNothingOpen(t *testing.T) {
	r := &Resolver{Engine: local.New(local.Options{})}
	_, err := r.Resolve("active")
	require.Error(t, err)
	assert.Equal(t, diagerr.NoActiveDocument, diagerr.CodeOf(err))
}

func TestResolveActiveWithOnlyStencils(t *testing.T) {
	e := local.New(local.Options{})
	_, err := e.OpenStencil("Basic_U.vss")
	require.NoError(t, err)

	r := &Resolver{Engine: e}
	_, err = r.Resolve("Active")
	assert.Equal(t, diagerr.NoActiveDocument, diagerr.CodeOf(err))
}

func newSavedDrawing(t *testing.T, dir, name string) string {
	t.Helper()
	e := local.New(local.Options{})
	d, err := e.Add("")
	require.NoError(t, err)
	p := filepath.Join(dir, name)
	require.NoError(t, d.SaveAs(p))
	require.NoError(t, d.Close())
	return p
}

func TestResolvePathOwnership(t *testing.T) {
	dir := t.TempDir()
	p := newSavedDrawing(t, dir, "plan.vsdx")

	e := local.New(local.Options{})
	r := &Resolver{Engine: e, Style: Posix}

	tgt, err := r.Resolve(p)
	require.NoError(t, err)
	assert.True(t, tgt.Owned)
	assert.False(t, tgt.Active)
	assert.Len(t, e.Documents(), 1)

	again, err := r.Resolve(p)
	require.NoError(t, err)
	assert.False(t, again.Owned, "already-open documents are not owned")
	require.NoError(t, again.Release(true))
	assert.Len(t, e.Documents(), 1)

	require.NoError(t, tgt.Release(false))
	assert.Empty(t, e.Documents())

	active, err := func() (*Target, error) {
		_, err := e.Add("")
		require.NoError(t, err)
		return r.Resolve("active")
	}()
	require.NoError(t, err)
	assert.True(t, active.Active)
	require.NoError(t, active.Release(true))
	assert.Len(t, e.Documents(), 1, "active documents are never closed")
}

func TestResolveMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	r := &Resolver{Engine: local.New(local.Options{}), Style: Posix}

	_, err := r.Resolve(filepath.Join(dir, "nope.vsdx"))
	assert.Equal(t, diagerr.FileNotFound, diagerr.CodeOf(err))

	bad := filepath.Join(dir, "bad.vsdx")
	require.NoError(t, os.WriteFile(bad, []byte("::: not yaml :::\n\t- ["), 0o644))
	_, err = r.Resolve(bad)
	assert.Equal(t, diagerr.DocumentOpenFailed, diagerr.CodeOf(err))
}

func TestResolveRelativeUnderWorkDir(t *testing.T) {
	dir := t.TempDir()
	newSavedDrawing(t, dir, "rel.vsdx")

	r := &Resolver{Engine: local.New(local.Options{}), Style: Posix, WorkDir: dir}
	tgt, err := r.Resolve("rel.vsdx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rel.vsdx"), tgt.Path)
	assert.True(t, tgt.Owned)
}
