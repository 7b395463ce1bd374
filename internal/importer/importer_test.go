package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadraman/beatbax/internal/lang"
)

// fakeFetcher serves canned remote files and counts fetches.
type fakeFetcher struct {
	files   map[string]string
	fetches map[string]int
}

func (f *fakeFetcher) Fetch(url string, maxSize int64, timeout time.Duration) ([]byte, error) {
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	f.fetches[url]++
	body, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("file exceeds %d byte limit", maxSize)
	}
	return []byte(body), nil
}

func parseWithImport(t *testing.T, imports ...string) *lang.AST {
	t.Helper()
	src := ""
	for _, imp := range imports {
		src += fmt.Sprintf("import %q\n", imp)
	}
	ast, err := lang.Parse(src)
	require.NoError(t, err)
	return ast
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const instFile = "inst kit808 type=noise env=gb:12,down,1\n"

func TestLocalImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "kit.ins", instFile)

	ast := parseWithImport(t, "local:kit.ins")
	r := New(Options{})
	require.NoError(t, r.Resolve(ast, dir))
	assert.Contains(t, ast.Insts, "kit808")
}

func TestNestedLocalImportsResolveRelatively(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "kits")
	require.NoError(t, os.MkdirAll(sub, 0755))

	// outer imports kits/inner.ins, which imports deep.ins relative to
	// ITSELF, not the original file.
	writeFile(t, dir, "outer.ins", "import \"local:kits/inner.ins\"\n")
	writeFile(t, sub, "inner.ins", "import \"local:deep.ins\"\ninst a type=pulse1 duty=50 env=gb:12,down,1\n")
	writeFile(t, sub, "deep.ins", "inst b type=pulse2 duty=25 env=gb:12,down,1\n")

	ast := parseWithImport(t, "local:outer.ins")
	r := New(Options{})
	require.NoError(t, r.Resolve(ast, dir))
	assert.Contains(t, ast.Insts, "a")
	assert.Contains(t, ast.Insts, "b")
}

func TestImportCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ins", "import \"local:b.ins\"\n")
	writeFile(t, dir, "b.ins", "import \"local:a.ins\"\n")

	ast := parseWithImport(t, "local:a.ins")
	r := New(Options{})
	err := r.Resolve(ast, dir)
	require.Error(t, err)
	var ierr *ImportError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, ierr.Message, "cycle")
	assert.Contains(t, ierr.Message, "a.ins")
}

func TestSchemeAllowList(t *testing.T) {
	ast := parseWithImport(t, "ftp:stuff.ins")
	r := New(Options{})
	err := r.Resolve(ast, ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestRemoteImport(t *testing.T) {
	ast := parseWithImport(t, "https://example.com/kit.ins")
	r := New(Options{})
	r.SetFetcher(&fakeFetcher{files: map[string]string{
		"https://example.com/kit.ins": instFile,
	}})
	require.NoError(t, r.Resolve(ast, "."))
	assert.Contains(t, ast.Insts, "kit808")
}

func TestGithubSchemeNormalization(t *testing.T) {
	ast := parseWithImport(t, "github:user/repo/kits/808.ins")
	f := &fakeFetcher{files: map[string]string{
		"https://raw.githubusercontent.com/user/repo/kits/808.ins?raw=true": instFile,
	}}
	r := New(Options{})
	r.SetFetcher(f)
	require.NoError(t, r.Resolve(ast, "."))
	assert.Contains(t, ast.Insts, "kit808")
}

func TestRemoteNestedImportsForbidden(t *testing.T) {
	ast := parseWithImport(t, "https://example.com/kit.ins")
	r := New(Options{})
	r.SetFetcher(&fakeFetcher{files: map[string]string{
		"https://example.com/kit.ins": "import \"https://example.com/more.ins\"\n" + instFile,
	}})
	err := r.Resolve(ast, ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested imports")
}

func TestImportRejectsNonInstContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.ins", "pat p = C4\n")

	ast := parseWithImport(t, "local:bad.ins")
	r := New(Options{})
	err := r.Resolve(ast, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only contain inst")
}

func TestImportSizeLimit(t *testing.T) {
	dir := t.TempDir()
	big := instFile
	for len(big) < 200 {
		big += "# padding padding padding\n"
	}
	writeFile(t, dir, "big.ins", big)

	ast := parseWithImport(t, "local:big.ins")
	r := New(Options{MaxFileSize: 100})
	err := r.Resolve(ast, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestImportCachedByURL(t *testing.T) {
	f := &fakeFetcher{files: map[string]string{
		"https://example.com/kit.ins": instFile,
	}}
	r := New(Options{})
	r.SetFetcher(f)

	ast := parseWithImport(t, "https://example.com/kit.ins", "https://example.com/kit.ins")
	require.NoError(t, r.Resolve(ast, "."))
	assert.Equal(t, 1, f.fetches["https://example.com/kit.ins"])
}

func TestImportFileNotFound(t *testing.T) {
	ast := parseWithImport(t, "local:nope.ins")
	r := New(Options{})
	err := r.Resolve(ast, t.TempDir())
	require.Error(t, err)
	var ierr *ImportError
	assert.ErrorAs(t, err, &ierr)
}

func TestMalformedImportParseFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.ins", "inst x type=\n")

	ast := parseWithImport(t, "local:broken.ins")
	r := New(Options{})
	err := r.Resolve(ast, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse failed")
}
