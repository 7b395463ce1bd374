// Package importer resolves `import` directives: instrument libraries pulled
// from local files or remote URLs, merged into the song's instrument map
// under the security constraints of the import contract.
package importer

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kadraman/beatbax/internal/lang"
)

// ImportError is a fatal import failure.
type ImportError struct {
	URL     string
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import %q: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("import %q: %s", e.URL, e.Message)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Options bound what imports are allowed to do.
type Options struct {
	AllowedSchemes []string      // defaults to local, file, https, github
	HTTPSOnly      bool          // refuse plain http targets
	MaxFileSize    int64         // bytes; defaults to 64 KiB
	Timeout        time.Duration // per-fetch; defaults to 10 s
}

func (o Options) withDefaults() Options {
	if len(o.AllowedSchemes) == 0 {
		o.AllowedSchemes = []string{"local", "file", "https", "github"}
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = 64 * 1024
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// Fetcher retrieves remote import targets. The default uses net/http; tests
// substitute their own.
type Fetcher interface {
	Fetch(url string, maxSize int64, timeout time.Duration) ([]byte, error)
}

type httpFetcher struct{}

func (httpFetcher) Fetch(url string, maxSize int64, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file exceeds %d byte limit", maxSize)
	}
	return data, nil
}

type cacheEntry struct {
	data      []byte
	fetchedAt time.Time
}

// Resolver resolves imports for one song load, caching fetches by normalized
// URL and detecting reference cycles.
type Resolver struct {
	opts    Options
	fetcher Fetcher
	cache   map[string]cacheEntry
}

// New returns a resolver with the given options.
func New(opts Options) *Resolver {
	return &Resolver{
		opts:    opts.withDefaults(),
		fetcher: httpFetcher{},
		cache:   make(map[string]cacheEntry),
	}
}

// SetFetcher overrides the remote fetcher (tests).
func (r *Resolver) SetFetcher(f Fetcher) { r.fetcher = f }

// Resolve merges every import of the AST into ast.Insts. basePath is the
// directory of the importing source file; nested local imports resolve
// relative to the file that declares them.
func (r *Resolver) Resolve(ast *lang.AST, basePath string) error {
	return r.resolveAll(ast, basePath, nil)
}

func (r *Resolver) resolveAll(ast *lang.AST, basePath string, path []string) error {
	for _, imp := range ast.Imports {
		if err := r.resolveOne(ast, imp, basePath, path); err != nil {
			return err
		}
	}
	return nil
}

// resolveAllNested resolves a fetched file's own imports relative to it.
func (r *Resolver) resolveAllNested(ast *lang.AST, basePath string, path []string) error {
	return r.resolveAll(ast, basePath, path)
}

func (r *Resolver) resolveOne(ast *lang.AST, imp lang.ImportDecl, basePath string, path []string) error {
	scheme, target, err := splitURL(imp.URL)
	if err != nil {
		return &ImportError{URL: imp.URL, Message: "malformed import URL", Err: err}
	}
	if !r.schemeAllowed(scheme) {
		return &ImportError{URL: imp.URL, Message: fmt.Sprintf("scheme %q is not allowed", scheme)}
	}

	normalized, remote := r.normalize(scheme, target, basePath)
	for _, seen := range path {
		if seen == normalized {
			return &ImportError{URL: imp.URL, Message: "import cycle: " + strings.Join(append(append([]string{}, path...), normalized), " -> ")}
		}
	}

	data, err := r.fetch(normalized, remote)
	if err != nil {
		return &ImportError{URL: imp.URL, Message: "fetch failed", Err: err}
	}

	sub, err := lang.Parse(string(data))
	if err != nil {
		return &ImportError{URL: imp.URL, Message: "parse failed", Err: err}
	}

	if err := checkInstOnly(sub, remote); err != nil {
		return &ImportError{URL: imp.URL, Message: err.Error()}
	}

	// Nested local imports resolve relative to the importing file.
	if len(sub.Imports) > 0 {
		nestedBase := filepath.Dir(normalized)
		if err := r.resolveAllNested(sub, nestedBase, append(path, normalized)); err != nil {
			return err
		}
	}

	merged := 0
	for name, in := range sub.Insts {
		if _, exists := ast.Insts[name]; exists {
			log.Printf("[IMPORT] instrument %q from %s shadows an existing definition", name, imp.URL)
		}
		ast.Insts[name] = in
		merged++
	}
	log.Printf("[IMPORT] merged %d instruments from %s", merged, imp.URL)
	return nil
}

// checkInstOnly enforces the import content contract: imported files may only
// declare instruments; local files may additionally declare further imports.
func checkInstOnly(ast *lang.AST, remote bool) error {
	if len(ast.Pats) > 0 || len(ast.Seqs) > 0 || len(ast.Channels) > 0 || ast.Play != nil || len(ast.Exports) > 0 {
		return fmt.Errorf("imported file may only contain inst declarations")
	}
	if remote && len(ast.Imports) > 0 {
		return fmt.Errorf("remote imports must not contain nested imports")
	}
	return nil
}

func (r *Resolver) schemeAllowed(scheme string) bool {
	for _, s := range r.opts.AllowedSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// normalize maps an import target onto either an absolute local path or a
// fetchable URL. github:user/repo/path resolves against raw.githubusercontent.
func (r *Resolver) normalize(scheme, target, basePath string) (normalized string, remote bool) {
	switch scheme {
	case "local", "file":
		if filepath.IsAbs(target) {
			return filepath.Clean(target), false
		}
		return filepath.Clean(filepath.Join(basePath, target)), false
	case "github":
		return "https://raw.githubusercontent.com/" + strings.TrimPrefix(target, "/") + "?raw=true", true
	default: // https
		return "https://" + strings.TrimPrefix(target, "//"), true
	}
}

func (r *Resolver) fetch(normalized string, remote bool) ([]byte, error) {
	if entry, ok := r.cache[normalized]; ok {
		log.Printf("[IMPORT] cache hit for %s (fetched %s)", normalized, entry.fetchedAt.Format(time.RFC3339))
		return entry.data, nil
	}

	var data []byte
	var err error
	if remote {
		if r.opts.HTTPSOnly && !strings.HasPrefix(normalized, "https://") {
			return nil, fmt.Errorf("https-only mode refuses %s", normalized)
		}
		data, err = r.fetcher.Fetch(normalized, r.opts.MaxFileSize, r.opts.Timeout)
	} else {
		var info os.FileInfo
		info, err = os.Stat(normalized)
		if err == nil && info.Size() > r.opts.MaxFileSize {
			return nil, fmt.Errorf("file exceeds %d byte limit", r.opts.MaxFileSize)
		}
		if err == nil {
			data, err = os.ReadFile(normalized)
		}
	}
	if err != nil {
		return nil, err
	}

	r.cache[normalized] = cacheEntry{data: data, fetchedAt: time.Now()}
	return data, nil
}

func splitURL(url string) (scheme, target string, err error) {
	idx := strings.Index(url, ":")
	if idx <= 0 {
		// A bare path is treated as a local import.
		if url == "" {
			return "", "", fmt.Errorf("empty import URL")
		}
		return "local", url, nil
	}
	return url[:idx], url[idx+1:], nil
}
