// Package target resolves the document an operation works on.
//
// A reference is either the literal "active" (any case), meaning whatever
// drawing the engine has focused, or a file path. Resolution reports
// whether the operation opened the document itself, which decides whether
// the document is saved and closed afterwards.
package target

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram"
	"github.com/mcp-visio/mcpvisio/internal/slugs"
)

// Active is the reference to the engine's focused document.
const Active = "active"

// IsActive reports whether ref names the active document.
func IsActive(ref string) bool {
	return strings.EqualFold(strings.TrimSpace(ref), Active)
}

// Style selects path conventions.
type Style int

const (
	Posix Style = iota
	Windows
)

// HostStyle returns the path style of the running host.
func HostStyle() Style {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Posix
}

// ParseStyle maps "windows" and "posix" to a Style. Anything else yields
// the host style.
func ParseStyle(s string) Style {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows":
		return Windows
	case "posix", "unix":
		return Posix
	}
	return HostStyle()
}

// Resolver turns references into documents.
type Resolver struct {
	Engine diagram.Engine
	Style  Style
	// DefaultDrive is prefixed to Windows paths without one, e.g. "C:".
	DefaultDrive string
	// WorkDir is tried for relative paths that do not exist as given.
	WorkDir string
	// Stat defaults to os.Stat.
	Stat func(string) (fs.FileInfo, error)
}

// Target is a resolved document.
type Target struct {
	Doc diagram.Document
	// Path is the normalized file path, empty for the active document.
	Path   string
	Active bool
	// Owned is set when resolution opened the document. Only owned
	// documents are saved or closed by Release.
	Owned bool
}

// Release ends the operation's use of the document. Owned documents are
// saved first when persist is set and are always closed. Documents that
// were already open are left exactly as they are.
func (t *Target) Release(persist bool) error {
	if t == nil || !t.Owned {
		return nil
	}
	var saveErr error
	if persist {
		saveErr = t.Doc.Save()
	}
	closeErr := t.Doc.Close()
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}

// NormalizePath applies host conventions to p. On Windows, forward slashes
// become backslashes and a missing drive is filled from DefaultDrive. On
// posix hosts, backslashes become slashes and relative paths are rooted.
func (r *Resolver) NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if r.Style == Windows {
		p = strings.ReplaceAll(p, "/", `\`)
		if strings.Contains(p, ":") || strings.HasPrefix(p, `\\`) {
			return p
		}
		drive := r.DefaultDrive
		if drive == "" {
			drive = "C:"
		}
		if strings.HasPrefix(p, `\`) {
			return drive + p
		}
		return drive + `\` + p
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func (r *Resolver) isRelative(p string) bool {
	p = strings.TrimSpace(p)
	if r.Style == Windows {
		q := strings.ReplaceAll(p, "/", `\`)
		return !strings.Contains(q, ":") && !strings.HasPrefix(q, `\`)
	}
	q := strings.ReplaceAll(p, `\`, "/")
	return !strings.HasPrefix(q, "/")
}

func (r *Resolver) join(dir, rel string) string {
	if r.Style == Windows {
		return strings.TrimRight(dir, `\/`) + `\` + strings.TrimLeft(strings.ReplaceAll(rel, "/", `\`), `\`)
	}
	return path.Join(strings.ReplaceAll(dir, `\`, "/"), strings.ReplaceAll(rel, `\`, "/"))
}

// Exists reports whether p exists on the host filesystem.
func (r *Resolver) Exists(p string) bool {
	stat := r.Stat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(p)
	return err == nil
}

// Locate normalizes ref and checks that it exists, retrying relative
// references under WorkDir. It does not touch the engine.
func (r *Resolver) Locate(ref string) (string, error) {
	p := r.NormalizePath(ref)
	if r.Exists(p) {
		return p, nil
	}
	if r.WorkDir != "" && r.isRelative(ref) {
		alt := r.join(r.WorkDir, strings.TrimSpace(ref))
		if r.Exists(alt) {
			return alt, nil
		}
	}
	return "", diagerr.New(diagerr.FileNotFound, "File not found: %s", p).WithDetails("path", p)
}

// Resolve maps ref to a document.
func (r *Resolver) Resolve(ref string) (*Target, error) {
	if IsActive(ref) {
		if len(r.Engine.Documents()) == 0 {
			return nil, diagerr.New(diagerr.NoActiveDocument, "No active document")
		}
		doc, err := r.Engine.ActiveDocument()
		if err != nil {
			return nil, diagerr.Wrap(diagerr.NoActiveDocument, err, "No active document")
		}
		return &Target{Doc: doc, Active: true}, nil
	}

	p, err := r.Locate(ref)
	if err != nil {
		return nil, err
	}

	if doc, err := r.Engine.Document(slugs.BaseName(p)); err == nil {
		return &Target{Doc: doc, Path: p}, nil
	}

	doc, err := r.Engine.Open(p)
	if err != nil {
		if errors.Is(err, diagram.ErrNotFound) {
			return nil, diagerr.Wrap(diagerr.FileNotFound, err, "File not found: %s", p).WithDetails("path", p)
		}
		return nil, diagerr.Wrap(diagerr.DocumentOpenFailed, err, "Failed to open document").WithDetails("path", p)
	}
	return &Target{Doc: doc, Path: p, Owned: true}, nil
}
