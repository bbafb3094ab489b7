// Package slugs builds lookup keys for stencil, template and master names.
//
// Names arrive from callers in many spellings ("Basic_U.vss", "basic_u.VSSX",
// `C:\Stencils\Basic_U.vss`). Key reduces them to one comparable form.
package slugs

import (
	"path/filepath"
	"strings"

	goslug "github.com/gosimple/slug"
)

// BaseName returns the last element of p, treating both / and \ as
// separators regardless of host.
func BaseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// TrimExt removes a diagram file extension (.vss, .vssx, .vst, .vsdx, ...).
// Other extensions are left alone.
func TrimExt(name string) string {
	ext := filepath.Ext(name)
	if strings.HasPrefix(strings.ToLower(ext), ".vs") {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// Key converts a stencil or template name to a lookup key. Directory and
// diagram extension are ignored, so the same file named several ways maps
// to the same key.
func Key(name string) string {
	base := TrimExt(BaseName(strings.TrimSpace(name)))
	key := goslug.Make(base)
	if key == "" {
		key = strings.ToLower(strings.Join(strings.Fields(base), "-"))
	}
	return key
}
