// Package pathguard turns a requested relative path into a verified absolute
// path inside a container's volume root.
//
// A request passes only if the path is declared verbatim in the container's
// allowlist and, once joined to the root with ".." and symlinks resolved, it
// still lies inside the root. Both failures return ErrForbidden so a caller
// cannot tell which check rejected it.
package pathguard

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/zpdzap/modidock/internal/registry"
)

// ErrForbidden is returned for any path that is not allowlisted or escapes the
// volume root. Its text never includes the path.
var ErrForbidden = errors.New("file not permitted")

// Resolved is a path that passed both checks.
type Resolved struct {
	ContainerID  string
	RelativePath string
	AbsolutePath string
}

// Resolve checks requested against entry and returns where it lives on disk.
func Resolve(entry registry.ContainerEntry, requested string) (Resolved, error) {
	if requested == "" || !entry.Allows(requested) {
		return Resolved{}, ErrForbidden
	}

	root := filepath.Clean(entry.VolumeRoot)
	if !filepath.IsAbs(root) {
		return Resolved{}, ErrForbidden
	}

	lexical := filepath.Join(root, requested)
	if !Within(root, lexical) {
		return Resolved{}, ErrForbidden
	}

	realRoot, ok := evalExisting(root)
	if !ok {
		return Resolved{}, ErrForbidden
	}
	realPath, ok := evalExisting(lexical)
	if !ok || !Within(realRoot, realPath) {
		return Resolved{}, ErrForbidden
	}

	return Resolved{
		ContainerID:  entry.ID,
		RelativePath: requested,
		AbsolutePath: realPath,
	}, nil
}

// Within reports whether path is root itself or lies beneath it. Both must be
// clean absolute paths. A sibling that merely shares a prefix, such as
// /data/app2 under /data/app, is not within.
func Within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// maxLinkHops bounds how many dangling links evalExisting follows by hand.
const maxLinkHops = 40

// evalExisting resolves symlinks in the longest existing prefix of p and
// appends the remaining components unchanged. A dangling link on the way is
// followed by hand so its destination is what gets checked. It reports false
// when the path cannot be resolved for any other reason (permissions, link
// loops), and the caller must treat that as outside the root.
func evalExisting(p string) (string, bool) {
	return evalHops(p, 0)
}

func evalHops(p string, hops int) (string, bool) {
	p = filepath.Clean(p)
	var rest []string
	for cur := p; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Clean(filepath.Join(append([]string{resolved}, rest...)...)), true
		}
		// ENOTDIR means some prefix resolves to a non-directory; walk up to it.
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", false
		}
		if target, err := os.Readlink(cur); err == nil {
			if hops >= maxLinkHops {
				return "", false
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(cur), target)
			}
			return evalHops(filepath.Join(append([]string{target}, rest...)...), hops+1)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
