package knowledge

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Resolver maps stored source identifiers to files under the documents
// directory so they can be sent as attachments.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver rooted at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{root: dir}
}

// Resolve returns the absolute path for source. The source is tried as a
// path relative to the root and then by its base name. Paths that escape
// the root are rejected.
func (r *Resolver) Resolve(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%w: empty source", ErrSourceNotFound)
	}
	root, err := filepath.Abs(r.root)
	if err != nil {
		return "", err
	}

	slashed := filepath.ToSlash(source)
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, source)
		}
	}
	clean := path.Clean("/" + slashed)

	candidates := []string{
		filepath.Join(root, filepath.FromSlash(clean)),
		filepath.Join(root, path.Base(clean)),
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	for _, c := range candidates {
		if !within(root, c) {
			continue
		}
		target, err := filepath.EvalSymlinks(c)
		if err != nil {
			continue
		}
		// symlinks may point anywhere; the target must stay under the root
		if !within(realRoot, target) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, source)
		}
		info, err := os.Stat(target)
		if err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSourceNotFound, source)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
