package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sickfar/mdumb/internal/apperr"
)

// ValidatePath resolves requested against root and rejects any result that
// escapes it. root must be absolute. Backslashes are treated as separators
// so Windows-style input cannot sneak past the prefix check.
func ValidatePath(requested, root string) (string, error) {
	normalized := strings.ReplaceAll(requested, "\\", "/")
	if normalized == "" {
		return root, nil
	}
	if strings.HasPrefix(normalized, "/") || filepath.IsAbs(normalized) || filepath.VolumeName(normalized) != "" {
		return "", fmt.Errorf("%w: %s", apperr.ErrPathTraversal, requested)
	}
	cleaned := filepath.Clean(filepath.FromSlash(normalized))
	abs, err := filepath.Abs(filepath.Join(root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", apperr.ErrPathTraversal, requested)
	}
	return abs, nil
}

// Rel converts an absolute path under root into the slash-separated form
// used in results and events.
func Rel(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	if rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// IsHidden reports whether any segment of the slash-separated rel path
// starts with a dot.
func IsHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
