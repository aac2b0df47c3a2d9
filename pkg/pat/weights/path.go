package weights

import (
	"path/filepath"
	"strings"
)

// SanitizePath resolves path to an absolute form and confirms it falls
// within one of allowedDirs. Traversal
// attempts or any path escaping the allow-list resolve to fallback instead
// of being rejected outright — the loader always has somewhere safe to look.
// The second return value reports whether the original path was accepted
// as-is; false means fallback was substituted and a warning should be logged.
func SanitizePath(path string, allowedDirs []string, fallback string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(fallback), false
	}

	for _, dir := range allowedDirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if withinDir(absDir, abs) {
			return abs, true
		}
	}
	return filepath.Clean(fallback), false
}

func withinDir(dir, candidate string) bool {
	rel, err := filepath.Rel(dir, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
