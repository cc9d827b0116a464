package mailbox

import (
	"strings"

	"github.com/quackhq/quack/pkg/models"
)

// NormalizePath strips leading slashes and lowercases an inbox path.
func NormalizePath(path string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(path), "/"))
}

// ValidatePath checks an already-normalized inbox path. Paths have 1–3
// non-empty segments; a single segment is only accepted when the carrying
// message has project metadata (the segment then names the platform and the
// project scopes it).
func ValidatePath(path string, hasProjectMetadata bool) error {
	if path == "" {
		return models.NewValidationError("to", "inbox path is required")
	}

	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if seg == "" {
			return models.NewValidationError("to", "inbox path contains an empty segment")
		}
	}

	minSegments := 2
	if hasProjectMetadata {
		minSegments = 1
	}
	if len(segments) < minSegments {
		return models.NewValidationError("to",
			"single-segment inbox requires project metadata")
	}
	if len(segments) > 3 {
		return models.NewValidationError("to",
			"inbox path has too many segments (max 3)")
	}

	return nil
}

// RootPlatform returns the first segment of an inbox path or agent
// identifier ("claude/web" → "claude").
func RootPlatform(path string) string {
	path = NormalizePath(path)
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
