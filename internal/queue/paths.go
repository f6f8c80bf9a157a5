package queue

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WorkspaceRoot returns the per-item scratch directory rooted at base.
// The item UUID is used when present; otherwise it falls back to
// item-{ID} to avoid collisions.
func (i Item) WorkspaceRoot(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	segment := strings.TrimSpace(i.UUID)
	if segment == "" {
		segment = fmt.Sprintf("item-%d", i.ID)
	}
	return filepath.Join(base, segment)
}
