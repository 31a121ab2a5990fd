package install

import (
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/conn-castle/service-install/internal/backend"
)

const (
	// DefaultDiffMaxLines is the default maximum number of diff lines shown per artifact.
	DefaultDiffMaxLines = 40
	// diffLineCapFlagName is the CLI flag name used to raise per-artifact diff line caps.
	diffLineCapFlagName = "--diff-lines"
)

// DiffPreview is a per-artifact diff between what is registered now and what
// the plan registers.
type DiffPreview struct {
	Path        string
	UnifiedDiff string
	Truncated   bool
}

func normalizeDiffMaxLines(value int) int {
	if value <= 0 {
		return DefaultDiffMaxLines
	}
	return value
}

// buildDiffPreviews diffs every artifact of next against the artifact at the
// same path in current. Unchanged artifacts are skipped.
func buildDiffPreviews(current *backend.Registration, next backend.Registration, maxLines int) []DiffPreview {
	before := map[string]string{}
	if current != nil {
		for _, artifact := range current.Artifacts {
			before[artifact.Path] = artifact.Content
		}
	}
	var out []DiffPreview
	for _, artifact := range next.Artifacts {
		from := before[artifact.Path]
		if from == artifact.Content {
			continue
		}
		rendered, truncated := renderTruncatedUnifiedDiff(
			artifact.Path+" (current)",
			artifact.Path+" (planned)",
			from,
			artifact.Content,
			maxLines,
		)
		out = append(out, DiffPreview{Path: artifact.Path, UnifiedDiff: rendered, Truncated: truncated})
	}
	return out
}

func renderTruncatedUnifiedDiff(fromName string, toName string, fromContent string, toContent string, maxLines int) (string, bool) {
	limit := normalizeDiffMaxLines(maxLines)
	diff := udiff.Unified(fromName, toName, fromContent, toContent)
	lines := splitDiffLines(diff)
	if len(lines) <= limit {
		return ensureTrailingNewline(strings.Join(lines, "\n")), false
	}
	truncated := lines[:limit]
	truncated = append(
		truncated,
		fmt.Sprintf("... (truncated to %d lines; rerun with %s <n> to see more)", limit, diffLineCapFlagName),
	)
	return ensureTrailingNewline(strings.Join(truncated, "\n")), true
}

func splitDiffLines(content string) []string {
	trimmed := strings.TrimRight(content, "\n")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "\n")
}

func ensureTrailingNewline(content string) string {
	if content == "" {
		return ""
	}
	if strings.HasSuffix(content, "\n") {
		return content
	}
	return content + "\n"
}
