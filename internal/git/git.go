// Package git selects scan targets from a repository's pending changes.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// RepoRoot returns the git repository root for the given path,
// or an error if the path is not inside a git repository.
func RepoRoot(ctx context.Context, path string) (string, error) {
	out, err := run(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not a git repository (or git not installed): %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ChangedFiles returns file paths changed between ref and the working tree.
// If ref is empty, defaults to HEAD. Only existing (non-deleted) files are
// returned. Paths are relative to the repository root.
func ChangedFiles(ctx context.Context, repoRoot, ref string) ([]string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	out, err := run(ctx, repoRoot, "diff", "--name-only", "--diff-filter=d", ref)
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only %s: %w", ref, err)
	}
	return parseLines(out), nil
}

// StagedFiles returns file paths staged in the git index.
// Only existing (non-deleted) files are returned.
// Paths are relative to the repository root.
func StagedFiles(ctx context.Context, repoRoot string) ([]string, error) {
	out, err := run(ctx, repoRoot, "diff", "--cached", "--name-only", "--diff-filter=d")
	if err != nil {
		return nil, fmt.Errorf("git diff --cached --name-only: %w", err)
	}
	return parseLines(out), nil
}

// UntrackedFiles returns files git does not track yet, honouring .gitignore.
func UntrackedFiles(ctx context.Context, repoRoot string) ([]string, error) {
	out, err := run(ctx, repoRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("git ls-files --others: %w", err)
	}
	return parseLines(out), nil
}

// AbsFiles joins rel onto repoRoot and keeps the regular files that still
// exist, sorted and without duplicates.
func AbsFiles(repoRoot string, rel ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range rel {
		for _, p := range list {
			abs := filepath.Join(repoRoot, filepath.FromSlash(p))
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			info, err := os.Lstat(abs)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			out = append(out, abs)
		}
	}
	sort.Strings(out)
	return out
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func parseLines(s string) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
