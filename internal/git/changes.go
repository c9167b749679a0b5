package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// runFunc executes git with args and returns its standard output
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

func runGit(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "git", args...).Output()
}

// ChangeDetector detects files that have changed in git
type ChangeDetector struct {
	baseBranch string // branch to compare against (e.g., "main", "develop")
	run        runFunc
}

// NewChangeDetector creates a new change detector
func NewChangeDetector(baseBranch string) *ChangeDetector {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &ChangeDetector{baseBranch: baseBranch, run: runGit}
}

// RepoRoot returns the absolute path of the working tree root
func (cd *ChangeDetector) RepoRoot(ctx context.Context) (string, error) {
	out, err := cd.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GetChangedFiles returns repository-relative paths changed since the base
// branch, combined with staged and unstaged changes. Untracked files are
// included so that new definitions are picked up before their first commit.
func (cd *ChangeDetector) GetChangedFiles(ctx context.Context) ([]string, error) {
	files := make(map[string]bool)
	add := func(out []byte) {
		for _, f := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if f = strings.TrimSpace(f); f != "" {
				files[f] = true
			}
		}
	}

	// Working tree, index and untracked
	if out, err := cd.run(ctx, "diff", "--name-only"); err == nil {
		add(out)
	}
	if out, err := cd.run(ctx, "diff", "--cached", "--name-only"); err == nil {
		add(out)
	}
	if out, err := cd.run(ctx, "ls-files", "--others", "--exclude-standard"); err == nil {
		add(out)
	}

	// Committed but not in base: local branch, then origin/ (common in CI),
	// then the merge base (detached HEAD).
	out, err := cd.run(ctx, "diff", "--name-only", cd.baseBranch)
	if err != nil || len(out) == 0 {
		out, err = cd.run(ctx, "diff", "--name-only", "origin/"+cd.baseBranch)
	}
	if err != nil || len(out) == 0 {
		if sha, mbErr := cd.mergeBase(ctx); mbErr == nil {
			out, err = cd.run(ctx, "diff", "--name-only", sha)
		}
	}
	if err == nil {
		add(out)
	}

	result := make([]string, 0, len(files))
	for f := range files {
		result = append(result, filepath.FromSlash(f))
	}
	sort.Strings(result)
	return result, nil
}

func (cd *ChangeDetector) mergeBase(ctx context.Context) (string, error) {
	candidates := [][]string{
		{"merge-base", "--fork-point", cd.baseBranch},
		{"merge-base", "HEAD", cd.baseBranch},
		{"merge-base", "HEAD", "origin/" + cd.baseBranch},
	}
	var lastErr error
	for _, args := range candidates {
		out, err := cd.run(ctx, args...)
		if err == nil && len(strings.TrimSpace(string(out))) > 0 {
			return strings.TrimSpace(string(out)), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no merge base with %s", cd.baseBranch)
	}
	return "", lastErr
}

// ChangedFilter returns a predicate accepting definition file paths that
// changed relative to the base branch.
func (cd *ChangeDetector) ChangedFilter(ctx context.Context) (func(path string) bool, error) {
	root, err := cd.RepoRoot(ctx)
	if err != nil {
		return nil, err
	}
	files, err := cd.GetChangedFiles(ctx)
	if err != nil {
		return nil, err
	}

	changed := make(map[string]bool, len(files))
	for _, f := range files {
		changed[filepath.Clean(filepath.Join(root, f))] = true
	}

	return func(path string) bool {
		abs, err := filepath.Abs(path)
		if err != nil {
			return false
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		return changed[filepath.Clean(abs)]
	}, nil
}
