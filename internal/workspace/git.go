package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RepoName returns the directory name git would clone url into.
func RepoName(url string) string {
	name := strings.TrimRight(url, "/")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".git")
}

// CloneRepo shallow-clones url into dir/<repo> and returns the target path.
// It refuses to overwrite an existing directory.
func CloneRepo(ctx context.Context, url, dir string) (string, error) {
	name := RepoName(url)
	if name == "" {
		return "", fmt.Errorf("cannot derive repository name from %q", url)
	}
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("directory %s already exists", target)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, target)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return target, nil
}

// RepoSummary describes a checked-out repository.
type RepoSummary struct {
	Root    string
	Branch  string
	Commits []string
}

// Summarize reads the branch and the last n commits of the repository at dir.
func Summarize(ctx context.Context, dir string, n int) (*RepoSummary, error) {
	root, err := gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s", dir)
	}

	s := &RepoSummary{Root: root}
	if branch, err := gitOutput(ctx, root, "branch", "--show-current"); err == nil && branch != "" {
		s.Branch = branch
	} else if head, err := gitOutput(ctx, root, "rev-parse", "--short", "HEAD"); err == nil {
		s.Branch = "detached:" + head
	}

	log, err := gitOutput(ctx, root, "log", fmt.Sprintf("-%d", n), "--oneline", "--no-decorate")
	if err == nil && log != "" {
		s.Commits = strings.Split(log, "\n")
	}
	return s, nil
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
