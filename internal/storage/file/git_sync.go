package file

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitSyncer commits the state file and pushes it to the configured remote.
type GitSyncer struct {
	// Dir is the repository working tree; defaults to the state file's directory.
	Dir string
	// Push disables the push step when false.
	Push bool
	// Git is the binary to run, "git" by default.
	Git string
}

// Sync stages path, commits with message and pushes. A commit with nothing to
// record is not an error.
func (g *GitSyncer) Sync(ctx context.Context, path, message string) error {
	dir := g.Dir
	if dir == "" {
		dir = filepath.Dir(path)
	}

	if _, err := g.run(ctx, dir, "add", path); err != nil {
		return err
	}
	out, err := g.run(ctx, dir, "commit", "-m", message, "--", path)
	if err != nil {
		if nothingToCommit(out) {
			return nil
		}
		return err
	}
	if !g.Push {
		return nil
	}
	_, err = g.run(ctx, dir, "push")
	return err
}

func (g *GitSyncer) run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.Git
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(buf.String()))
	}
	return buf.String(), nil
}

func nothingToCommit(out string) bool {
	for _, marker := range []string{"nothing to commit", "nothing added to commit", "no changes added"} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}
