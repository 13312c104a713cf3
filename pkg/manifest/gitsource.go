package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"

	"github.com/fulmenhq/scriptdepot/pkg/logger"
	"github.com/fulmenhq/scriptdepot/pkg/safeio"
)

// gitManifestNames are tried in order inside a cloned source's worktree.
var gitManifestNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

// loadGit materializes a custom-git source: a clone kept under the depot
// home, pulled on refresh. A failed pull falls back to the existing clone so
// a flaky remote degrades to stale data instead of an empty merge.
func (l *Loader) loadGit(src Source, opts LoadOptions) ([]byte, string, error) {
	if l.cfg == nil {
		return nil, "", fmt.Errorf("git sources require a configured depot home")
	}
	dir := filepath.Join(l.cfg.GitSourceDir(), src.Name)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		if opts.ForceRefresh || !l.withinCacheWindow(dir) {
			l.pullGit(src, dir)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
			return nil, "", fmt.Errorf("failed to create git source directory: %w", err)
		}
		if _, err := git.PlainClone(dir, false, &git.CloneOptions{
			URL: src.Location,
		}); err != nil {
			return nil, "", &NetworkError{Source: src.Name, URL: src.Location, Wrapped: err}
		}
		logger.Info("cloned git manifest source",
			logger.String("source", src.Name),
			logger.String("url", src.Location))
	}

	for _, name := range gitManifestNames {
		data, err := safeio.ReadFileContained(dir, filepath.Join(dir, name))
		if err == nil {
			return data, formatForPath(name), nil
		}
	}
	return nil, "", &CorruptError{Source: src.Name, Reason: "no manifest file in repository root"}
}

func (l *Loader) pullGit(src Source, dir string) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		logger.Warn("failed to open git source clone, using files as-is",
			logger.String("source", src.Name), logger.Err(err))
		return
	}
	wt, err := repo.Worktree()
	if err != nil {
		logger.Warn("failed to access git source worktree, using files as-is",
			logger.String("source", src.Name), logger.Err(err))
		return
	}
	err = wt.Pull(&git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		logger.Warn("git pull failed, using last fetched copy",
			logger.String("source", src.Name), logger.Err(err))
	}
}

// withinCacheWindow treats the clone's manifest mtime like the remote
// manifest cache: skip the pull if the copy is fresh enough.
func (l *Loader) withinCacheWindow(dir string) bool {
	maxAge := l.manifestCacheMaxAge()
	if maxAge <= 0 {
		return false
	}
	for _, name := range gitManifestNames {
		if st, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return int(time.Since(st.ModTime()).Seconds()) <= maxAge
		}
	}
	return false
}
