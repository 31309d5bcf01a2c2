// Package catalog maintains the local on-disk mirror of the package
// catalog, synced from each configured repository's versioned upstream
// directory (spec.md §4.1, "Catalog Store").
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"srcpkg/config"
	"srcpkg/pklog"
)

// Store is the Catalog Store over a set of configured repositories.
type Store struct {
	Repositories []*config.Repository
	SyncInterval time.Duration
	Logger       pklog.LibraryLogger
}

// New builds a Store from the given configuration. Repository entries are
// taken by pointer so Sync can update LastSync/LastCommit in place.
func New(cfg *config.Config, logger pklog.LibraryLogger) *Store {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}
	repos := make([]*config.Repository, len(cfg.Repositories))
	for i := range cfg.Repositories {
		repos[i] = &cfg.Repositories[i]
	}
	return &Store{
		Repositories: repos,
		SyncInterval: time.Duration(cfg.SyncIntervalSecs) * time.Second,
		Logger:       logger,
	}
}

// NeedsSync reports whether repo is due for a sync: never synced, or the
// configured interval has elapsed.
func (s *Store) NeedsSync(repo *config.Repository) bool {
	if repo.LastSync == 0 {
		return true
	}
	elapsed := time.Since(time.Unix(repo.LastSync, 0))
	return elapsed > s.SyncInterval
}

// Sync brings every enabled repository's local_path up to date. A single
// repository's failure does not abort the others, but the aggregate
// result is a non-nil error unless every repository succeeded.
func (s *Store) Sync(ctx context.Context) error {
	var errs []error
	for _, repo := range s.Repositories {
		if !repo.Enabled {
			continue
		}
		if err := s.syncOne(ctx, repo); err != nil {
			s.Logger.Error("sync %s: %v", repo.Name, err)
			errs = append(errs, &NetworkError{Repository: repo.Name, Err: err})
			continue
		}
		repo.LastSync = time.Now().Unix()
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Store) syncOne(ctx context.Context, repo *config.Repository) error {
	branch := repo.Branch
	if branch == "" {
		branch = "main"
	}

	info, statErr := os.Stat(repo.LocalPath)
	exists := statErr == nil && info.IsDir()

	if exists {
		if _, err := git.PlainOpen(repo.LocalPath); err != nil {
			s.Logger.Warn("repository %s at %s has no valid git metadata, re-cloning", repo.Name, repo.LocalPath)
			if rmErr := os.RemoveAll(repo.LocalPath); rmErr != nil {
				return fmt.Errorf("erase invalid local copy: %w", rmErr)
			}
			exists = false
		}
	}

	if !exists {
		s.Logger.Info("cloning %s (%s) into %s", repo.Name, repo.URL, repo.LocalPath)
		_, err := git.PlainCloneContext(ctx, repo.LocalPath, false, &git.CloneOptions{
			URL:           repo.URL,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
			Depth:         1,
			Tags:          git.NoTags,
		})
		if err != nil {
			return err
		}
	} else {
		r, err := git.PlainOpen(repo.LocalPath)
		if err != nil {
			return err
		}
		wt, err := r.Worktree()
		if err != nil {
			return err
		}
		pullErr := wt.PullContext(ctx, &git.PullOptions{
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
		})
		if pullErr != nil && !errors.Is(pullErr, git.NoErrAlreadyUpToDate) {
			return pullErr
		}
	}

	commit, err := headCommit(repo.LocalPath)
	if err == nil {
		repo.LastCommit = commit
	}
	return nil
}

func headCommit(localPath string) (string, error) {
	r, err := git.PlainOpen(localPath)
	if err != nil {
		return "", err
	}
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

// Locate searches enabled repositories in descending priority order and
// returns the path of the first catalog entry file found for name. Ties
// in priority break on configuration order (stable sort).
func (s *Store) Locate(name string) (string, error) {
	ordered := make([]*config.Repository, len(s.Repositories))
	copy(ordered, s.Repositories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, repo := range ordered {
		if !repo.Enabled {
			continue
		}
		entry := filepath.Join(repo.LocalPath, entryFileName(name))
		if info, err := os.Stat(entry); err == nil && !info.IsDir() {
			return entry, nil
		}
	}
	return "", &NotFoundError{Name: name}
}

func entryFileName(name string) string {
	return filepath.Join("packages", name+".ini")
}
