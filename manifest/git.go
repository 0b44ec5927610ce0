package manifest

import (
	"context"
	"errors"
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// gitClone clones a template library to dest.
func gitClone(ctx context.Context, url, dest string) error {
	if _, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: url}); err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

// gitCheckout checks out a tag, branch or commit.
func gitCheckout(dir, ref string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("git open %s: %w", dir, err)
	}
	hash, err := resolveRef(repo, ref)
	if err != nil {
		return fmt.Errorf("git checkout %s in %s: %w", ref, dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("git checkout %s in %s: %w", ref, dir, err)
	}
	return nil
}

// resolveRef tries ref as a tag, then a remote branch, then any revision.
func resolveRef(repo *git.Repository, ref string) (*plumbing.Hash, error) {
	var firstErr error
	for _, rev := range []string{"refs/tags/" + ref, "refs/remotes/origin/" + ref, ref} {
		hash, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err == nil {
			return hash, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func gitFetch(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("git open %s: %w", dir, err)
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{Tags: git.AllTags})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("git fetch in %s: %w", dir, err)
	}
	return nil
}

// gitCurrentCommit returns the HEAD commit hash.
func gitCurrentCommit(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("git open %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("git head in %s: %w", dir, err)
	}
	return head.Hash().String(), nil
}

// gitIsClean reports whether dir has no uncommitted changes.
func gitIsClean(dir string) (bool, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return false, fmt.Errorf("git open %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("git status in %s: %w", dir, err)
	}
	return status.IsClean(), nil
}
