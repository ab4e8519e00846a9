// Package git syncs the desired-state repository. The working copy is
// disposable: every refresh fetches and hard-resets to the remote branch
// head, so local state can never drift from what the operator committed.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/sethvargo/go-retry"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

// Config holds the source repository settings.
type Config struct {
	// URL is the remote repository URL.
	URL string
	// Branch is the branch to track.
	Branch string
	// Path is a subdirectory within the repository that file lookups are
	// resolved against.
	Path string
	// Username and Password enable HTTP basic auth when both are set.
	Username string
	Password string
	// WorkDir is where the working copy lives.
	WorkDir string
}

// Provider implements the reconcile.SourceProvider interface on top of a
// cloned git repository.
type Provider struct {
	cfg    Config
	repo   *gogit.Repository
	logger *slog.Logger
}

// New creates a provider. The repository is cloned lazily on first Refresh.
func New(cfg Config, logger *slog.Logger) *Provider {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &Provider{cfg: cfg, logger: logger}
}

// Refresh syncs the working copy and returns the commit hash now checked
// out. All failures are reported as the source being unavailable; the caller
// retries on its next tick.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	if p.repo == nil {
		if err := p.openOrClone(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
	}

	if err := p.fetch(ctx); err != nil {
		return "", fmt.Errorf("%w: fetching %s: %v", domain.ErrSourceUnavailable, p.cfg.URL, err)
	}

	hash, err := p.resetToRemoteHead()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return hash.String(), nil
}

// ReadFile resolves a repository-relative path within the working copy,
// rooted at the configured subdirectory.
func (p *Provider) ReadFile(rel string) ([]byte, error) {
	root := filepath.Clean(filepath.Join(p.repoDir(), p.cfg.Path))
	full := filepath.Clean(filepath.Join(root, rel))
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return nil, fmt.Errorf("path %q escapes repository root", rel)
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

func (p *Provider) repoDir() string {
	return filepath.Join(p.cfg.WorkDir, "repo")
}

func (p *Provider) openOrClone(ctx context.Context) error {
	repo, err := gogit.PlainOpen(p.repoDir())
	if err == nil {
		p.logger.Debug("opened existing working copy", "path", p.repoDir())
		p.repo = repo
		return nil
	}
	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		return fmt.Errorf("opening working copy: %w", err)
	}

	p.logger.Info("cloning repository", "url", p.cfg.URL, "branch", p.cfg.Branch)
	repo, err = gogit.PlainCloneContext(ctx, p.repoDir(), false, &gogit.CloneOptions{
		URL:           p.cfg.URL,
		ReferenceName: plumbing.NewBranchReferenceName(p.cfg.Branch),
		SingleBranch:  true,
		Auth:          p.auth(),
	})
	if err != nil {
		return fmt.Errorf("cloning %s: %w", p.cfg.URL, err)
	}
	p.repo = repo
	return nil
}

// fetch updates remote refs, retrying transient failures a couple of times
// before giving up and leaving the rest to the next poll tick.
func (p *Provider) fetch(ctx context.Context) error {
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.repo.FetchContext(ctx, &gogit.FetchOptions{
			RemoteName: gogit.DefaultRemoteName,
			Auth:       p.auth(),
			Force:      true,
			Tags:       gogit.NoTags,
		})
		if err == nil || errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return nil
		}
		// Bad credentials will not get better by retrying.
		if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (p *Provider) resetToRemoteHead() (plumbing.Hash, error) {
	ref, err := p.repo.Reference(plumbing.NewRemoteReferenceName(gogit.DefaultRemoteName, p.cfg.Branch), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving origin/%s: %w", p.cfg.Branch, err)
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: ref.Hash(), Mode: gogit.HardReset}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resetting to %s: %w", ref.Hash(), err)
	}
	return ref.Hash(), nil
}

func (p *Provider) auth() transport.AuthMethod {
	if p.cfg.Username != "" && p.cfg.Password != "" {
		return &githttp.BasicAuth{Username: p.cfg.Username, Password: p.cfg.Password}
	}
	return nil
}
