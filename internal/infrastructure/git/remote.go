package git

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Push pushes branch to remote.
func (r *Repository) Push(ctx context.Context, remote, branch string) error {
	spec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	return r.push(ctx, "git.Push", remote, []string{remote, branch}, config.RefSpec(spec))
}

// PushTags pushes every local tag to remote.
func (r *Repository) PushTags(ctx context.Context, remote string) error {
	return r.push(ctx, "git.PushTags", remote, []string{remote, "--tags"}, config.RefSpec("refs/tags/*:refs/tags/*"))
}

func (r *Repository) push(ctx context.Context, op, remote string, cliArgs []string, spec config.RefSpec) error {
	if remote == "" {
		remote = r.cfg.DefaultRemote
		cliArgs[0] = remote
	}

	ctx, cancel := withRemoteTimeout(ctx)
	defer cancel()

	url, err := r.RemoteURL(ctx, remote)
	if err != nil {
		return err
	}

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       r.auth(url),
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}

	if r.cfg.UseCLIFallback && r.runner != nil {
		args := append([]string{"push"}, cliArgs...)
		_, cliErr := r.runner.Run(ctx, r.Root(), "git", args...)
		if cliErr == nil {
			return nil
		}
		err = fmt.Errorf("%v; git CLI: %w", err, cliErr)
	}

	return rperrors.WrapSafe(fmt.Errorf("%w: %v", sourcecontrol.ErrPushFailed, err), rperrors.KindGit, op,
		fmt.Sprintf("failed to push to %s", remote))
}

func (r *Repository) auth(url string) transport.AuthMethod {
	if r.cfg.AuthToken == "" {
		return nil
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil
	}
	return &http.BasicAuth{Username: r.cfg.AuthUsername, Password: r.cfg.AuthToken}
}

// RemoteURL returns the first URL of the named remote.
func (r *Repository) RemoteURL(_ context.Context, name string) (string, error) {
	const op = "git.RemoteURL"

	if name == "" {
		name = r.cfg.DefaultRemote
	}

	remote, err := r.repo.Remote(name)
	if err != nil {
		return "", rperrors.GitWrap(fmt.Errorf("%w: %s", sourcecontrol.ErrRemoteNotFound, name), op, "failed to get remote")
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", rperrors.NotFound(op, fmt.Sprintf("remote %s has no URLs", name))
	}
	return urls[0], nil
}

var githubRemotePattern = regexp.MustCompile(`github\.com[:/](.+)$`)

// ParseGitHubRepo extracts "owner/name" from a GitHub remote URL.
func ParseGitHubRepo(url string) (owner, name string, ok bool) {
	m := githubRemotePattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", false
	}

	slug := strings.TrimSuffix(strings.TrimSuffix(m[1], "/"), ".git")
	o, n, found := strings.Cut(slug, "/")
	if !found || o == "" || n == "" || strings.Contains(n, "/") {
		return "", "", false
	}
	return o, n, true
}
