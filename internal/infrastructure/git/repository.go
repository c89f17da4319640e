package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
)

// Ensure Repository implements the port.
var _ sourcecontrol.Repository = (*Repository)(nil)

// Repository is the go-git implementation of sourcecontrol.Repository.
type Repository struct {
	cfg      Config
	repo     *git.Repository
	worktree *git.Worktree
	runner   command.Runner
}

// Open opens the repository containing the configured path.
func Open(opts ...Option) (*Repository, error) {
	const op = "git.Open"

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get absolute path")
	}

	repo, err := git.PlainOpenWithOptions(absPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			err = fmt.Errorf("%w: %s", sourcecontrol.ErrNotARepository, absPath)
		}
		return nil, rperrors.GitWrap(err, op, "failed to open repository")
	}

	return newRepository(cfg, repo)
}

func newRepository(cfg Config, repo *git.Repository) (*Repository, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, rperrors.GitWrap(err, "git.Open", "failed to get worktree")
	}

	return &Repository{
		cfg:      cfg,
		repo:     repo,
		worktree: worktree,
		runner:   command.NewExecRunner(),
	}, nil
}

// WithRunner replaces the command runner used for the CLI fallback.
func (r *Repository) WithRunner(runner command.Runner) *Repository {
	r.runner = runner
	return r
}

// Root returns the absolute path of the working tree.
func (r *Repository) Root() string {
	return r.worktree.Filesystem.Root()
}

// CurrentBranch returns the checked out branch.
func (r *Repository) CurrentBranch(_ context.Context) (string, error) {
	const op = "git.CurrentBranch"

	head, err := r.repo.Head()
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to get HEAD")
	}
	if !head.Name().IsBranch() {
		return "", rperrors.GitWrap(sourcecontrol.ErrDetachedHead, op, "HEAD is not on a branch")
	}

	return head.Name().Short(), nil
}

// ResolveSHA resolves ref to a commit SHA. Annotated tags are peeled.
func (r *Repository) ResolveSHA(_ context.Context, ref string) (string, error) {
	const op = "git.ResolveSHA"

	hash, err := r.resolve(ref)
	if err != nil {
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve %s", ref))
	}
	return hash.String(), nil
}

func (r *Repository) resolve(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}

	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s: %v", sourcecontrol.ErrRefNotFound, ref, err)
	}
	return *resolved, nil
}

type tagEntry struct {
	name   string
	commit plumbing.Hash
	date   time.Time
}

// tags reads every tag with the commit it points to and its creation date:
// the tagger date for annotated tags, the committer date otherwise.
func (r *Repository) tags(ctx context.Context) ([]tagEntry, error) {
	const op = "git.ListTags"

	iter, err := r.repo.Tags()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get tags iterator")
	}
	defer iter.Close()

	var entries []tagEntry
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		entry := tagEntry{name: ref.Name().Short(), commit: ref.Hash()}
		if tagObj, tagErr := r.repo.TagObject(ref.Hash()); tagErr == nil {
			entry.date = tagObj.Tagger.When
			if c, cErr := tagObj.Commit(); cErr == nil {
				entry.commit = c.Hash
			}
		} else if c, cErr := r.repo.CommitObject(ref.Hash()); cErr == nil {
			entry.date = c.Committer.When
		}

		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, rperrors.GitWrap(ctx.Err(), op, "operation canceled")
		}
		return nil, rperrors.GitWrap(err, op, "failed to iterate tags")
	}

	return entries, nil
}

// ListTags returns tag names ordered by creation date, newest first.
func (r *Repository) ListTags(ctx context.Context) ([]string, error) {
	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	entries, err := r.tags(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].date.Equal(entries[j].date) {
			return entries[i].date.After(entries[j].date)
		}
		return entries[i].name > entries[j].name
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

// TagExists reports whether the tag exists locally.
func (r *Repository) TagExists(_ context.Context, name string) (bool, error) {
	const op = "git.TagExists"

	_, err := r.repo.Tag(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, git.ErrTagNotFound):
		return false, nil
	default:
		return false, rperrors.GitWrap(err, op, fmt.Sprintf("failed to look up tag %s", name))
	}
}

// TagsPointingAt returns the tags whose commit is ref, sorted by name.
func (r *Repository) TagsPointingAt(ctx context.Context, ref string) ([]string, error) {
	const op = "git.TagsPointingAt"

	ctx, cancel := withLocalTimeout(ctx)
	defer cancel()

	target, err := r.resolve(ref)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve %s", ref))
	}

	entries, err := r.tags(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.commit == target {
			names = append(names, e.name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsDirty reports whether tracked files have uncommitted changes.
func (r *Repository) IsDirty(ctx context.Context) (bool, error) {
	files, err := r.DirtyFiles(ctx)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// DirtyFiles returns the tracked paths with staged or unstaged changes.
// Untracked files are ignored.
func (r *Repository) DirtyFiles(_ context.Context) ([]string, error) {
	const op = "git.DirtyFiles"

	status, err := r.worktree.Status()
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to get worktree status")
	}

	var files []string
	for path, s := range status {
		if s.Worktree == git.Untracked && s.Staging == git.Untracked {
			continue
		}
		if s.Worktree == git.Unmodified && s.Staging == git.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// Checkout switches to branch. A missing local branch is created at HEAD,
// which is what CI checkouts of a detached commit need. Local changes are kept.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	const op = "git.Checkout"

	if current, err := r.CurrentBranch(ctx); err == nil && current == branch {
		return nil
	}

	refName := plumbing.NewBranchReferenceName(branch)
	opts := &git.CheckoutOptions{Branch: refName, Keep: true}

	if _, err := r.repo.Reference(refName, true); err != nil {
		head, headErr := r.repo.Head()
		if headErr != nil {
			return rperrors.GitWrap(headErr, op, "failed to get HEAD")
		}
		opts.Create = true
		opts.Hash = head.Hash()
	}

	if err := r.worktree.Checkout(opts); err != nil {
		return rperrors.GitWrap(err, op, fmt.Sprintf("failed to check out %s", branch))
	}
	return nil
}

// Add stages paths. Paths that do not exist are skipped.
func (r *Repository) Add(_ context.Context, paths ...string) error {
	const op = "git.Add"

	for _, p := range paths {
		if _, err := r.worktree.Filesystem.Stat(p); err != nil {
			continue
		}
		if _, err := r.worktree.Add(p); err != nil {
			return rperrors.GitWrap(err, op, fmt.Sprintf("failed to stage %s", p))
		}
	}
	return nil
}

// Commit records the index as a new commit, even if nothing changed.
func (r *Repository) Commit(_ context.Context, message string) (string, error) {
	const op = "git.Commit"

	sig := r.signature()
	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", rperrors.GitWrap(err, op, "failed to commit")
	}
	return hash.String(), nil
}

func (r *Repository) signature() *object.Signature {
	name, email := r.cfg.UserName, r.cfg.UserEmail

	if name == "" || email == "" {
		for _, scope := range []config.Scope{config.LocalScope, config.GlobalScope} {
			cfg, err := r.repo.ConfigScoped(scope)
			if err != nil {
				continue
			}
			if name == "" {
				name = cfg.User.Name
			}
			if email == "" {
				email = cfg.User.Email
			}
		}
	}

	if name == "" {
		name = "ci_tools"
	}
	if email == "" {
		email = "ci_tools@localhost"
	}

	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// CreateTag creates a lightweight tag at HEAD.
func (r *Repository) CreateTag(ctx context.Context, name string) error {
	const op = "git.CreateTag"

	exists, err := r.TagExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return rperrors.GitWrap(sourcecontrol.ErrTagAlreadyExists, op, fmt.Sprintf("tag %s already exists", name))
	}

	head, err := r.repo.Head()
	if err != nil {
		return rperrors.GitWrap(err, op, "failed to get HEAD")
	}

	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), head.Hash())
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return rperrors.GitWrap(err, op, fmt.Sprintf("failed to create tag %s", name))
	}
	return nil
}

// CommitMessage returns the full message of the commit ref points to.
func (r *Repository) CommitMessage(_ context.Context, ref string) (string, error) {
	const op = "git.CommitMessage"

	hash, err := r.resolve(ref)
	if err != nil {
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve %s", ref))
	}

	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return "", rperrors.GitWrap(err, op, fmt.Sprintf("failed to read commit %s", hash))
	}
	return c.Message, nil
}

// CommitsSince returns the SHAs reachable from ref committed after since,
// newest first.
func (r *Repository) CommitsSince(ctx context.Context, ref string, since time.Time) ([]string, error) {
	const op = "git.CommitsSince"

	hash, err := r.resolve(ref)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, fmt.Sprintf("failed to resolve %s", ref))
	}

	iter, err := r.repo.Log(&git.LogOptions{From: hash, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to read history")
	}
	defer iter.Close()

	var shas []string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Committer.When.After(since) {
			shas = append(shas, c.Hash.String())
		}
		return nil
	})
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to walk history")
	}
	return shas, nil
}
