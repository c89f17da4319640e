// Package release holds the release workflow core: the per-run context, the
// redundant/retry run detector, the release decision and the pipeline state
// machine that sequences write, commit, tag, push and publish.
package release

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Context is the snapshot of everything a run decides on. It is built once at
// process start and passed explicitly; nothing below it reads the environment.
type Context struct {
	RunID           string
	WorkDir         string
	Mode            manifest.Mode
	ManifestVersion string
	Branch          string
	// Tags holds all tag names, most recent first.
	Tags       []string
	HeadSHA    string
	TagsAtHead []string
	DirtyFiles []string
	Now        time.Time

	Force             bool
	DryRun            bool
	AllowDirtyWorkdir bool
}

// Options are the caller-supplied inputs of LoadContext.
type Options struct {
	WorkDir string
	Mode    manifest.Mode
	// Branch overrides the VCS branch, e.g. when CI checks out a detached HEAD.
	Branch            string
	// BranchDetected keeps Branch even when empty, e.g. for a build of a tag
	// that is not a release version.
	BranchDetected    bool
	Force             bool
	DryRun            bool
	AllowDirtyWorkdir bool
	Now               func() time.Time
}

// LoadContext reads the VCS and manifest state for a run.
func LoadContext(ctx context.Context, opts Options, repo sourcecontrol.Repository, m manifest.Manifest) (*Context, error) {
	const op = "release.LoadContext"

	current, err := m.Read(ctx)
	if err != nil {
		return nil, rperrors.ManifestWrap(err, op, "failed to read manifest version")
	}

	branch := opts.Branch
	if branch == "" && !opts.BranchDetected {
		branch, err = repo.CurrentBranch(ctx)
		if err != nil {
			return nil, rperrors.GitWrap(err, op, "failed to determine current branch")
		}
	}

	tags, err := repo.ListTags(ctx)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to list tags")
	}

	head, err := repo.ResolveSHA(ctx, "HEAD")
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to resolve HEAD")
	}

	atHead, err := repo.TagsPointingAt(ctx, head)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to list tags at HEAD")
	}

	dirty, err := repo.DirtyFiles(ctx)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "failed to read working tree status")
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	return &Context{
		RunID:             uuid.NewString(),
		WorkDir:           opts.WorkDir,
		Mode:              m.Mode(),
		ManifestVersion:   current,
		Branch:            branch,
		Tags:              tags,
		HeadSHA:           head,
		TagsAtHead:        atHead,
		DirtyFiles:        dirty,
		Now:               now(),
		Force:             opts.Force,
		DryRun:            opts.DryRun,
		AllowDirtyWorkdir: opts.AllowDirtyWorkdir,
	}, nil
}

// CurrentTag is the tag of the version the manifest declares.
func (c *Context) CurrentTag() string {
	return version.Tag(c.ManifestVersion)
}

// NextVersion returns the version this run would release. Branches outside
// the versioning scheme get a unique commit pre-release and eligible=false.
func (c *Context) NextVersion() (next string, eligible bool) {
	if v, ok := version.Increment(c.ManifestVersion, c.Branch, c.Tags); ok {
		return v, true
	}
	return version.CommitPrerelease(c.ManifestVersion, c.Branch, c.HeadSHA, c.Now), false
}

// PreviousStableTag returns the tag of the stable release preceding the
// manifest version, the lower bound of the changelog.
func (c *Context) PreviousStableTag() (string, bool) {
	v, ok := version.PreviousStable(c.ManifestVersion, c.Tags)
	if !ok {
		return "", false
	}
	return version.Tag(v), true
}

// HasTag reports whether name is in the tag snapshot.
func (c *Context) HasTag(name string) bool {
	return slices.Contains(c.Tags, name)
}

// IsHeadTagged reports whether HEAD carries the tag name.
func (c *Context) IsHeadTagged(name string) bool {
	return slices.Contains(c.TagsAtHead, name)
}

// IsDirty reports whether the working tree had uncommitted changes.
func (c *Context) IsDirty() bool {
	return len(c.DirtyFiles) > 0
}
