package release

import (
	"context"
	"errors"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Detector recognizes runs that must not release a new version: pipelines
// re-triggered by the release bot's own push, and retries of a build that
// already tagged its version but failed afterwards.
type Detector struct {
	resolver sourcecontrol.Resolver
}

// NewDetector creates a detector resolving revisions through r.
func NewDetector(r sourcecontrol.Resolver) *Detector {
	return &Detector{resolver: r}
}

// IsRedundantRun reports whether HEAD is already tagged with the manifest
// version and the next version would stay on the same channel.
func (d *Detector) IsRedundantRun(rc *Context) bool {
	current := rc.CurrentTag()
	next, _ := rc.NextVersion()

	if version.ChannelOfTag(current) != version.ChannelOfTag(version.Tag(next)) {
		return false
	}
	return rc.IsHeadTagged(current)
}

// IsRetryRun reports whether the version a previous attempt produced is
// tagged on the direct child of HEAD, i.e. this run resumes a build that
// committed and tagged but did not finish.
func (d *Detector) IsRetryRun(ctx context.Context, rc *Context) (bool, error) {
	const op = "release.IsRetryRun"

	expected, ok := d.PartiallySuccessfulBuildVersion(rc)
	if !ok {
		return false, nil
	}

	tag := version.Tag(expected)
	if !rc.HasTag(tag) {
		return false, nil
	}

	head, err := d.resolver.ResolveSHA(ctx, "HEAD")
	if err != nil {
		return false, rperrors.GitWrap(err, op, "failed to resolve HEAD")
	}

	parent, err := d.resolver.ResolveSHA(ctx, tag+"^")
	if errors.Is(err, sourcecontrol.ErrRefNotFound) {
		// Tag on a root commit has no parent.
		return false, nil
	}
	if err != nil {
		return false, rperrors.GitWrap(err, op, "failed to resolve parent of "+tag)
	}

	return head == parent, nil
}

// PartiallySuccessfulBuildVersion returns the version a previous attempt on
// this branch would have tagged.
func (d *Detector) PartiallySuccessfulBuildVersion(rc *Context) (string, bool) {
	return version.ExpectedLatest(rc.ManifestVersion, rc.Branch, rc.Tags)
}
