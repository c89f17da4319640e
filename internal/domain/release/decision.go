package release

import (
	"context"
	"fmt"
	"strings"

	"github.com/relicta-tech/ci-tools/internal/domain/version"
)

// Policy tunes Decide for a command.
type Policy struct {
	// RequirePrimaryBranch aborts on branches outside the versioning scheme
	// instead of falling back to a commit pre-release.
	RequirePrimaryBranch bool
}

// Decision is the evaluated plan of a run.
type Decision struct {
	Outcome Outcome
	// Event is what the pipeline machine receives from its initial state.
	Event Event
	// Version is the version to write or resume with.
	Version string
	// Tag is the git tag of Version.
	Tag       string
	Eligible  bool
	Redundant bool
	Retry     bool
	// Warnings collects checks that failed but were overridden by --force.
	Warnings []string
}

// Decide evaluates the release checks in order: redundant run, retry
// detection, dirty working tree, branch eligibility, existing tag and dry run.
func Decide(ctx context.Context, rc *Context, d *Detector, p Policy) (*Decision, error) {
	next, eligible := rc.NextVersion()
	dec := &Decision{Version: next, Eligible: eligible}
	dec.Tag = version.Tag(dec.Version)

	if d.IsRedundantRun(rc) {
		dec.Redundant = true
		return dec.finish(EventRedundant, SkipNoop(fmt.Sprintf("current commit is tagged with %q, nothing to do", rc.CurrentTag()))), nil
	}

	retry, err := d.IsRetryRun(ctx, rc)
	if err != nil {
		return nil, err
	}
	if retry {
		if v, ok := d.PartiallySuccessfulBuildVersion(rc); ok {
			dec.Version = v
			dec.Tag = version.Tag(v)
		}
		dec.Retry = true
	}

	if rc.IsDirty() && !rc.AllowDirtyWorkdir {
		reason := "git workdir is dirty: " + strings.Join(rc.DirtyFiles, ", ")
		if !rc.Force {
			return dec.finish(EventDirty, Abort(reason)), nil
		}
		dec.Warnings = append(dec.Warnings, reason)
	}

	if !eligible && p.RequirePrimaryBranch {
		return dec.finish(EventIneligible, Abortf("branch %q is not one of %s", rc.Branch, strings.Join(version.PrimaryBranches(), ", "))), nil
	}

	if rc.HasTag(dec.Tag) && !dec.Retry {
		reason := fmt.Sprintf("tag %q already exists", dec.Tag)
		if !rc.Force {
			return dec.finish(EventConflict, Abort(reason)), nil
		}
		dec.Warnings = append(dec.Warnings, reason)
	}

	if rc.DryRun {
		return dec.finish(EventDryRun, SkipNoop(fmt.Sprintf("dry run, would release %s", dec.Version))), nil
	}

	if dec.Retry {
		return dec.finish(EventRetry, Continue()), nil
	}
	return dec.finish(EventProceed, Continue()), nil
}

func (d *Decision) finish(ev Event, o Outcome) *Decision {
	d.Event = ev
	d.Outcome = o
	return d
}
