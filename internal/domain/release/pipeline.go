package release

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Steps performs the side effects of a release.
type Steps interface {
	WriteVersion(ctx context.Context, version string) error
	Commit(ctx context.Context, version string) error
	Tag(ctx context.Context, version string) error
	Push(ctx context.Context, version string) error
	Publish(ctx context.Context, version string) error
}

// Result reports how a pipeline run ended.
type Result struct {
	Decision *Decision
	Outcome  Outcome
	Final    statekit.StateID
	Path     []statekit.StateID
}

// Pipeline runs a release from evaluation to publication.
type Pipeline struct {
	detector *Detector
	steps    Steps
	policy   Policy
}

// NewPipeline creates a pipeline. Branches outside the versioning scheme abort.
func NewPipeline(detector *Detector, steps Steps) *Pipeline {
	return &Pipeline{
		detector: detector,
		steps:    steps,
		policy:   Policy{RequirePrimaryBranch: true},
	}
}

type stage struct {
	state statekit.StateID
	done  Event
	run   func(context.Context, string) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{StateWriting, EventWritten, p.steps.WriteVersion},
		{StateCommitting, EventCommitted, p.steps.Commit},
		{StateTagging, EventTagged, p.steps.Tag},
		{StatePushing, EventPushed, p.steps.Push},
		{StatePublishing, EventPublished, p.steps.Publish},
	}
}

// Run evaluates rc and executes the remaining steps. A retry run writes the
// already tagged version to the manifest and resumes at publishing; a failing
// step moves the machine to failed and returns its error.
func (p *Pipeline) Run(ctx context.Context, rc *Context) (*Result, error) {
	const op = "release.Pipeline.Run"

	dec, err := Decide(ctx, rc, p.detector, p.policy)
	if err != nil {
		return nil, err
	}

	m, err := NewMachine()
	if err != nil {
		return nil, rperrors.InternalWrap(err, op, "failed to create pipeline machine")
	}
	m.Start()

	res := &Result{Decision: dec, Outcome: dec.Outcome}
	finish := func() *Result {
		res.Final = m.CurrentState()
		res.Path = m.Path()
		return res
	}

	if err := m.Send(dec.Event); err != nil {
		return finish(), err
	}
	if m.CurrentState() == StateResuming {
		// HEAD is the parent of the release commit, so the manifest still
		// holds the previous version. Nothing is committed or tagged again.
		stepErr := ctx.Err()
		if stepErr == nil {
			stepErr = p.steps.WriteVersion(ctx, dec.Version)
		}
		if stepErr != nil {
			_ = m.Send(EventFail)
			res.Outcome = Abortf("%s failed: %v", StateResuming, rperrors.RedactError(stepErr))
			return finish(), rperrors.E(op, fmt.Sprintf("%s step failed", StateResuming), stepErr)
		}
		if err := m.Send(EventResumed); err != nil {
			return finish(), err
		}
	}

	for _, s := range p.stages() {
		if m.IsDone() {
			break
		}
		if m.CurrentState() != s.state {
			continue
		}

		stepErr := ctx.Err()
		if stepErr == nil {
			stepErr = s.run(ctx, dec.Version)
		}
		if stepErr != nil {
			_ = m.Send(EventFail)
			res.Outcome = Abortf("%s failed: %v", s.state, rperrors.RedactError(stepErr))
			return finish(), rperrors.E(op, fmt.Sprintf("%s step failed", s.state), stepErr)
		}

		if err := m.Send(s.done); err != nil {
			return finish(), err
		}
	}

	return finish(), nil
}
