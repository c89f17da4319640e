package release

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

func TestLoadContext(t *testing.T) {
	t.Parallel()

	repo := &stubRepository{
		branch: "develop",
		tags:   []string{"v1.2.0-alpha2", "v1.2.0-alpha1"},
		shas:   fakeResolver{"HEAD": "abc123"},
		atHead: []string{"v1.2.0-alpha2"},
		dirty:  []string{"README.md"},
	}
	m := &stubManifest{version: "1.2.0-alpha2"}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	rc, err := LoadContext(context.Background(), Options{
		WorkDir: "/work",
		Force:   true,
		Now:     func() time.Time { return now },
	}, repo, m)
	require.NoError(t, err)

	assert.NotEmpty(t, rc.RunID)
	assert.Equal(t, "/work", rc.WorkDir)
	assert.Equal(t, "1.2.0-alpha2", rc.ManifestVersion)
	assert.Equal(t, "develop", rc.Branch)
	assert.Equal(t, "abc123", rc.HeadSHA)
	assert.Equal(t, now, rc.Now)
	assert.True(t, rc.Force)
	assert.True(t, rc.IsDirty())
	assert.True(t, rc.IsHeadTagged("v1.2.0-alpha2"))
	assert.Equal(t, "v1.2.0-alpha2", rc.CurrentTag())
}

func TestLoadContextBranchOverride(t *testing.T) {
	t.Parallel()

	repo := &stubRepository{branch: "HEAD-detached", shas: fakeResolver{"HEAD": "abc"}}
	rc, err := LoadContext(context.Background(), Options{Branch: "beta"}, repo, &stubManifest{version: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "beta", rc.Branch)
}

func TestLoadContextDetectedEmptyBranch(t *testing.T) {
	t.Parallel()

	repo := &stubRepository{branch: "develop", shas: fakeResolver{"HEAD": "abc"}}
	rc, err := LoadContext(context.Background(), Options{BranchDetected: true}, repo, &stubManifest{version: "1.2.0"})
	require.NoError(t, err)
	assert.Empty(t, rc.Branch)
}

func TestLoadContextResolveFailure(t *testing.T) {
	t.Parallel()

	_, err := LoadContext(context.Background(), Options{}, &stubRepository{branch: "develop"}, &stubManifest{version: "1.0.0"})
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindGit))
}

func TestContextNextVersion(t *testing.T) {
	t.Parallel()

	rc := newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha3")
	next, eligible := rc.NextVersion()
	assert.True(t, eligible)
	assert.Equal(t, "1.2.0-alpha4", next)

	rc = newTestContext("1.2.0-alpha3", "feature/login")
	next, eligible = rc.NextVersion()
	assert.False(t, eligible)
	assert.Equal(t, "1.2.0-feature-head00-0", next)
}

func TestContextPreviousStableTag(t *testing.T) {
	t.Parallel()

	rc := newTestContext("2.0.0-beta1", "beta", "v2.0.0-alpha1", "v1.9.0", "v1.10.0")
	tag, ok := rc.PreviousStableTag()
	require.True(t, ok)
	assert.Equal(t, "v1.10.0", tag)
}

func TestDetectorIsRedundantRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  string
		branch   string
		tags     []string
		atHead   []string
		expected bool
	}{
		{
			name:     "bot push on develop",
			version:  "1.2.0-alpha4",
			branch:   "develop",
			tags:     []string{"v1.2.0-alpha4", "v1.2.0-alpha3"},
			atHead:   []string{"v1.2.0-alpha4"},
			expected: true,
		},
		{
			name:     "bot push on master",
			version:  "1.2.0",
			branch:   "master",
			tags:     []string{"v1.2.0"},
			atHead:   []string{"v1.2.0"},
			expected: true,
		},
		{
			name:     "dotted pre-release is the same channel",
			version:  "1.2.0-alpha.4",
			branch:   "develop",
			tags:     []string{"v1.2.0-alpha.4"},
			atHead:   []string{"v1.2.0-alpha.4"},
			expected: true,
		},
		{
			name:     "merge of alpha into beta changes channel",
			version:  "1.2.0-alpha4",
			branch:   "beta",
			tags:     []string{"v1.2.0-alpha4"},
			atHead:   []string{"v1.2.0-alpha4"},
			expected: false,
		},
		{
			name:     "head not tagged",
			version:  "1.2.0-alpha4",
			branch:   "develop",
			tags:     []string{"v1.2.0-alpha4"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := newTestContext(tt.version, tt.branch, tt.tags...)
			rc.TagsAtHead = tt.atHead
			assert.Equal(t, tt.expected, NewDetector(fakeResolver{}).IsRedundantRun(rc))
		})
	}
}

func TestDetectorIsRetryRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  string
		branch   string
		tags     []string
		shas     fakeResolver
		expected bool
	}{
		{
			name:     "tag on child of head",
			version:  "1.2.0-alpha3",
			branch:   "develop",
			tags:     []string{"v1.2.0-alpha4", "v1.2.0-alpha3"},
			shas:     fakeResolver{"HEAD": "aaa", "v1.2.0-alpha4^": "aaa"},
			expected: true,
		},
		{
			name:     "tag elsewhere",
			version:  "1.2.0-alpha3",
			branch:   "develop",
			tags:     []string{"v1.2.0-alpha4"},
			shas:     fakeResolver{"HEAD": "bbb", "v1.2.0-alpha4^": "aaa"},
			expected: false,
		},
		{
			name:     "no pre-release yet",
			version:  "1.3.0",
			branch:   "develop",
			tags:     []string{"v1.2.0"},
			shas:     fakeResolver{"HEAD": "aaa"},
			expected: false,
		},
		{
			name:     "stable retry",
			version:  "1.3.0-beta2",
			branch:   "master",
			tags:     []string{"v1.3.0", "v1.3.0-beta2"},
			shas:     fakeResolver{"HEAD": "ccc", "v1.3.0^": "ccc"},
			expected: true,
		},
		{
			name:     "tag on root commit",
			version:  "1.0.0",
			branch:   "master",
			tags:     []string{"v1.0.0"},
			shas:     fakeResolver{"HEAD": "ccc"},
			expected: false,
		},
		{
			name:     "non-primary branch",
			version:  "1.0.0",
			branch:   "feature/x",
			tags:     []string{"v1.0.0"},
			shas:     fakeResolver{"HEAD": "ccc", "v1.0.0^": "ccc"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := newTestContext(tt.version, tt.branch, tt.tags...)
			got, err := NewDetector(tt.shas).IsRetryRun(context.Background(), rc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDetectorIsRetryRunResolveError(t *testing.T) {
	t.Parallel()

	rc := newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha4")
	_, err := NewDetector(fakeResolver{}).IsRetryRun(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindGit))
}

func TestDecideRedundantBeforeRetry(t *testing.T) {
	t.Parallel()

	rc := withHeadTags(newTestContext("1.2.0-alpha4", "develop", "v1.2.0-alpha4", "v1.2.0-alpha3"), "v1.2.0-alpha4")
	resolver := failingResolver{err: rperrors.Git("git.ResolveSHA", "object store unavailable")}

	dec, err := Decide(context.Background(), rc, NewDetector(resolver), Policy{})
	require.NoError(t, err)
	assert.True(t, dec.Redundant)
	assert.False(t, dec.Retry)
	assert.Equal(t, EventRedundant, dec.Event)
	assert.True(t, dec.Outcome.IsSkip())
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		rc          *Context
		shas        fakeResolver
		policy      Policy
		wantEvent   Event
		wantKind    OutcomeKind
		wantVersion string
		wantWarns   int
	}{
		{
			name:        "proceed on develop",
			rc:          newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha3"),
			shas:        fakeResolver{"HEAD": "h1", "v1.2.0-alpha3^": "h0"},
			wantEvent:   EventProceed,
			wantKind:    OutcomeContinue,
			wantVersion: "1.2.0-alpha4",
		},
		{
			name:        "redundant run",
			rc:          withHeadTags(newTestContext("1.2.0-alpha4", "develop", "v1.2.0-alpha4"), "v1.2.0-alpha4"),
			shas:        fakeResolver{"HEAD": "h1", "v1.2.0-alpha4^": "h0"},
			wantEvent:   EventRedundant,
			wantKind:    OutcomeSkip,
			wantVersion: "1.2.0-alpha5",
		},
		{
			name:        "retry resumes with tagged version",
			rc:          newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha4", "v1.2.0-alpha3"),
			shas:        fakeResolver{"HEAD": "h1", "v1.2.0-alpha4^": "h1"},
			wantEvent:   EventRetry,
			wantKind:    OutcomeContinue,
			wantVersion: "1.2.0-alpha4",
		},
		{
			name:        "dirty workdir",
			rc:          withDirty(newTestContext("1.2.0", "master"), false, false),
			shas:        fakeResolver{"HEAD": "h1"},
			wantEvent:   EventDirty,
			wantKind:    OutcomeAbort,
			wantVersion: "1.2.0",
		},
		{
			name:        "dirty workdir allowed",
			rc:          withDirty(newTestContext("1.2.0", "master"), true, false),
			shas:        fakeResolver{"HEAD": "h1"},
			wantEvent:   EventProceed,
			wantKind:    OutcomeContinue,
			wantVersion: "1.2.0",
		},
		{
			name:        "dirty workdir forced",
			rc:          withDirty(newTestContext("1.2.0", "master"), false, true),
			shas:        fakeResolver{"HEAD": "h1"},
			wantEvent:   EventProceed,
			wantKind:    OutcomeContinue,
			wantVersion: "1.2.0",
			wantWarns:   1,
		},
		{
			name:        "ineligible branch",
			rc:          newTestContext("1.2.0", "feature/x"),
			shas:        fakeResolver{"HEAD": "h1"},
			policy:      Policy{RequirePrimaryBranch: true},
			wantEvent:   EventIneligible,
			wantKind:    OutcomeAbort,
			wantVersion: "1.2.0-feature-head00-0",
		},
		{
			name:        "fallback pre-release on feature branch",
			rc:          newTestContext("1.2.0", "feature/x"),
			shas:        fakeResolver{"HEAD": "h1"},
			wantEvent:   EventProceed,
			wantKind:    OutcomeContinue,
			wantVersion: "1.2.0-feature-head00-0",
		},
		{
			name:        "existing stable tag",
			rc:          newTestContext("1.2.0", "master", "v1.2.0"),
			shas:        fakeResolver{"HEAD": "h1", "v1.2.0^": "h0"},
			wantEvent:   EventConflict,
			wantKind:    OutcomeAbort,
			wantVersion: "1.2.0",
		},
		{
			name:        "existing stable tag forced",
			rc:          withForce(newTestContext("1.2.0", "master", "v1.2.0")),
			shas:        fakeResolver{"HEAD": "h1", "v1.2.0^": "h0"},
			wantEvent:   EventProceed,
			wantKind:    OutcomeContinue,
			wantVersion: "1.2.0",
			wantWarns:   1,
		},
		{
			name:        "dry run",
			rc:          withDryRun(newTestContext("1.2.0-beta1", "beta", "v1.2.0-beta1")),
			shas:        fakeResolver{"HEAD": "h1", "v1.2.0-beta1^": "h0"},
			wantEvent:   EventDryRun,
			wantKind:    OutcomeSkip,
			wantVersion: "1.2.0-beta2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dec, err := Decide(context.Background(), tt.rc, NewDetector(tt.shas), tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, dec.Event)
			assert.Equal(t, tt.wantKind, dec.Outcome.Kind, dec.Outcome.String())
			assert.Equal(t, tt.wantVersion, dec.Version)
			assert.Equal(t, "v"+tt.wantVersion, dec.Tag)
			assert.Len(t, dec.Warnings, tt.wantWarns)
		})
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rc        *Context
		shas      fakeResolver
		wantFinal statekit.StateID
		wantPath  []statekit.StateID
		wantCalls []string
	}{
		{
			name:      "full release",
			rc:        newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha3"),
			shas:      fakeResolver{"HEAD": "h1", "v1.2.0-alpha3^": "h0"},
			wantFinal: StateDone,
			wantPath:  []statekit.StateID{StateEvaluating, StateWriting, StateCommitting, StateTagging, StatePushing, StatePublishing, StateDone},
			wantCalls: []string{"write", "commit", "tag", "push", "publish"},
		},
		{
			name:      "retry rewrites the manifest and publishes",
			rc:        newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha4"),
			shas:      fakeResolver{"HEAD": "h1", "v1.2.0-alpha4^": "h1"},
			wantFinal: StateDone,
			wantPath:  []statekit.StateID{StateEvaluating, StateResuming, StatePublishing, StateDone},
			wantCalls: []string{"write", "publish"},
		},
		{
			name:      "redundant run skips",
			rc:        withHeadTags(newTestContext("1.2.0", "master", "v1.2.0"), "v1.2.0"),
			shas:      fakeResolver{"HEAD": "h1", "v1.2.0^": "h0"},
			wantFinal: StateSkipped,
			wantPath:  []statekit.StateID{StateEvaluating, StateSkipped},
		},
		{
			name:      "ineligible branch aborts",
			rc:        newTestContext("1.2.0", "hotfix/1"),
			shas:      fakeResolver{"HEAD": "h1"},
			wantFinal: StateAborted,
			wantPath:  []statekit.StateID{StateEvaluating, StateAborted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			steps := &recordingSteps{}
			res, err := NewPipeline(NewDetector(tt.shas), steps).Run(context.Background(), tt.rc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFinal, res.Final)
			assert.Equal(t, tt.wantPath, res.Path)
			assert.Equal(t, tt.wantCalls, steps.calls)
		})
	}
}

func TestPipelineRunStepFailure(t *testing.T) {
	t.Parallel()

	steps := &recordingSteps{failOn: "push", err: rperrors.Git("git.Push", "rejected")}
	rc := newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha3")

	res, err := NewPipeline(NewDetector(fakeResolver{"HEAD": "h1"}), steps).Run(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindGit))
	assert.Equal(t, StateFailed, res.Final)
	assert.True(t, res.Outcome.IsAbort())
	assert.Equal(t, []string{"write", "commit", "tag", "push"}, steps.calls)
}

func TestPipelineRunRetryWritesTaggedVersion(t *testing.T) {
	t.Parallel()

	steps := &versionSteps{}
	rc := newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha4", "v1.2.0-alpha3")

	res, err := NewPipeline(NewDetector(fakeResolver{"HEAD": "h1", "v1.2.0-alpha4^": "h1"}), steps).Run(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, res.Decision.Retry)
	assert.Equal(t, []string{"write 1.2.0-alpha4", "publish 1.2.0-alpha4"}, steps.calls)
}

func TestPipelineRunRetryWriteFailure(t *testing.T) {
	t.Parallel()

	steps := &recordingSteps{failOn: "write", err: rperrors.Manifest("manifest.Write", "read-only")}
	rc := newTestContext("1.2.0-alpha3", "develop", "v1.2.0-alpha4")

	res, err := NewPipeline(NewDetector(fakeResolver{"HEAD": "h1", "v1.2.0-alpha4^": "h1"}), steps).Run(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindManifest))
	assert.Equal(t, StateFailed, res.Final)
	assert.True(t, res.Outcome.IsAbort())
	assert.Equal(t, []string{"write"}, steps.calls)
}

func TestPipelineRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps := &recordingSteps{}
	rc := newTestContext("1.2.0", "master")
	res, err := NewPipeline(NewDetector(fakeResolver{"HEAD": "h1"}), steps).Run(ctx, rc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateFailed, res.Final)
	assert.Empty(t, steps.calls)
}

func TestMachineRejectsUnknownEvent(t *testing.T) {
	t.Parallel()

	m, err := NewMachine()
	require.NoError(t, err)
	m.Start()

	err = m.Send(EventTagged)
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindState))
	assert.Equal(t, StateEvaluating, m.CurrentState())
}

func TestMachineTransitions(t *testing.T) {
	t.Parallel()

	for _, tr := range Transitions {
		if tr.From != StateEvaluating {
			continue
		}
		m, err := NewMachine()
		require.NoError(t, err)
		m.Start()
		require.NoError(t, m.Send(tr.Event), tr.Event)
		assert.Equal(t, tr.To, m.CurrentState(), tr.Event)
	}
}

func TestExportXStateJSON(t *testing.T) {
	t.Parallel()

	data, err := ExportXStateJSON()
	require.NoError(t, err)

	var doc XStateJSON
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "evaluating", doc.Initial)
	assert.Equal(t, "final", doc.States["done"].Type)
	assert.Equal(t, "resuming", doc.States["evaluating"].On["RETRY"].Target)
	assert.Len(t, doc.States, 11)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "continue", Continue().String())
	assert.Equal(t, "skip: nothing to do", SkipNoop("nothing to do").String())
	assert.True(t, strings.HasPrefix(Abortf("tag %q exists", "v1").String(), "abort: "))
}

func withHeadTags(rc *Context, tags ...string) *Context {
	rc.TagsAtHead = tags
	return rc
}

func withDirty(rc *Context, allow, force bool) *Context {
	rc.DirtyFiles = []string{"package.json"}
	rc.AllowDirtyWorkdir = allow
	rc.Force = force
	return rc
}

func withForce(rc *Context) *Context {
	rc.Force = true
	return rc
}

func withDryRun(rc *Context) *Context {
	rc.DryRun = true
	return rc
}
