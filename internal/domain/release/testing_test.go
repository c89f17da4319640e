package release

import (
	"context"
	"time"

	"github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
)

// fakeResolver maps revisions to SHAs.
type fakeResolver map[string]string

func (f fakeResolver) ResolveSHA(_ context.Context, ref string) (string, error) {
	if sha, ok := f[ref]; ok {
		return sha, nil
	}
	return "", sourcecontrol.ErrRefNotFound
}

// failingResolver fails every lookup with err.
type failingResolver struct {
	err error
}

func (f failingResolver) ResolveSHA(context.Context, string) (string, error) {
	return "", f.err
}

// stubRepository answers the read calls LoadContext makes.
type stubRepository struct {
	sourcecontrol.Repository

	branch string
	tags   []string
	shas   fakeResolver
	atHead []string
	dirty  []string
}

func (s *stubRepository) CurrentBranch(context.Context) (string, error) { return s.branch, nil }
func (s *stubRepository) ListTags(context.Context) ([]string, error) { return s.tags, nil }
func (s *stubRepository) ResolveSHA(ctx context.Context, ref string) (string, error) {
	return s.shas.ResolveSHA(ctx, ref)
}
func (s *stubRepository) TagsPointingAt(context.Context, string) ([]string, error) {
	return s.atHead, nil
}
func (s *stubRepository) DirtyFiles(context.Context) ([]string, error) { return s.dirty, nil }

type stubManifest struct {
	version string
}

func (s *stubManifest) Mode() manifest.Mode { return manifest.ModeNode }
func (s *stubManifest) Read(context.Context) (string, error) { return s.version, nil }
func (s *stubManifest) Write(_ context.Context, v string) error { s.version = v; return nil }
func (s *stubManifest) ProductName(context.Context) (string, error) { return "demo", nil }
func (s *stubManifest) Files() []string { return []string{"package.json"} }

// recordingSteps records which pipeline steps ran.
type recordingSteps struct {
	calls  []string
	failOn string
	err    error
}

func (r *recordingSteps) do(name string) error {
	r.calls = append(r.calls, name)
	if name == r.failOn {
		return r.err
	}
	return nil
}

func (r *recordingSteps) WriteVersion(context.Context, string) error { return r.do("write") }
func (r *recordingSteps) Commit(context.Context, string) error { return r.do("commit") }
func (r *recordingSteps) Tag(context.Context, string) error { return r.do("tag") }
func (r *recordingSteps) Push(context.Context, string) error { return r.do("push") }
func (r *recordingSteps) Publish(context.Context, string) error { return r.do("publish") }

// versionSteps records each step with the version it received.
type versionSteps struct {
	calls []string
}

func (v *versionSteps) record(name, version string) error {
	v.calls = append(v.calls, name+" "+version)
	return nil
}

func (v *versionSteps) WriteVersion(_ context.Context, ver string) error { return v.record("write", ver) }
func (v *versionSteps) Commit(_ context.Context, ver string) error       { return v.record("commit", ver) }
func (v *versionSteps) Tag(_ context.Context, ver string) error          { return v.record("tag", ver) }
func (v *versionSteps) Push(_ context.Context, ver string) error         { return v.record("push", ver) }
func (v *versionSteps) Publish(_ context.Context, ver string) error      { return v.record("publish", ver) }

func newTestContext(manifestVersion, branch string, tags ...string) *Context {
	return &Context{
		RunID:           "test-run",
		Mode:            manifest.ModeNode,
		ManifestVersion: manifestVersion,
		Branch:          branch,
		Tags:            tags,
		HeadSHA:         "head000",
		Now:             time.UnixMilli(0),
	}
}
