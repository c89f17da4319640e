package changelog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/git"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/github"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/template"
)

type fakeSource struct {
	dates  map[string]time.Time
	prs    []github.PullRequest
	issues []github.Issue
	since  []time.Time
	err    error
}

func (f *fakeSource) CommitDate(_ context.Context, ref string) (time.Time, error) {
	d, ok := f.dates[ref]
	if !ok {
		return time.Time{}, rperrors.NotFound("github.CommitDate", "no commit "+ref)
	}
	return d, nil
}

func (f *fakeSource) MergedPullRequestsSince(_ context.Context, since time.Time) ([]github.PullRequest, error) {
	f.since = append(f.since, since)
	return f.prs, f.err
}

func (f *fakeSource) ClosedIssuesSince(_ context.Context, since time.Time) ([]github.Issue, error) {
	return f.issues, nil
}

func newBuilder(t *testing.T, src Source) *Builder {
	t.Helper()
	svc, err := template.NewService()
	require.NoError(t, err)

	b := NewBuilder(src, svc)
	b.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	return b
}

func TestMarkdown(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		dates: map[string]time.Time{"v1.1.0": start},
		prs: []github.PullRequest{
			{Number: 42, Title: "Add dark mode", MergedAt: start.AddDate(0, 0, 3)},
			{Number: 40, Title: "Fix crash", MergedAt: start.AddDate(0, 0, 1)},
		},
		issues: []github.Issue{{Number: 41, Title: "App crashes on start"}},
	}

	got, err := newBuilder(t, src).Markdown(context.Background(), Request{
		Repository: "acme/widget",
		StartRef:   "v1.1.0",
		NextTag:    "v1.2.0-beta1",
	})
	require.NoError(t, err)

	want := `# Changelog v1.2.0-beta1 (2024-03-15)

This changelog covers the changes between [v1.1.0 and v1.2.0-beta1](https://github.com/acme/widget/compare/v1.1.0...v1.2.0-beta1).

For further reference, please refer to the changelog of the previous version, [v1.1.0](https://github.com/acme/widget/releases/tag/v1.1.0).

## Merged Pull Requests

- #42 Add dark mode (merged 2024-03-04)
- #40 Fix crash (merged 2024-03-02)

## Closed Issues

- #41 App crashes on start`
	assert.Equal(t, want, got)
	assert.Equal(t, []time.Time{start}, src.since)
}

func TestMarkdown_Empty(t *testing.T) {
	src := &fakeSource{dates: map[string]time.Time{"v1.0.0": time.Now()}}

	got, err := newBuilder(t, src).Markdown(context.Background(), Request{
		Repository: "acme/widget",
		StartRef:   "v1.0.0",
		NextTag:    "v1.0.1",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "## Merged Pull Requests\n\n- none\n\n## Closed Issues\n\n- none")
}

func TestCollect_SanityChecks(t *testing.T) {
	many := func(n int) []github.PullRequest {
		prs := make([]github.PullRequest, n)
		for i := range prs {
			prs[i] = github.PullRequest{Number: i + 1}
		}
		return prs
	}
	manyIssues := make([]github.Issue, ClosedIssueThreshold)

	tests := []struct {
		name   string
		prs    []github.PullRequest
		issues []github.Issue
		what   string
	}{
		{"pull requests", many(MergedPullRequestThreshold), nil, "merged pull requests"},
		{"issues", many(3), manyIssues, "closed issues"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{dates: map[string]time.Time{"v1.0.0": time.Now()}, prs: tt.prs, issues: tt.issues}

			_, err := newBuilder(t, src).Collect(context.Background(), Request{StartRef: "v1.0.0", NextTag: "v1.1.0"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSanityCheck))

			var sanity *SanityError
			require.True(t, errors.As(err, &sanity))
			assert.Equal(t, tt.what, sanity.What)
		})
	}

	src := &fakeSource{dates: map[string]time.Time{"v1.0.0": time.Now()}, prs: many(MergedPullRequestThreshold - 1)}
	_, err := newBuilder(t, src).Collect(context.Background(), Request{StartRef: "v1.0.0", NextTag: "v1.1.0"})
	assert.NoError(t, err)
}

func TestCollect_Errors(t *testing.T) {
	b := newBuilder(t, &fakeSource{})

	_, err := b.Collect(context.Background(), Request{NextTag: "v1.0.0"})
	assert.True(t, rperrors.IsKind(err, rperrors.KindValidation))

	_, err = b.Collect(context.Background(), Request{StartRef: "v0.9.0", NextTag: "v1.0.0"})
	assert.True(t, rperrors.IsKind(err, rperrors.KindNotFound))

	src := &fakeSource{dates: map[string]time.Time{"v1.0.0": time.Now()}, err: fmt.Errorf("api down")}
	_, err = newBuilder(t, src).Collect(context.Background(), Request{StartRef: "v1.0.0", NextTag: "v1.1.0"})
	assert.EqualError(t, err, "api down")
}

func TestAnnounce(t *testing.T) {
	repo := git.NewMemoryRepository("beta")
	repo.AddTag("v1.1.0")
	fix := repo.AddCommit("Merge pull request #7")
	feature := repo.AddCommit("Merge pull request #8")
	tagDate, err := repo.CommitDate("v1.1.0")
	require.NoError(t, err)
	root, err := repo.ResolveSHA(context.Background(), "v1.1.0")
	require.NoError(t, err)

	src := &fakeSource{
		dates: map[string]time.Time{"v1.1.0": tagDate},
		prs: []github.PullRequest{
			{Number: 8, Title: "🚀Add `export` command", MergeCommitSHA: feature, Labels: []string{"Breaking Change"}},
			{Number: 7, Title: "🐛 Fix login", HeadSHA: fix},
			{Number: 5, Title: "Already released", MergeCommitSHA: root},
		},
	}

	a, err := newBuilder(t, src).Announce(context.Background(), repo, AnnouncementRequest{
		Repository: "acme/widget",
		StartRef:   "v1.1.0",
		Version:    "1.2.0-beta2",
	})
	require.NoError(t, err)

	want := `*v1.2.0-beta2* was released!

Please note there are *BREAKING CHANGES*:

- <https://github.com/acme/widget/pull/8|#8> *BREAKING CHANGE:* 🚀 Add 'export' command
- <https://github.com/acme/widget/pull/7|#7> 🐛 Fix login

Please see the <https://github.com/acme/widget/releases/tag/v1.2.0-beta2|full CHANGELOG> for details.`
	assert.Equal(t, want, a.Text)
	assert.Equal(t, "beta", a.Channel)
	assert.Equal(t, "Beta", a.ChannelTitle())
	assert.Equal(t, []time.Time{tagDate.Add(-LookBack)}, src.since)
}

func TestAnnounce_FirstRelease(t *testing.T) {
	a, err := newBuilder(t, &fakeSource{}).Announce(context.Background(), git.NewMemoryRepository("master"), AnnouncementRequest{
		Repository: "acme/widget",
		Version:    "1.0.0",
	})
	require.NoError(t, err)

	assert.Equal(t, "*v1.0.0* was released!\n\nPlease see the <https://github.com/acme/widget/releases/tag/v1.0.0|full CHANGELOG> for details.", a.Text)
	assert.Equal(t, "Stable", a.ChannelTitle())
}

func TestAnnounce_NoBreakingChanges(t *testing.T) {
	repo := git.NewMemoryRepository("develop")
	repo.AddTag("v1.0.0")
	sha := repo.AddCommit("change")
	tagDate, _ := repo.CommitDate("v1.0.0")

	src := &fakeSource{
		dates: map[string]time.Time{"v1.0.0": tagDate},
		prs:   []github.PullRequest{{Number: 3, Title: "Tweak docs", MergeCommitSHA: sha}},
	}
	a, err := newBuilder(t, src).Announce(context.Background(), repo, AnnouncementRequest{
		Repository: "acme/widget",
		StartRef:   "v1.0.0",
		Version:    "1.1.0-alpha1",
	})
	require.NoError(t, err)
	assert.Contains(t, a.Text, "The new version includes the following changes:\n\n- <https://github.com/acme/widget/pull/3|#3> Tweak docs\n\n")
	assert.False(t, a.Breaking)
	assert.Equal(t, "alpha", a.Channel)
}

func TestIsBreakingChange(t *testing.T) {
	tests := []struct {
		pr   github.PullRequest
		want bool
	}{
		{github.PullRequest{Title: "feat!: drop node 14"}, true},
		{github.PullRequest{Title: "refactor(api)!: rename endpoints"}, true},
		{github.PullRequest{Title: "Remove legacy API (BREAKING CHANGE)"}, true},
		{github.PullRequest{Title: "Bump deps", Labels: []string{"breaking"}}, true},
		{github.PullRequest{Title: "feat: add thing", Labels: []string{"enhancement"}}, false},
		{github.PullRequest{Title: "Wow! Faster builds"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.pr.Title, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBreakingChange(tt.pr))
		})
	}
}

func TestEnsureSpaceAfterLeadingEmoji(t *testing.T) {
	tests := map[string]string{
		"🐛Fix login":  "🐛 Fix login",
		"🐛 Fix login": "🐛 Fix login",
		"✨New":        "✨ New",
		"No emoji":    "No emoji",
	}
	for in, want := range tests {
		assert.Equal(t, want, EnsureSpaceAfterLeadingEmoji(in), in)
	}
}
