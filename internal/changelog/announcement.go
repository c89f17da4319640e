package changelog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/github"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/template"
)

// LookBack widens the pull request window before the start ref's commit:
// two weeks of feature freeze plus one week for late releases.
const LookBack = 3 * 7 * 24 * time.Hour

// AnnouncementRequest selects what an announcement covers.
type AnnouncementRequest struct {
	Repository string
	// StartRef is the previous version tag; empty for a first release.
	StartRef string
	Version  string
}

// AnnouncedPullRequest is one line of the announcement.
type AnnouncedPullRequest struct {
	Number   int
	Title    string
	URL      string
	Breaking bool
}

// Announcement is the data handed to the announcement template.
type Announcement struct {
	Repository   string
	StartRef     string
	HasStartRef  bool
	Version      string
	NextTag      string
	ReleaseURL   string
	Channel      string
	Breaking     bool
	PullRequests []AnnouncedPullRequest

	// Text is the rendered message.
	Text string
}

// ChannelTitle is the release channel for display, e.g. "Beta".
func (a *Announcement) ChannelTitle() string {
	return cases.Title(language.English).String(a.Channel)
}

// Announce builds the release announcement. Pull requests count when they
// were merged within LookBack of the start ref's commit and their head or
// merge commit is reachable from HEAD but not from the start ref.
func (b *Builder) Announce(ctx context.Context, history sourcecontrol.HistoryReader, req AnnouncementRequest) (*Announcement, error) {
	const op = "changelog.Announce"

	if req.Version == "" {
		return nil, rperrors.Validation(op, "version is required")
	}

	repoURL := "https://github.com/" + req.Repository
	a := &Announcement{
		Repository:  req.Repository,
		StartRef:    req.StartRef,
		HasStartRef: req.StartRef != "",
		Version:     req.Version,
		NextTag:     version.Tag(req.Version),
		Channel:     version.ChannelOfTag(req.Version),
	}
	if a.Channel == "" {
		a.Channel = version.ChannelStable.String()
	}
	a.ReleaseURL = fmt.Sprintf("%s/releases/tag/%s", repoURL, a.NextTag)

	if a.HasStartRef {
		startDate, err := b.source.CommitDate(ctx, req.StartRef)
		if err != nil {
			return nil, err
		}
		since := startDate.Add(-LookBack)

		merged, err := b.source.MergedPullRequestsSince(ctx, since)
		if err != nil {
			return nil, err
		}
		prs, err := onBranch(ctx, history, merged, req.StartRef, since)
		if err != nil {
			return nil, err
		}
		if len(prs) >= AnnouncementThreshold {
			return nil, rperrors.Wrap(&SanityError{What: "merged pull requests", Count: len(prs), Threshold: AnnouncementThreshold},
				rperrors.KindValidation, op, "sanity check failed")
		}

		a.PullRequests = lo.Map(prs, func(pr github.PullRequest, _ int) AnnouncedPullRequest {
			return AnnouncedPullRequest{
				Number:   pr.Number,
				Title:    sanitizeTitle(EnsureSpaceAfterLeadingEmoji(pr.Title)),
				URL:      fmt.Sprintf("%s/pull/%d", repoURL, pr.Number),
				Breaking: IsBreakingChange(pr),
			}
		})
		a.Breaking = lo.SomeBy(a.PullRequests, func(pr AnnouncedPullRequest) bool { return pr.Breaking })
	}

	text, err := b.renderer.Render(ctx, template.Announcement, a)
	if err != nil {
		return nil, err
	}
	a.Text = text
	return a, nil
}

// onBranch keeps the pull requests whose commits are new on HEAD relative
// to startRef.
func onBranch(ctx context.Context, history sourcecontrol.HistoryReader, prs []github.PullRequest, startRef string, since time.Time) ([]github.PullRequest, error) {
	current, err := history.CommitsSince(ctx, "HEAD", since)
	if err != nil {
		return nil, err
	}
	previous, err := history.CommitsSince(ctx, startRef, since)
	if err != nil {
		return nil, err
	}

	fresh := lo.Without(current, previous...)
	newSHAs := lo.SliceToMap(fresh, func(sha string) (string, struct{}) { return sha, struct{}{} })

	return lo.Filter(prs, func(pr github.PullRequest, _ int) bool {
		_, head := newSHAs[pr.HeadSHA]
		_, merge := newSHAs[pr.MergeCommitSHA]
		return head || merge
	}), nil
}

var breakingTitle = regexp.MustCompile(`(?i)^\w+(\([^)]*\))?!:|BREAKING CHANGE`)

// IsBreakingChange reports whether a pull request is labeled as breaking or
// its title says so, either in words or with a conventional commit "!".
func IsBreakingChange(pr github.PullRequest) bool {
	if lo.SomeBy(pr.Labels, func(l string) bool { return strings.Contains(strings.ToLower(l), "breaking") }) {
		return true
	}
	return breakingTitle.MatchString(pr.Title)
}

var emojiWithoutTrailingSpace = regexp.MustCompile(`([\x{1f300}-\x{1f5ff}\x{1f900}-\x{1f9ff}\x{1f600}-\x{1f64f}\x{1f680}-\x{1f6ff}` +
	`\x{2600}-\x{26ff}\x{2700}-\x{27bf}\x{1f1e6}-\x{1f1ff}\x{1f191}-\x{1f251}\x{1f004}\x{1f0cf}\x{1f170}-\x{1f171}` +
	`\x{1f17e}-\x{1f17f}\x{1f18e}\x{3030}\x{2b50}\x{2b55}\x{2934}-\x{2935}\x{2b05}-\x{2b07}\x{2b1b}-\x{2b1c}` +
	`\x{3297}\x{3299}\x{303d}\x{00a9}\x{00ae}\x{2122}\x{23f3}\x{24c2}\x{23e9}-\x{23ef}\x{25b6}\x{23f8}-\x{23fa}])(\S)`)

// EnsureSpaceAfterLeadingEmoji inserts a space between an emoji and the
// character glued to it ("🐛Fix" becomes "🐛 Fix").
func EnsureSpaceAfterLeadingEmoji(text string) string {
	return emojiWithoutTrailingSpace.ReplaceAllString(text, "$1 $2")
}
