// Package changelog assembles the markdown changelog and the Slack release
// announcement from merged pull requests and closed issues.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/github"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/template"
)

// Sanity thresholds. Reaching one means the start ref is probably wrong.
const (
	MergedPullRequestThreshold = 50
	ClosedIssueThreshold       = 50
	AnnouncementThreshold      = 100
)

// ErrSanityCheck is matched by every *SanityError.
var ErrSanityCheck = errors.New("changelog sanity check failed")

// SanityError reports an unexpectedly high number of entries.
type SanityError struct {
	What      string
	Count     int
	Threshold int
}

func (e *SanityError) Error() string {
	return fmt.Sprintf("found an unexpectedly high number of %s: %d (threshold is %d)", e.What, e.Count, e.Threshold)
}

// Is makes errors.Is(err, ErrSanityCheck) true.
func (e *SanityError) Is(target error) bool {
	return target == ErrSanityCheck
}

// Source provides the GitHub data a changelog is built from.
type Source interface {
	CommitDate(ctx context.Context, ref string) (time.Time, error)
	MergedPullRequestsSince(ctx context.Context, since time.Time) ([]github.PullRequest, error)
	ClosedIssuesSince(ctx context.Context, since time.Time) ([]github.Issue, error)
}

// Renderer renders a named template.
type Renderer interface {
	Render(ctx context.Context, name string, data any) (string, error)
}

// Request selects the range a changelog covers.
type Request struct {
	// Repository is "owner/name".
	Repository string
	StartRef   string
	NextTag    string
}

// Changelog is the data handed to the changelog template.
type Changelog struct {
	Repository   string
	StartRef     string
	StartDate    time.Time
	NextTag      string
	Date         time.Time
	PullRequests []github.PullRequest
	Issues       []github.Issue
}

// Builder builds changelogs and announcements.
type Builder struct {
	source   Source
	renderer Renderer
	now      func() time.Time
}

// NewBuilder creates a builder.
func NewBuilder(source Source, renderer Renderer) *Builder {
	return &Builder{source: source, renderer: renderer, now: time.Now}
}

// Collect gathers the pull requests merged and issues closed since the
// commit StartRef points to.
func (b *Builder) Collect(ctx context.Context, req Request) (*Changelog, error) {
	const op = "changelog.Collect"

	if req.StartRef == "" || req.NextTag == "" {
		return nil, rperrors.Validation(op, "start ref and next tag are required")
	}

	startDate, err := b.source.CommitDate(ctx, req.StartRef)
	if err != nil {
		return nil, err
	}

	prs, err := b.source.MergedPullRequestsSince(ctx, startDate)
	if err != nil {
		return nil, err
	}
	if len(prs) >= MergedPullRequestThreshold {
		return nil, rperrors.Wrap(&SanityError{What: "merged pull requests", Count: len(prs), Threshold: MergedPullRequestThreshold},
			rperrors.KindValidation, op, "sanity check failed")
	}

	issues, err := b.source.ClosedIssuesSince(ctx, startDate)
	if err != nil {
		return nil, err
	}
	if len(issues) >= ClosedIssueThreshold {
		return nil, rperrors.Wrap(&SanityError{What: "closed issues", Count: len(issues), Threshold: ClosedIssueThreshold},
			rperrors.KindValidation, op, "sanity check failed")
	}

	return &Changelog{
		Repository:   req.Repository,
		StartRef:     req.StartRef,
		StartDate:    startDate,
		NextTag:      req.NextTag,
		Date:         b.now(),
		PullRequests: prs,
		Issues:       issues,
	}, nil
}

// Markdown collects and renders the changelog.
func (b *Builder) Markdown(ctx context.Context, req Request) (string, error) {
	cl, err := b.Collect(ctx, req)
	if err != nil {
		return "", err
	}
	return b.renderer.Render(ctx, template.Changelog, cl)
}

// sanitizeTitle keeps titles from opening code spans in Slack.
func sanitizeTitle(title string) string {
	return strings.ReplaceAll(title, "`", "'")
}
