package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v60/github"
	"github.com/samber/lo"

	"github.com/relicta-tech/ci-tools/internal/infrastructure/resilience"
)

const pageSize = 100

// PullRequest is a merged pull request.
type PullRequest struct {
	Number         int
	Title          string
	MergedAt       time.Time
	HeadSHA        string
	MergeCommitSHA string
	Labels         []string
}

// Issue is a closed issue.
type Issue struct {
	Number int
	Title  string
}

// CommitDate returns the committer date of ref as GitHub reports it.
func (c *Client) CommitDate(ctx context.Context, ref string) (time.Time, error) {
	const op = "github.CommitDate"

	commit, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (*gh.RepositoryCommit, error) {
		rc, _, err := c.api.Repositories.GetCommit(ctx, c.owner, c.repo, ref, nil)
		return rc, err
	})
	if err != nil {
		return time.Time{}, apiError(err, op, fmt.Sprintf("failed to get commit %s", ref))
	}
	return commit.GetCommit().GetCommitter().GetDate().Time, nil
}

// MergedPullRequestsSince returns the pull requests merged after since.
// Closed pull requests are paged newest first until a page contains none
// merged after since.
func (c *Client) MergedPullRequestsSince(ctx context.Context, since time.Time) ([]PullRequest, error) {
	const op = "github.MergedPullRequestsSince"

	var merged []PullRequest
	opts := &gh.PullRequestListOptions{
		State:       "closed",
		ListOptions: gh.ListOptions{PerPage: pageSize, Page: 1},
	}
	for {
		type page struct {
			prs  []*gh.PullRequest
			next int
		}
		p, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (page, error) {
			prs, resp, err := c.api.PullRequests.List(ctx, c.owner, c.repo, opts)
			if err != nil {
				return page{}, err
			}
			return page{prs: prs, next: resp.NextPage}, nil
		})
		if err != nil {
			return nil, apiError(err, op, "failed to list pull requests")
		}

		found := lo.FilterMap(p.prs, func(pr *gh.PullRequest, _ int) (PullRequest, bool) {
			if pr.MergedAt == nil || !pr.GetMergedAt().After(since) {
				return PullRequest{}, false
			}
			return PullRequest{
				Number:         pr.GetNumber(),
				Title:          pr.GetTitle(),
				MergedAt:       pr.GetMergedAt().Time,
				HeadSHA:        pr.GetHead().GetSHA(),
				MergeCommitSHA: pr.GetMergeCommitSHA(),
				Labels:         lo.Map(pr.Labels, func(l *gh.Label, _ int) string { return l.GetName() }),
			}, true
		})
		merged = append(merged, found...)

		if len(found) == 0 || p.next == 0 {
			return merged, nil
		}
		opts.Page = p.next
	}
}

// ClosedIssuesSince returns the issues closed or updated after since,
// excluding pull requests.
func (c *Client) ClosedIssuesSince(ctx context.Context, since time.Time) ([]Issue, error) {
	const op = "github.ClosedIssuesSince"

	var issues []Issue
	opts := &gh.IssueListByRepoOptions{
		State:       "closed",
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: pageSize, Page: 1},
	}
	for {
		type page struct {
			issues []*gh.Issue
			next   int
		}
		p, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (page, error) {
			list, resp, err := c.api.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
			if err != nil {
				return page{}, err
			}
			return page{issues: list, next: resp.NextPage}, nil
		})
		if err != nil {
			return nil, apiError(err, op, "failed to list issues")
		}

		issues = append(issues, lo.FilterMap(p.issues, func(i *gh.Issue, _ int) (Issue, bool) {
			return Issue{Number: i.GetNumber(), Title: i.GetTitle()}, !i.IsPullRequest()
		})...)

		if p.next == 0 {
			return issues, nil
		}
		opts.Page = p.next
	}
}
