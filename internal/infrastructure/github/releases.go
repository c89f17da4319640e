package github

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gh "github.com/google/go-github/v60/github"
	"golang.org/x/sync/errgroup"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/resilience"
)

// Release is the subset of a GitHub release the commands use.
type Release struct {
	ID         int64
	TagName    string
	Name       string
	Body       string
	Draft      bool
	Prerelease bool
	HTMLURL    string
}

func fromAPI(r *gh.RepositoryRelease) *Release {
	return &Release{
		ID:         r.GetID(),
		TagName:    r.GetTagName(),
		Name:       r.GetName(),
		Body:       r.GetBody(),
		Draft:      r.GetDraft(),
		Prerelease: r.GetPrerelease(),
		HTMLURL:    r.GetHTMLURL(),
	}
}

// ReleaseInput describes a release to create.
type ReleaseInput struct {
	TagName string
	Name    string
	Body    string
	// Target is the commitish the tag is created from when it does not exist.
	Target     string
	Draft      bool
	Prerelease bool
}

// ReleaseByTag returns the release for tag, or nil if there is none.
func (c *Client) ReleaseByTag(ctx context.Context, tag string) (*Release, error) {
	const op = "github.ReleaseByTag"

	var missing bool
	r, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (*gh.RepositoryRelease, error) {
		rel, _, err := c.api.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
		if isNotFound(err) {
			missing = true
			return nil, nil
		}
		return rel, err
	})
	if err != nil {
		return nil, apiError(err, op, fmt.Sprintf("failed to get release %s", tag))
	}
	if missing || r == nil {
		return nil, nil
	}
	return fromAPI(r), nil
}

// CreateRelease creates a release.
func (c *Client) CreateRelease(ctx context.Context, in ReleaseInput) (*Release, error) {
	const op = "github.CreateRelease"

	if in.TagName == "" {
		return nil, rperrors.Validation(op, "tag name is required")
	}

	req := &gh.RepositoryRelease{
		TagName:    gh.String(in.TagName),
		Name:       gh.String(in.Name),
		Body:       gh.String(in.Body),
		Draft:      gh.Bool(in.Draft),
		Prerelease: gh.Bool(in.Prerelease),
	}
	if in.Target != "" {
		req.TargetCommitish = gh.String(in.Target)
	}

	r, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (*gh.RepositoryRelease, error) {
		rel, _, err := c.api.Repositories.CreateRelease(ctx, c.owner, c.repo, req)
		return rel, err
	})
	if err != nil {
		return nil, apiError(err, op, fmt.Sprintf("failed to create release %s", in.TagName))
	}
	return fromAPI(r), nil
}

// EditRelease replaces the title and text of release id.
func (c *Client) EditRelease(ctx context.Context, id int64, name, body string) (*Release, error) {
	const op = "github.EditRelease"

	req := &gh.RepositoryRelease{
		Name: gh.String(name),
		Body: gh.String(body),
	}
	r, err := resilience.Do(ctx, c.policy, func(ctx context.Context) (*gh.RepositoryRelease, error) {
		rel, _, err := c.api.Repositories.EditRelease(ctx, c.owner, c.repo, id, req)
		return rel, err
	})
	if err != nil {
		return nil, apiError(err, op, fmt.Sprintf("failed to update release %d", id))
	}
	return fromAPI(r), nil
}

// AssetName is the name a file is uploaded under: its base name with the
// first space replaced by an underscore.
func AssetName(path string) string {
	return strings.Replace(filepath.Base(path), " ", "_", 1)
}

// AssetContentType guesses the media type from the extension, falling back
// to text/plain.
func AssetContentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "text/plain"
}

// ExpandAssets resolves glob patterns to files. Patterns that are plain paths
// are kept even if no glob matched, so the upload reports the missing file.
func ExpandAssets(patterns []string) ([]string, error) {
	const op = "github.ExpandAssets"

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, rperrors.ValidationWrap(err, op, fmt.Sprintf("invalid asset pattern %q", pattern))
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

// UploadAssets uploads files to release id concurrently and returns the
// asset names in input order.
func (c *Client) UploadAssets(ctx context.Context, id int64, files []string) ([]string, error) {
	names := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			name, err := c.uploadAsset(ctx, id, path)
			if err != nil {
				return err
			}
			names[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) uploadAsset(ctx context.Context, id int64, path string) (string, error) {
	const op = "github.UploadAsset"

	info, err := os.Stat(path)
	if err != nil {
		return "", rperrors.IOWrap(err, op, fmt.Sprintf("cannot read asset %s", path))
	}
	if info.IsDir() {
		return "", rperrors.Validation(op, fmt.Sprintf("asset %s is a directory", path))
	}

	name := AssetName(path)
	opts := &gh.UploadOptions{Name: name, MediaType: AssetContentType(path)}

	err = resilience.Run(ctx, c.policy, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return rperrors.IOWrap(err, op, fmt.Sprintf("cannot open asset %s", path))
		}
		defer f.Close()

		_, _, err = c.api.Repositories.UploadReleaseAsset(ctx, c.owner, c.repo, id, opts, f)
		return err
	})
	if err != nil {
		if rperrors.IsKind(err, rperrors.KindIO) {
			return "", err
		}
		return "", apiError(err, op, fmt.Sprintf("failed to upload %s", name))
	}
	return name, nil
}
