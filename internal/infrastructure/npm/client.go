package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/lo"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/resilience"
)

// errNotVisible marks a published version the registry does not list yet.
var errNotVisible = errors.New("version not yet listed by the registry")

// RegistryInfo is the subset of `npm view --json <name>`.
type RegistryInfo struct {
	Name     string            `json:"name"`
	Versions []string          `json:"versions"`
	DistTags map[string]string `json:"dist-tags"`
}

// Client runs npm in a project directory.
type Client struct {
	runner command.Runner
	dir    string
	verify *resilience.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithVerifyPolicy sets the policy used to poll the registry after publishing.
func WithVerifyPolicy(p *resilience.Policy) Option {
	return func(c *Client) {
		c.verify = p
	}
}

// NewClient creates a client running npm in dir.
func NewClient(runner command.Runner, dir string, opts ...Option) *Client {
	c := &Client{
		runner: runner,
		dir:    dir,
		verify: resilience.New("npm-verify", resilience.PublishVerificationConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.verify != nil {
		c.verify.WithRetryable(func(err error) bool { return errors.Is(err, errNotVisible) })
	}
	return c
}

func (c *Client) npm(ctx context.Context, args ...string) (*command.Result, error) {
	return c.runner.Run(ctx, c.dir, "npm", args...)
}

// View returns the registry metadata of a package.
func (c *Client) View(ctx context.Context, name string) (*RegistryInfo, error) {
	const op = "npm.View"

	res, err := c.npm(ctx, "view", "--json", name)
	if err != nil {
		return nil, rperrors.RegistryWrap(err, op, fmt.Sprintf("failed to view %s", name))
	}

	var info RegistryInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return nil, rperrors.RegistryWrap(err, op, fmt.Sprintf("unexpected npm view output for %s", name))
	}
	return &info, nil
}

// Versions returns every published version of a package.
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	const op = "npm.Versions"

	res, err := c.npm(ctx, "view", name, "versions", "--json")
	if err != nil {
		return nil, rperrors.RegistryWrap(err, op, fmt.Sprintf("failed to list versions of %s", name))
	}
	return decodeVersions(res.Stdout)
}

// decodeVersions accepts both the array npm prints for several versions and
// the bare string it prints for a single one.
func decodeVersions(out string) ([]string, error) {
	const op = "npm.Versions"

	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(out), &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal([]byte(out), &single); err != nil {
		return nil, rperrors.RegistryWrap(err, op, "unexpected npm view output")
	}
	return []string{single}, nil
}

// LatestRevision returns the highest published version of base on channel.
// The latest/stable channel only matches base itself.
func LatestRevision(versions []string, base, channel string) (string, bool) {
	candidates := lo.Filter(versions, func(v string, _ int) bool {
		if channel == DistTagLatest || channel == "stable" {
			return v == base
		}
		return strings.HasPrefix(v, base+"-"+channel)
	})
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		vi, errI := semver.NewVersion(candidates[i])
		vj, errJ := semver.NewVersion(candidates[j])
		if errI != nil || errJ != nil {
			return candidates[i] < candidates[j]
		}
		return vi.LessThan(vj)
	})
	return candidates[len(candidates)-1], true
}

// PublishOptions configures Publish.
type PublishOptions struct {
	Name    string
	Version string
	// Tag is the dist-tag; empty publishes under npm's default tag.
	Tag    string
	DryRun bool
}

// PublishResult reports what npm printed.
type PublishResult struct {
	Command string
	Output  string
}

// Publish runs npm publish. It succeeds only when npm reports
// "+ <name>@<version>" on its last line and, outside dry runs, the registry
// lists the version afterwards.
func (c *Client) Publish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	const op = "npm.Publish"

	args := []string{"publish"}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	if opts.Tag != "" {
		args = append(args, "--tag", opts.Tag)
	}

	result := &PublishResult{Command: "npm " + strings.Join(args, " ")}
	res, err := c.npm(ctx, args...)
	if res != nil {
		result.Output = res.Combined()
	}
	if err != nil {
		return result, rperrors.RegistryWrap(err, op, "npm publish failed")
	}

	expected := fmt.Sprintf("+ %s@%s", opts.Name, opts.Version)
	lines := strings.Split(strings.TrimSpace(result.Output), "\n")
	if strings.TrimSpace(lines[len(lines)-1]) != expected {
		return result, rperrors.Registry(op, fmt.Sprintf("npm publish did not report %q", expected))
	}

	if opts.DryRun {
		return result, nil
	}
	return result, c.verifyPublished(ctx, opts.Name, opts.Version)
}

func (c *Client) verifyPublished(ctx context.Context, name, version string) error {
	const op = "npm.Publish"

	err := resilience.Run(ctx, c.verify, func(ctx context.Context) error {
		versions, err := c.Versions(ctx, name)
		if err != nil {
			return errNotVisible
		}
		if !lo.Contains(versions, version) {
			return errNotVisible
		}
		return nil
	})
	if err != nil {
		return rperrors.RegistryWrap(err, op,
			fmt.Sprintf("version %s is not reported by 'npm view %s versions --json'", version, name))
	}
	return nil
}

// Install runs npm install --save-exact for deps of type t.
func (c *Client) Install(ctx context.Context, t DependencyType, deps []Dependency) (string, error) {
	const op = "npm.Install"

	args := append([]string{"install"}, t.installFlags()...)
	args = append(args, depStrings(deps)...)

	res, err := c.npm(ctx, args...)
	if err != nil {
		return "", rperrors.RegistryWrap(err, op, "npm install failed")
	}
	if strings.Contains(res.Combined(), "npm ERR!") {
		return res.Combined(), rperrors.Registry(op, "npm error occurred")
	}
	return res.Combined(), nil
}

// Exec runs npm with args and returns its combined output.
func (c *Client) Exec(ctx context.Context, args ...string) (string, error) {
	res, err := c.npm(ctx, args...)
	if err != nil {
		return "", rperrors.RegistryWrap(err, "npm.Exec", fmt.Sprintf("npm %s failed", strings.Join(args, " ")))
	}
	return res.Combined(), nil
}
