package cli

import (
	"context"

	"github.com/relicta-tech/ci-tools/internal/changelog"
	"github.com/relicta-tech/ci-tools/internal/config"
	"github.com/relicta-tech/ci-tools/internal/container"
	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/github"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/npm"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/webhook"
)

// cliApp is the subset of the container the commands use.
type cliApp interface {
	Close() error
	Config() *config.Config
	WorkDir() string
	Runner() command.Runner
	Repository() (sourcecontrol.Repository, error)
	Manifest(mode string) (domainmanifest.Manifest, error)
	ManifestAt(mode, dir string) (domainmanifest.Manifest, error)
	NPM(dir string) *npm.Client
	GitHubRepository(ctx context.Context) (owner, name string, err error)
	GitHub(ctx context.Context, token string) (*github.Client, error)
	GitHubFor(ctx context.Context, owner, name, token string) (*github.Client, error)
	Changelog(ctx context.Context) (*changelog.Builder, string, error)
	Notifier() (*webhook.Notifier, error)
}

var _ cliApp = (*container.App)(nil)

// newContainerApp builds the application container. Tests replace it to
// inject an in-memory repository and a fake command runner.
var newContainerApp = func(cfg *config.Config, o *Options) (cliApp, error) {
	return container.New(cfg,
		container.WithWorkDir(o.WorkDir),
		container.WithLogger(o.Logger),
	)
}
