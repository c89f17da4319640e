// Package container wires the ci_tools adapters from configuration. Adapters
// are created lazily so commands only touch what they use.
package container

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/ci-tools/internal/changelog"
	"github.com/relicta-tech/ci-tools/internal/config"
	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
	gitadapter "github.com/relicta-tech/ci-tools/internal/infrastructure/git"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/github"
	manifestadapter "github.com/relicta-tech/ci-tools/internal/infrastructure/manifest"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/npm"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/resilience"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/template"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/webhook"
)

// defaultShutdownTimeout bounds Close.
const defaultShutdownTimeout = 10 * time.Second

// Closeable represents a component that can be closed.
type Closeable interface {
	Close() error
}

// App holds the configuration and the adapters built from it.
type App struct {
	cfg     *config.Config
	logger  *log.Logger
	workDir string
	runner  command.Runner

	mu        sync.Mutex
	closed    bool
	repo      sourcecontrol.Repository
	templates *template.Service

	closeables []Closeable
}

// Option configures an App.
type Option func(*App)

// WithWorkDir sets the project directory. Defaults to ".".
func WithWorkDir(dir string) Option {
	return func(a *App) {
		if dir != "" {
			a.workDir = dir
		}
	}
}

// WithRunner replaces the command runner used for npm, python and the git
// CLI fallback.
func WithRunner(r command.Runner) Option {
	return func(a *App) {
		a.runner = r
	}
}

// WithRepository injects a repository instead of opening the work dir.
func WithRepository(r sourcecontrol.Repository) Option {
	return func(a *App) {
		a.repo = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// New creates an App for cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, rperrors.Config("container.New", "configuration is required")
	}

	a := &App{
		cfg:     cfg,
		workDir: ".",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runner == nil {
		a.runner = command.NewExecRunner()
	}
	if a.logger == nil {
		a.logger = log.New(io.Discard)
	}
	return a, nil
}

// Config returns the configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// WorkDir returns the project directory.
func (a *App) WorkDir() string {
	return a.workDir
}

// Runner returns the command runner.
func (a *App) Runner() command.Runner {
	return a.runner
}

// RegisterCloseable adds c to the components closed by Close, in reverse
// registration order.
func (a *App) RegisterCloseable(c Closeable) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerCloseable(c)
}

func (a *App) registerCloseable(c Closeable) {
	if c != nil {
		a.closeables = append(a.closeables, c)
	}
}

// Repository opens the git repository containing the work dir.
func (a *App) Repository() (sourcecontrol.Repository, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, rperrors.State("container.Repository", "container is closed")
	}
	if a.repo != nil {
		return a.repo, nil
	}

	gc := a.cfg.Git
	repo, err := gitadapter.Open(
		gitadapter.WithPath(a.workDir),
		gitadapter.WithDefaultRemote(gc.DefaultRemote),
		gitadapter.WithAuthToken(gc.AuthToken),
		gitadapter.WithAuthUsername(gc.AuthUser),
		gitadapter.WithCommitter(gc.UserName, gc.UserEmail),
		gitadapter.WithCLIFallback(gc.UseCLIFallback),
	)
	if err != nil {
		return nil, err
	}
	a.repo = repo.WithRunner(a.runner)
	a.logger.Debug("opened repository", "path", repo.Root())
	return a.repo, nil
}

// Manifest returns the manifest adapter for mode in the work dir. An empty
// mode falls back to the configured one.
func (a *App) Manifest(mode string) (domainmanifest.Manifest, error) {
	return a.ManifestAt(mode, a.workDir)
}

// ManifestAt is Manifest for another directory, e.g. a subpackage.
func (a *App) ManifestAt(mode, dir string) (domainmanifest.Manifest, error) {
	if mode == "" {
		mode = a.cfg.Mode
	}
	m, err := domainmanifest.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	return manifestadapter.New(m, dir, a.runner)
}

// NPM returns an npm client working in dir, polling the registry after
// publishing as configured.
func (a *App) NPM(dir string) *npm.Client {
	if dir == "" {
		dir = a.workDir
	}

	nc := a.cfg.NPM
	verify := resilience.PublishVerificationConfig()
	if nc.VerifyAttempts > 0 {
		verify.RetryAttempts = nc.VerifyAttempts
	}
	if nc.VerifyInterval > 0 {
		verify.RetryInitialWait = nc.VerifyInterval
		verify.RetryMaxWait = nc.VerifyInterval
	}
	policy := resilience.New("npm-verify", verify)
	a.RegisterCloseable(policy)

	return npm.NewClient(a.runner, dir, npm.WithVerifyPolicy(policy))
}

// GitHubRepository returns the owner and name of the GitHub repository,
// from configuration or the default remote's URL.
func (a *App) GitHubRepository(ctx context.Context) (owner, name string, err error) {
	const op = "container.GitHubRepository"

	if configured := a.cfg.GitHub.Repository; configured != "" {
		if owner, name, ok := gitadapter.ParseGitHubRepo("github.com/" + configured); ok {
			return owner, name, nil
		}
		return "", "", rperrors.Config(op, "github.repository must be owner/name")
	}

	repo, err := a.Repository()
	if err != nil {
		return "", "", err
	}
	url, err := repo.RemoteURL(ctx, a.cfg.Git.DefaultRemote)
	if err != nil {
		return "", "", err
	}
	owner, name, ok := gitadapter.ParseGitHubRepo(url)
	if !ok {
		return "", "", rperrors.Config(op, "remote "+a.cfg.Git.DefaultRemote+" is not a GitHub repository")
	}
	return owner, name, nil
}

// GitHub returns a client for the current repository authenticated with
// token.
func (a *App) GitHub(ctx context.Context, token string) (*github.Client, error) {
	owner, name, err := a.GitHubRepository(ctx)
	if err != nil {
		return nil, err
	}
	return a.GitHubFor(ctx, owner, name, token)
}

// GitHubFor returns a client for owner/name authenticated with token.
func (a *App) GitHubFor(ctx context.Context, owner, name, token string) (*github.Client, error) {
	var opts []github.Option
	if a.cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithBaseURL(a.cfg.GitHub.APIURL))
	}

	client, err := github.NewClient(ctx, owner, name, token, opts...)
	if err != nil {
		return nil, err
	}
	a.RegisterCloseable(client)
	return client, nil
}

// Templates returns the template service, honoring changelog.template_dir.
func (a *App) Templates() (*template.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.templates != nil {
		return a.templates, nil
	}

	var opts []template.ServiceOption
	if dir := a.cfg.Changelog.TemplateDir; dir != "" {
		opts = append(opts, template.WithCustomDir(dir))
	}
	svc, err := template.NewService(opts...)
	if err != nil {
		return nil, err
	}
	a.templates = svc
	return svc, nil
}

// Changelog returns a changelog builder reading from the current GitHub
// repository.
func (a *App) Changelog(ctx context.Context) (*changelog.Builder, string, error) {
	client, err := a.GitHub(ctx, a.cfg.GitHub.Token)
	if err != nil {
		return nil, "", err
	}
	templates, err := a.Templates()
	if err != nil {
		return nil, "", err
	}
	return changelog.NewBuilder(client, templates), client.Repository(), nil
}

// Notifier returns the Slack notifier.
func (a *App) Notifier() (*webhook.Notifier, error) {
	sc := a.cfg.Slack
	return webhook.NewNotifier(webhook.Config{
		URL:        sc.Webhook,
		Channel:    sc.Channel,
		Username:   sc.Username,
		IconEmoji:  sc.IconEmoji,
		Timeout:    sc.Timeout,
		RetryCount: sc.RetryCount,
	})
}

// Close shuts down all registered components.
func (a *App) Close() error {
	return a.CloseWithTimeout(defaultShutdownTimeout)
}

// CloseWithTimeout closes registered components in reverse order and returns
// the first error.
func (a *App) CloseWithTimeout(timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(a.closeables) - 1; i >= 0; i-- {
		if err := a.closeWithContext(ctx, a.closeables[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		a.logger.Warn("some components failed to close cleanly", "error_count", len(errs))
		return errs[0]
	}
	return nil
}

func (a *App) closeWithContext(ctx context.Context, c Closeable) error {
	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.logger.Warn("component close timed out", "error", ctx.Err())
		return ctx.Err()
	}
}
