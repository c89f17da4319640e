package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/ci-tools/internal/config"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// defaultOptions backs the package-level entry points used by main.
var defaultOptions = NewOptions()

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	defaultOptions.SetVersion(version, commit, date)
}

// ExecuteContext runs ci_tools with the process arguments.
func ExecuteContext(ctx context.Context) error {
	return Run(ctx, defaultOptions, os.Args[1:])
}

// Cleanup closes any open resources. Should be called before program exit.
func Cleanup() {
	if err := defaultOptions.Cleanup(); err != nil {
		defaultOptions.Logger.Warn("cleanup failed", "error", err)
	}
}

// Run executes the command tree for args with o.
func Run(ctx context.Context, o *Options, args []string) error {
	root := newRootCmd(o)
	root.SetArgs(args)
	root.SetOut(o.Stdout)
	root.SetErr(o.Stderr)

	err := root.ExecuteContext(ctx)
	if errors.Is(err, errNothingToDo) {
		return nil
	}
	return err
}

func newRootCmd(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci_tools",
		Short: "Release versioning for CI pipelines",
		Long: `ci_tools computes, writes, tags and publishes release versions from CI.

Versions follow the branch they are built on:
  develop  1.2.0-alpha1, 1.2.0-alpha2, ...
  beta     1.2.0-beta1, 1.2.0-beta2, ...
  master   1.2.0

The base version is never changed automatically. Runs triggered by the
release commit itself, and retries of partially successful builds, are
detected and do not produce a second release.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsSetup(cmd) {
				return nil
			}
			return o.setup(cmd.Context())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.ConfigFile, "config", "c", "", "config file (default: ci_tools.yaml)")
	flags.BoolVarP(&o.Verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&o.JSONOutput, "json", false, "output logs and results as JSON")
	flags.BoolVar(&o.NoColor, "no-color", false, "disable colored output")
	flags.StringVar(&o.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&o.WorkDir, "workdir", ".", "project directory")
	flags.BoolVar(&o.OnlyOnPrimaryBranches, "only-on-primary-branches", false,
		"do nothing unless building develop, beta or master")
	flags.BoolVar(&o.ExceptOnPrimaryBranches, "except-on-primary-branches", false,
		"do nothing when building develop, beta or master")

	cmd.AddCommand(
		newVersionCmd(o),
		newPrepareVersionCmd(o),
		newCommitAndTagVersionCmd(o),
		newIncrementVersionCmd(o),
		newGetVersionCmd(o),
		newSetVersionCmd(o),
		newNextVersionCmd(o),
		newSubpackageCmd(o),
		newPublishNpmPackageCmd(o),
		newFailOnPreVersionDependenciesCmd(o),
		newReplaceDistTagsCmd(o),
		newNpmInstallOnlyCmd(o),
		newNpmCIExceptCmd(o),
		newUpdateGitHubReleaseCmd(o),
		newCreateGitHubReleaseCmd(o),
		newCreateChangelogCmd(o),
		newPublishReleaseNotesOnSlackCmd(o),
	)
	return cmd
}

// skipsSetup reports whether cmd runs without configuration.
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// setup loads the configuration, configures logging, builds the container and
// applies the primary branch switches.
func (o *Options) setup(ctx context.Context) error {
	if err := o.initConfig(); err != nil {
		return err
	}

	app, err := newContainerApp(o.Config, o)
	if err != nil {
		return err
	}
	o.app = app

	return o.checkPrimaryBranchSwitches(ctx)
}

// initConfig reads in config file and ENV variables if set.
func (o *Options) initConfig() error {
	if err := o.loadAndValidateConfig(); err != nil {
		return err
	}
	o.applyGlobalFlags()
	o.configureLoggerFormat()
	o.configureLogLevel()
	return nil
}

// loadAndValidateConfig loads and validates the configuration.
func (o *Options) loadAndValidateConfig() error {
	loader := config.NewLoader()
	if o.ConfigFile != "" {
		loader.WithConfigPath(o.ConfigFile)
	}
	if o.WorkDir != "" && o.WorkDir != "." {
		loader.WithSearchPaths(o.WorkDir)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.NewValidator().WithWarningOutput(o.Stderr).Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	o.Config = cfg
	if o.Masker != nil {
		o.Masker.AddSecrets(cfg.Git.AuthToken, cfg.GitHub.Token, cfg.GitHub.ReleaseToken, cfg.Slack.Webhook)
	}
	return nil
}

// applyGlobalFlags applies global CLI flags to the configuration.
func (o *Options) applyGlobalFlags() {
	if o.Verbose {
		o.Config.Output.Verbose = true
	}
	if o.JSONOutput {
		o.Config.Output.Format = "json"
	}
	if o.LogLevel != "" {
		o.Config.Output.LogLevel = o.LogLevel
	}
	if o.NoColor {
		o.Config.Output.Color = false
	}
	if !o.Config.Output.Color {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// configureLoggerFormat configures the logger format based on settings.
func (o *Options) configureLoggerFormat() {
	if o.IsJSON() {
		o.Logger.SetFormatter(log.JSONFormatter)
		o.Logger.SetReportTimestamp(true)
	} else {
		o.Logger.SetFormatter(log.TextFormatter)
	}
}

// configureLogLevel sets the logger level based on configuration.
func (o *Options) configureLogLevel() {
	switch o.Config.Output.LogLevel {
	case "debug":
		o.Logger.SetLevel(log.DebugLevel)
	case "warn":
		o.Logger.SetLevel(log.WarnLevel)
	case "error":
		o.Logger.SetLevel(log.ErrorLevel)
	default:
		o.Logger.SetLevel(log.InfoLevel)
	}

	if o.Config.Output.Quiet {
		o.Logger.SetLevel(log.ErrorLevel)
	}
	if o.IsVerbose() {
		o.Logger.SetLevel(log.DebugLevel)
	}
}

// checkPrimaryBranchSwitches stops the command early when
// --only-on-primary-branches or --except-on-primary-branches exclude the
// current branch.
func (o *Options) checkPrimaryBranchSwitches(ctx context.Context) error {
	const op = "cli.checkPrimaryBranchSwitches"

	if !o.OnlyOnPrimaryBranches && !o.ExceptOnPrimaryBranches {
		return nil
	}
	if o.OnlyOnPrimaryBranches && o.ExceptOnPrimaryBranches {
		return rperrors.Validation(op, "--only-on-primary-branches and --except-on-primary-branches are mutually exclusive")
	}

	repo, err := o.app.Repository()
	if err != nil {
		return err
	}
	branch, err := o.detectBranch(ctx, repo)
	if err != nil {
		return err
	}

	primary := version.IsPrimaryBranch(branch)
	switch {
	case o.OnlyOnPrimaryBranches && !primary:
		o.Logger.Info("skipping, not on a primary branch", "branch", branch, "primary", version.PrimaryBranches())
		return errNothingToDo
	case o.ExceptOnPrimaryBranches && primary:
		o.Logger.Info("skipping, on a primary branch", "branch", branch)
		return errNothingToDo
	}
	return nil
}

func newVersionCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			o.result("ci_tools " + o.Version.Version)
			if o.Verbose {
				o.result("  commit: " + o.Version.Commit)
				o.result("  built:  " + o.Version.Date)
			}
		},
	}
}
