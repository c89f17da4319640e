package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/ci-tools/internal/domain/release"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
)

func newPrepareVersionCmd(o *Options) *cobra.Command {
	var flags releaseFlags

	cmd := &cobra.Command{
		Use:   "prepare-version",
		Short: "Write the next pre-version to the project file",
		Long: `Write the next version to the project file (package.json for node, *.csproj for
dotnet, pyproject.toml or setup.py for python).

The base version is kept; only the channel suffix changes:
  1.2.0-alpha13 on develop  becomes 1.2.0-alpha14
  1.2.0-alpha14 on beta     becomes 1.2.0-beta1
  1.2.0-beta3   on master   becomes 1.2.0

Branches outside develop, beta and master get a unique commit pre-release.
A retry of a partially successful build writes the version that build tagged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			run, err := o.loadRelease(ctx, flags)
			if err != nil {
				return err
			}
			logReleaseContext(logger, run.rc)

			dec, err := release.Decide(ctx, run.rc, run.detector, release.Policy{})
			if err != nil {
				return err
			}
			logWarnings(logger, dec)
			if dec.Retry {
				logger.Warn("retry run for a partially successful build", "version", dec.Version)
			}
			if dec.Outcome.IsSkip() && run.rc.DryRun && run.rc.Force {
				logger.Warn("--dry takes precedence over --force")
			}
			if !dec.Outcome.IsContinue() {
				return finish(logger, dec.Outcome)
			}

			if err := run.manifest.Write(ctx, dec.Version); err != nil {
				return err
			}
			o.PrintSuccess(fmt.Sprintf("Wrote version %s to %v", dec.Version, run.manifest.Files()))
			return nil
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newCommitAndTagVersionCmd(o *Options) *cobra.Command {
	var flags releaseFlags

	cmd := &cobra.Command{
		Use:   "commit-and-tag-version",
		Short: "Commit, tag and push the current version",
		Long: `Commit the project file with the version written by prepare-version, tag the
commit and push branch and tags.

The commit message is "Release v<version>" followed by the changelog since the
previous stable release and a [skip ci] marker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			run, err := o.loadRelease(ctx, flags)
			if err != nil {
				return err
			}
			rc := run.rc
			logReleaseContext(logger, rc)

			if run.detector.IsRedundantRun(rc) {
				return finish(logger, release.SkipNoop(fmt.Sprintf("current commit is tagged with %q, nothing to do", rc.CurrentTag())))
			}
			retry, err := run.detector.IsRetryRun(ctx, rc)
			if err != nil {
				return err
			}
			if retry {
				return finish(logger, release.SkipNoop("retry run for a partially successful build, nothing to do"))
			}

			tag := rc.CurrentTag()
			if rc.DryRun {
				return finish(logger, release.SkipNoop("dry run, would commit and tag "+tag))
			}

			steps := &releaseSteps{o: o, logger: logger, run: run, remote: o.Config.Git.DefaultRemote}
			if err := run.repo.Checkout(ctx, rc.Branch); err != nil {
				return err
			}
			if err := steps.Commit(ctx, rc.ManifestVersion); err != nil {
				return err
			}
			if err := steps.Tag(ctx, rc.ManifestVersion); err != nil {
				return err
			}
			if err := steps.Push(ctx, rc.ManifestVersion); err != nil {
				return err
			}

			o.PrintSuccess(fmt.Sprintf("Committed version %s and tagged it as %q", rc.ManifestVersion, tag))
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newIncrementVersionCmd(o *Options) *cobra.Command {
	var (
		flags        releaseFlags
		publish      bool
		printMachine bool
	)

	cmd := &cobra.Command{
		Use:   "increment-version",
		Short: "Increment, commit, tag and push the version in one step",
		Long: `Run the whole release: write the next version, commit, tag, push and
optionally publish to npm.

Only develop, beta and master are released. A retry of a partially successful
build writes the version that build tagged and skips to publishing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printMachine {
				data, err := release.ExportXStateJSON()
				if err != nil {
					return err
				}
				o.result(string(data))
				return nil
			}

			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			run, err := o.loadRelease(ctx, flags)
			if err != nil {
				return err
			}
			logReleaseContext(logger, run.rc)

			steps := &releaseSteps{
				o:       o,
				logger:  logger,
				run:     run,
				remote:  o.Config.Git.DefaultRemote,
				publish: publish,
			}
			res, err := release.NewPipeline(run.detector, steps).Run(ctx, run.rc)
			if res != nil {
				logWarnings(logger, res.Decision)
				logger.Debug("pipeline finished", "state", res.Final, "path", res.Path)
			}
			if err != nil {
				return err
			}
			if !res.Outcome.IsContinue() {
				return finish(logger, res.Outcome)
			}

			o.PrintSuccess(fmt.Sprintf("Released %s as %q", res.Decision.Version, version.Tag(res.Decision.Version)))
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the package to npm after pushing")
	cmd.Flags().BoolVar(&printMachine, "print-machine", false, "print the release state machine as XState JSON and exit")
	return cmd
}
