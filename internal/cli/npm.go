package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	manifestadapter "github.com/relicta-tech/ci-tools/internal/infrastructure/manifest"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/npm"
)

func newPublishNpmPackageCmd(o *Options) *cobra.Command {
	var dryRun, tagFromBranch bool

	cmd := &cobra.Command{
		Use:   "publish-npm-package",
		Short: "Publish the package to npm and verify the registry lists it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			m, err := o.app.Manifest(string(domainmanifest.ModeNode))
			if err != nil {
				return err
			}
			name, err := m.ProductName(ctx)
			if err != nil {
				return err
			}
			v, err := m.Read(ctx)
			if err != nil {
				return err
			}

			opts := npm.PublishOptions{Name: name, Version: v, DryRun: dryRun}
			if tagFromBranch {
				repo, err := o.app.Repository()
				if err != nil {
					return err
				}
				branch, err := o.detectBranch(ctx, repo)
				if err != nil {
					return err
				}
				opts.Tag = npm.DistTag(branch)
			}

			res, err := o.app.NPM("").Publish(ctx, opts)
			if res != nil {
				logger.Info("ran", "command", res.Command)
				logOutput(logger, res.Output)
			}
			if err != nil {
				return err
			}

			o.PrintSuccess(fmt.Sprintf("Published %s@%s", name, v))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry", false, "run npm publish --dry-run")
	cmd.Flags().BoolVar(&tagFromBranch, "create-tag-from-branch-name", false, "publish under the dist-tag of the current branch")
	return cmd
}

func newFailOnPreVersionDependenciesCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "fail-on-pre-version-dependencies",
		Short: "Fail if package.json depends on pre-release versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := o.commandLogger(cmd.Name())

			pkg, err := npm.ReadPackageFile(o.app.WorkDir())
			if err != nil {
				return err
			}

			pre := pkg.PreVersionDependencies()
			if len(pre) == 0 {
				o.PrintSuccess("No pre-version dependencies")
				return nil
			}

			o.PrintError("Found dependencies with pre-version requirements:")
			for _, d := range pre {
				o.PrintSubtle("  - " + d.String())
			}
			logger.Error("pre-version dependencies", "count", len(pre))
			return exitf(ExitFailure, "found %d dependencies with pre-version requirements", len(pre))
		},
	}
}

func newReplaceDistTagsCmd(o *Options) *cobra.Command {
	var (
		distTags []string
		commit   bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "replace-dist-tags-with-real-versions <package-pattern>...",
		Short: "Pin dist-tag and pre-release dependencies to the next channel's version",
		Long: `Replace dependencies that point at a dist-tag or a pre-release with the
latest version of the next release channel (feature → alpha → beta → latest).

Example, for ci_tools replace-dist-tags-with-real-versions @atlas-engine/ -d alpha beta

    @atlas-engine/iam: 1.1.0-alpha.1       becomes the latest 1.1.0-beta
    @atlas-engine/timing: beta             becomes latest
    bluebird: 3.7.2                        is left alone`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, patterns []string) error {
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			if len(distTags) == 0 {
				distTags = o.Config.NPM.DistTags
			}

			pkg, err := npm.ReadPackageFile(o.app.WorkDir())
			if err != nil {
				return err
			}

			client := o.app.NPM("")
			plan, err := client.PlanDistTagReplacement(ctx, pkg, patterns, distTags)
			if err != nil {
				return err
			}
			if plan.Empty() {
				logger.Info("no dependencies to update")
				return nil
			}

			for _, r := range plan.Replacements {
				if r.Note != "" {
					logger.Warn(r.Note, "dependency", r.From.Name)
					continue
				}
				logger.Info("replacing", "type", r.Type, "from", r.From.String(), "to", r.To.Version, "changed", r.Changed())
			}

			if dryRun {
				for _, c := range plan.Commands {
					o.result(c)
				}
				return nil
			}

			if err := client.ApplyReplacement(ctx, plan); err != nil {
				return err
			}

			if commit {
				if err := o.commitHarmonizedVersions(cmd, logger); err != nil {
					return err
				}
			}
			o.PrintSuccess(fmt.Sprintf("Replaced %d dependencies", len(plan.Replacements)))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&distTags, "dist-tags-to-replace", "d", nil, "dist-tags to replace (default from config npm.dist_tags)")
	cmd.Flags().BoolVar(&commit, "create-git-commit", false, "commit package.json when it changed")
	cmd.Flags().BoolVar(&dryRun, "dry", false, "print the npm commands without running them")
	return cmd
}

func (o *Options) commitHarmonizedVersions(cmd *cobra.Command, logger *log.Logger) error {
	ctx := cmd.Context()

	repo, err := o.app.Repository()
	if err != nil {
		return err
	}
	dirty, err := repo.DirtyFiles(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(dirty, manifestadapter.PackageJSON) {
		logger.Info("package.json unchanged, not committing")
		return nil
	}

	if err := repo.Add(ctx, manifestadapter.PackageJSON, manifestadapter.PackageLockJSON); err != nil {
		return err
	}
	sha, err := repo.Commit(ctx, sourcecontrol.HarmonizeMessage)
	if err != nil {
		return err
	}
	logger.Info("created git commit", "sha", sha)
	return nil
}

func newNpmInstallOnlyCmd(o *Options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "npm-install-only <package-pattern>...",
		Short: "Reinstall only the dependencies matching the patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, patterns []string) error {
			pkg, err := npm.ReadPackageFile(o.app.WorkDir())
			if err != nil {
				return err
			}
			return o.runNpmCommands(cmd, npm.InstallOnlyCommands(pkg, patterns), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry", false, "print the npm commands without running them")
	return cmd
}

func newNpmCIExceptCmd(o *Options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "npm-ci-except <package-pattern>...",
		Short: "Run npm ci, then npm install the dependencies matching the patterns",
		Long: `Install all dependencies with npm ci, but those whose name starts with one of
the patterns with npm install, e.g.

    ci_tools npm-ci-except @process-engine/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, patterns []string) error {
			pkg, err := npm.ReadPackageFile(o.app.WorkDir())
			if err != nil {
				return err
			}
			return o.runNpmCommands(cmd, npm.CIExceptCommands(pkg, patterns), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry", false, "print the npm commands without running them")
	return cmd
}

func (o *Options) runNpmCommands(cmd *cobra.Command, cmds [][]string, dryRun bool) error {
	logger := o.commandLogger(cmd.Name())
	client := o.app.NPM("")

	for _, args := range cmds {
		line := "npm " + strings.Join(args, " ")
		if dryRun {
			o.result(line)
			continue
		}
		logger.Info("running", "command", line)
		out, err := client.Exec(cmd.Context(), args...)
		if err != nil {
			return err
		}
		logOutput(logger, out)
		if strings.Contains(out, "npm ERR!") {
			return rperrors.Registry("cli."+cmd.Name(), "npm error occurred")
		}
	}
	return nil
}

func logOutput(logger *log.Logger, out string) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			logger.Debug("| " + line)
		}
	}
}
