package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/release"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
)

func newSubpackageCmd(o *Options) *cobra.Command {
	var flags releaseFlags

	cmd := &cobra.Command{
		Use:   "copy-and-commit-version-for-subpackage <subpackage-dir>",
		Short: "Copy the main package version to a subpackage and commit it",
		Long: `Write the version of the main package to the package.json of a subpackage
(e.g. generated type definitions), commit it as "Update Types to v<version>"
and push the branch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			location := args[0]
			dir := location
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(o.app.WorkDir(), location)
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return finish(logger, release.Abortf("subpackage location %q does not exist", location))
			}

			if rc.DryRun {
				if rc.Force {
					logger.Warn("--dry takes precedence over --force")
				}
				return finish(logger, release.SkipNoop(fmt.Sprintf("dry run, would write version %s to %s", rc.ManifestVersion, location)))
			}

			sub, err := o.app.ManifestAt(string(domainmanifest.ModeNode), dir)
			if err != nil {
				return err
			}
			if err := sub.Write(ctx, rc.ManifestVersion); err != nil {
				return err
			}

			staged := make([]string, 0, len(sub.Files()))
			for _, f := range sub.Files() {
				staged = append(staged, filepath.ToSlash(filepath.Join(location, f)))
			}
			if err := run.repo.Add(ctx, staged...); err != nil {
				return err
			}

			tag := version.Tag(rc.ManifestVersion)
			if _, err := run.repo.Commit(ctx, sourcecontrol.SubpackageMessage(tag)); err != nil {
				return err
			}
			if err := run.repo.Push(ctx, o.Config.Git.DefaultRemote, rc.Branch); err != nil {
				return err
			}

			o.PrintSuccess(fmt.Sprintf("Updated %s to %s", location, rc.ManifestVersion))
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}
