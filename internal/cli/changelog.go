package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/ci-tools/internal/changelog"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/webhook"
)

func newCreateChangelogCmd(o *Options) *cobra.Command {
	var flags releaseFlags

	cmd := &cobra.Command{
		Use:   "create-changelog [start-ref]",
		Short: "Print the markdown changelog of the next version",
		Long: `Print a markdown changelog listing the pull requests merged and the issues
closed since the commit of start-ref (default: the previous stable release tag).

Exits with 3 when the branch has no next version and with 2 when the number
of pull requests or issues is implausibly high.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			run, err := o.loadRelease(ctx, flags)
			if err != nil {
				return err
			}
			rc := run.rc

			var startRef string
			if len(args) == 1 {
				startRef = args[0]
			} else {
				prev, ok := rc.PreviousStableTag()
				if !ok {
					return rperrors.NotFound("cli.create-changelog", "no previous stable release, pass a start ref")
				}
				startRef = prev
				logger.Info("no start ref given, using the previous stable release", "start", startRef)
			}

			next, eligible := rc.NextVersion()
			if !eligible {
				return exitf(ExitNoTarget, "could not determine the next version on branch %q", rc.Branch)
			}

			builder, repository, err := o.app.Changelog(ctx)
			if err != nil {
				return err
			}
			text, err := builder.Markdown(ctx, changelog.Request{
				Repository: repository,
				StartRef:   startRef,
				NextTag:    version.Tag(next),
			})
			if errors.Is(err, changelog.ErrSanityCheck) {
				return &ExitError{Code: ExitSanity, Err: err}
			}
			if err != nil {
				return err
			}

			o.result(text)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "", "package mode: node, dotnet or python (default from config)")
	return cmd
}

func newPublishReleaseNotesOnSlackCmd(o *Options) *cobra.Command {
	var (
		flags  releaseFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "publish-releasenotes-on-slack",
		Short: "Announce the current version on Slack",
		Long: `Post the release announcement of the manifest version to the Slack incoming
webhook in SLACK_WEBHOOK (slack.webhook). The announcement lists the pull
requests merged since the previous stable release and flags breaking changes.`,
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

			start, _ := rc.PreviousStableTag()

			builder, repository, err := o.app.Changelog(ctx)
			if err != nil {
				return err
			}
			a, err := builder.Announce(ctx, run.repo, changelog.AnnouncementRequest{
				Repository: repository,
				StartRef:   start,
				Version:    rc.ManifestVersion,
			})
			if errors.Is(err, changelog.ErrSanityCheck) {
				return &ExitError{Code: ExitSanity, Err: err}
			}
			if err != nil {
				return err
			}

			if dryRun {
				o.result(a.Text)
				return nil
			}

			notifier, err := o.app.Notifier()
			if err != nil {
				return err
			}
			err = notifier.Send(ctx, a.Text, webhook.Attachment{
				Color: attachmentColor(a.Breaking),
				Fields: []webhook.Field{
					{Title: "Channel", Value: a.ChannelTitle(), Short: true},
					{Title: "Version", Value: a.NextTag, Short: true},
				},
			})
			if err != nil {
				return err
			}

			o.PrintSuccess("Announced " + a.NextTag + " on Slack")
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "", "package mode: node, dotnet or python (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry", false, "print the announcement instead of posting it")
	return cmd
}

func attachmentColor(breaking bool) string {
	if breaking {
		return "warning"
	}
	return "good"
}
