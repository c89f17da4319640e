package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/github"
)

func newUpdateGitHubReleaseCmd(o *Options) *cobra.Command {
	var (
		mode       string
		versionTag string
		title      string
		text       string
		fromGitTag bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "update-github-release",
		Short: "Create or update the GitHub release of a version tag",
		Long: `Create the GitHub release for a version tag, or update its title and text if
it exists. Releases of pre-release tags are marked as pre-releases.

With --use-title-and-text-from-git-tag the title and text are taken from the
message of the tagged commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const op = "cli.update-github-release"
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			if versionTag == "" {
				m, err := o.app.Manifest(mode)
				if err != nil {
					return err
				}
				v, err := m.Read(ctx)
				if err != nil {
					return err
				}
				versionTag = version.Tag(v)
				logger.Info("no --version-tag given, using the manifest version", "tag", versionTag)
			}

			if fromGitTag {
				repo, err := o.app.Repository()
				if err != nil {
					return err
				}
				exists, err := repo.TagExists(ctx, versionTag)
				if err != nil {
					return err
				}
				if !exists {
					return rperrors.NotFound(op, fmt.Sprintf("tag %s does not exist", versionTag))
				}
				raw, err := repo.CommitMessage(ctx, versionTag)
				if err != nil {
					return err
				}
				msg := sourcecontrol.ParseMessage(raw)
				title, text = msg.Subject, msg.Body
				logger.Info("using the tagged commit message", "title", title)
			}

			client, err := o.app.GitHub(ctx, o.Config.GitHub.Token)
			if err != nil {
				return err
			}

			existing, err := client.ReleaseByTag(ctx, versionTag)
			if err != nil {
				return err
			}

			if existing != nil {
				if dryRun {
					logger.Warn("dry run, would update the existing release", "tag", versionTag, "id", existing.ID)
					return nil
				}
				if _, err := client.EditRelease(ctx, existing.ID, title, text); err != nil {
					return err
				}
				o.PrintSuccess("Updated release " + versionTag)
				return nil
			}

			if dryRun {
				logger.Warn("dry run, would create a new release", "tag", versionTag)
				return nil
			}
			rel, err := client.CreateRelease(ctx, github.ReleaseInput{
				TagName:    versionTag,
				Name:       title,
				Body:       text,
				Prerelease: strings.Contains(versionTag, "-"),
			})
			if err != nil {
				return err
			}
			o.PrintSuccess(fmt.Sprintf("Created release %s %s", versionTag, rel.HTMLURL))
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "package mode: node, dotnet or python (default from config)")
	cmd.Flags().StringVar(&versionTag, "version-tag", "", "tag of the release (default: tag of the manifest version)")
	cmd.Flags().StringVar(&title, "title", "", "release title")
	cmd.Flags().StringVar(&text, "text", "", "release text")
	cmd.Flags().BoolVar(&fromGitTag, "use-title-and-text-from-git-tag", false, "take title and text from the tagged commit message")
	cmd.Flags().BoolVar(&dryRun, "dry", false, "look up the release without changing it")
	return cmd
}

func newCreateGitHubReleaseCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "create-github-release <owner> <repo> <version> <target> <draft> <prerelease> [files...]",
		Short: "Create a GitHub release and upload assets",
		Long: `Create the GitHub release v<version> at <target> and upload the given files as
assets. <draft> and <prerelease> are true or false. Files may be glob patterns.

An existing release is never overwritten. The token is read from
RELEASE_GH_TOKEN (github.release_token).`,
		Args: cobra.MinimumNArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "cli.create-github-release"
			ctx := cmd.Context()
			logger := o.commandLogger(cmd.Name())

			owner, name, v, target := args[0], args[1], args[2], args[3]
			draft, err := parseBoolArg("draft", args[4])
			if err != nil {
				return err
			}
			prerelease, err := parseBoolArg("prerelease", args[5])
			if err != nil {
				return err
			}

			token := o.Config.GitHub.ReleaseAuthToken()
			if token == "" {
				return rperrors.Config(op, "a GitHub token is required, set RELEASE_GH_TOKEN")
			}

			files, err := github.ExpandAssets(args[6:])
			if err != nil {
				return err
			}

			client, err := o.app.GitHubFor(ctx, owner, name, token)
			if err != nil {
				return err
			}

			tag := version.Tag(v)
			existing, err := client.ReleaseByTag(ctx, tag)
			if err != nil {
				return err
			}
			if existing != nil {
				logger.Warn("release already exists, not overriding it", "tag", tag)
				return nil
			}

			rel, err := client.CreateRelease(ctx, github.ReleaseInput{
				TagName:    tag,
				Name:       v,
				Target:     target,
				Draft:      draft,
				Prerelease: prerelease,
			})
			if err != nil {
				return err
			}
			logger.Info("created release", "tag", tag, "id", rel.ID)

			uploaded, err := client.UploadAssets(ctx, rel.ID, files)
			for _, u := range uploaded {
				logger.Info("uploaded asset", "name", u)
			}
			if err != nil {
				return err
			}

			o.PrintSuccess(fmt.Sprintf("Created release %s with %d assets", tag, len(uploaded)))
			return nil
		},
	}
}

func parseBoolArg(name, s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, rperrors.Validation("cli.create-github-release", fmt.Sprintf("<%s> must be true or false, got %q", name, s))
	}
	return b, nil
}
