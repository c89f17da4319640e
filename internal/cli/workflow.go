package cli

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/ci-tools/internal/changelog"
	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/release"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// releaseFlags are shared by the commands that evaluate a release.
type releaseFlags struct {
	mode       string
	force      bool
	dryRun     bool
	allowDirty bool
}

func (f *releaseFlags) register(cmd *cobra.Command, withDirty bool) {
	cmd.Flags().StringVar(&f.mode, "mode", "", "package mode: node, dotnet or python (default from config)")
	cmd.Flags().BoolVar(&f.force, "force", false, "override the plausibility checks")
	cmd.Flags().BoolVar(&f.dryRun, "dry", false, "report what would happen without changing anything")
	if withDirty {
		cmd.Flags().BoolVar(&f.allowDirty, "allow-dirty-workdir", false, "allow uncommitted changes in the git workdir")
	}
}

// releaseRun bundles what a release command works with.
type releaseRun struct {
	repo     sourcecontrol.Repository
	manifest domainmanifest.Manifest
	rc       *release.Context
	detector *release.Detector
}

// loadRelease snapshots the repository and manifest state for a run.
func (o *Options) loadRelease(ctx context.Context, f releaseFlags) (*releaseRun, error) {
	repo, err := o.app.Repository()
	if err != nil {
		return nil, err
	}
	m, err := o.app.Manifest(f.mode)
	if err != nil {
		return nil, err
	}
	branch, err := o.detectBranch(ctx, repo)
	if err != nil {
		return nil, err
	}

	rc, err := release.LoadContext(ctx, release.Options{
		WorkDir:           o.app.WorkDir(),
		Mode:              m.Mode(),
		Branch:            branch,
		BranchDetected:    true,
		Force:             f.force || o.Config.ForcePublish,
		DryRun:            f.dryRun,
		AllowDirtyWorkdir: f.allowDirty,
	}, repo, m)
	if err != nil {
		return nil, err
	}

	return &releaseRun{
		repo:     repo,
		manifest: m,
		rc:       rc,
		detector: release.NewDetector(repo),
	}, nil
}

func logReleaseContext(logger *log.Logger, rc *release.Context) {
	next, _ := rc.NextVersion()
	logger.Info("release context",
		"run_id", rc.RunID,
		"mode", rc.Mode,
		"branch", rc.Branch,
		"manifest_version", rc.ManifestVersion,
		"next_version", next,
		"dry_run", rc.DryRun,
		"force", rc.Force,
	)
	logger.Debug("tags", "all", rc.Tags, "head", rc.TagsAtHead)
}

func logWarnings(logger *log.Logger, dec *release.Decision) {
	for _, w := range dec.Warnings {
		logger.Warn(w, "override", "--force")
	}
}

// releaseNotes renders the changelog for the release commit message. The
// commit does not depend on it: without a previous stable release or GitHub
// access the message carries no changelog.
func (o *Options) releaseNotes(ctx context.Context, logger *log.Logger, rc *release.Context, nextTag string) string {
	start, ok := rc.PreviousStableTag()
	if !ok {
		logger.Debug("no previous stable release, committing without changelog")
		return ""
	}

	builder, repository, err := o.app.Changelog(ctx)
	if err != nil {
		logger.Warn("changelog unavailable", "error", rperrors.RedactError(err))
		return ""
	}

	text, err := builder.Markdown(ctx, changelog.Request{
		Repository: repository,
		StartRef:   start,
		NextTag:    nextTag,
	})
	if err != nil {
		logger.Warn("failed to create changelog", "start", start, "error", rperrors.RedactError(err))
		return ""
	}
	return text
}
