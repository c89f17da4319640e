package cli

import (
	"context"

	"github.com/charmbracelet/log"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	"github.com/relicta-tech/ci-tools/internal/domain/release"
	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/npm"
)

// releaseSteps performs the pipeline side effects against the repository,
// the manifest and npm.
type releaseSteps struct {
	o       *Options
	logger  *log.Logger
	run     *releaseRun
	remote  string
	publish bool
}

var _ release.Steps = (*releaseSteps)(nil)

func (s *releaseSteps) WriteVersion(ctx context.Context, v string) error {
	s.logger.Info("writing version", "version", v, "files", s.run.manifest.Files())
	return s.run.manifest.Write(ctx, v)
}

func (s *releaseSteps) Commit(ctx context.Context, v string) error {
	tag := version.Tag(v)
	notes := s.o.releaseNotes(ctx, s.logger, s.run.rc, tag)

	if err := s.run.repo.Add(ctx, s.run.manifest.Files()...); err != nil {
		return err
	}
	sha, err := s.run.repo.Commit(ctx, sourcecontrol.ReleaseMessage(tag, notes))
	if err != nil {
		return err
	}
	s.logger.Info("committed release", "tag", tag, "sha", sha)
	return nil
}

func (s *releaseSteps) Tag(ctx context.Context, v string) error {
	return s.run.repo.CreateTag(ctx, version.Tag(v))
}

func (s *releaseSteps) Push(ctx context.Context, _ string) error {
	if err := s.run.repo.Push(ctx, s.remote, s.run.rc.Branch); err != nil {
		return err
	}
	return s.run.repo.PushTags(ctx, s.remote)
}

func (s *releaseSteps) Publish(ctx context.Context, v string) error {
	if !s.publish {
		s.logger.Debug("publishing not requested")
		return nil
	}
	if s.run.manifest.Mode() != domainmanifest.ModeNode {
		s.logger.Info("nothing to publish", "mode", s.run.manifest.Mode())
		return nil
	}

	name, err := s.run.manifest.ProductName(ctx)
	if err != nil {
		return err
	}
	res, err := s.o.app.NPM("").Publish(ctx, npm.PublishOptions{
		Name:    name,
		Version: v,
		Tag:     npm.DistTag(s.run.rc.Branch),
	})
	if err != nil {
		return err
	}
	s.logger.Info("published", "package", name, "version", v, "command", res.Command)
	return nil
}
