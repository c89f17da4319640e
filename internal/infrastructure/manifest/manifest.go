package manifest

import (
	"fmt"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
)

// New returns the manifest adapter for mode.
func New(mode domainmanifest.Mode, dir string, runner command.Runner) (domainmanifest.Manifest, error) {
	switch mode {
	case domainmanifest.ModeNode:
		return NewNode(dir), nil
	case domainmanifest.ModeDotnet:
		return NewDotnet(dir), nil
	case domainmanifest.ModePython:
		return NewPython(dir, runner), nil
	default:
		return nil, rperrors.Config("manifest.New", fmt.Sprintf("unknown mode %q", mode))
	}
}
