// Package manifest defines the project manifest port: the file that carries a
// package's version (package.json, *.csproj, setup.py or pyproject.toml).
package manifest

import (
	"context"
	"fmt"
	"strings"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Mode selects the manifest format.
type Mode string

// Supported modes.
const (
	ModeNode   Mode = "node"
	ModeDotnet Mode = "dotnet"
	ModePython Mode = "python"
)

// DefaultMode is used when no mode is configured.
const DefaultMode = ModeNode

var modes = []Mode{ModeNode, ModeDotnet, ModePython}

// Modes returns all supported modes.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ParseMode parses a mode name. Unknown modes are a configuration error.
func ParseMode(s string) (Mode, error) {
	const op = "manifest.ParseMode"

	if s == "" {
		return DefaultMode, nil
	}

	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range modes {
		if m == known {
			return m, nil
		}
	}

	return "", rperrors.Config(op, fmt.Sprintf("unknown mode %q (expected one of node, dotnet, python)", s))
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Manifest reads and writes the version of one project.
type Manifest interface {
	Mode() Mode
	// Read returns the version currently declared by the manifest.
	Read(ctx context.Context) (string, error)
	// Write replaces the declared version, touching nothing else in the file.
	Write(ctx context.Context, version string) error
	// ProductName returns the package or product name.
	ProductName(ctx context.Context) (string, error)
	// Files lists the paths, relative to the project root, that Write modifies.
	Files() []string
}
