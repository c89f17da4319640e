package manifest

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/pelletier/go-toml/v2"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/fileutil"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
)

// Python manifest files.
const (
	SetupPy       = "setup.py"
	PyprojectToml = "pyproject.toml"
)

var (
	setupVersionPattern = regexp.MustCompile(`\bversion\s*=\s*(?:setuptools\.sic\(\s*)?['"]([^'"]+)['"]`)
	setupNamePattern    = regexp.MustCompile(`\bname\s*=\s*['"]([^'"]+)['"]`)
)

type pyproject struct {
	Project struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *pyproject) version() string {
	if p.Project.Version != "" {
		return p.Project.Version
	}
	return p.Tool.Poetry.Version
}

func (p *pyproject) name() string {
	if p.Project.Name != "" {
		return p.Project.Name
	}
	return p.Tool.Poetry.Name
}

// Python is the setup.py manifest, with pyproject.toml used when there is
// no setup.py.
type Python struct {
	dir    string
	runner command.Runner
}

// NewPython returns the python manifest rooted at dir. runner evaluates
// setup.py when the version is computed rather than a literal.
func NewPython(dir string, runner command.Runner) *Python {
	return &Python{dir: dir, runner: runner}
}

func (p *Python) Mode() domainmanifest.Mode { return domainmanifest.ModePython }

func (p *Python) usesSetupPy() bool {
	return fileutil.Exists(filepath.Join(p.dir, SetupPy))
}

// Files returns the file Write modifies.
func (p *Python) Files() []string {
	if !p.usesSetupPy() && fileutil.Exists(filepath.Join(p.dir, PyprojectToml)) {
		return []string{PyprojectToml}
	}
	return []string{SetupPy}
}

func (p *Python) readPyproject() ([]byte, *pyproject, error) {
	data, err := fileutil.ReadManifest(filepath.Join(p.dir, PyprojectToml))
	if err != nil {
		return nil, nil, err
	}

	var proj pyproject
	if err := toml.Unmarshal(data, &proj); err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", PyprojectToml, err)
	}
	return data, &proj, nil
}

// Read returns the declared version.
func (p *Python) Read(ctx context.Context) (string, error) {
	const op = "manifest.Python.Read"

	if !p.usesSetupPy() {
		_, proj, err := p.readPyproject()
		if err != nil {
			return "", rperrors.ManifestWrap(err, op, "failed to read pyproject.toml")
		}
		if proj.version() == "" {
			return "", rperrors.Manifest(op, "pyproject.toml has no version")
		}
		return proj.version(), nil
	}

	data, err := fileutil.ReadManifest(filepath.Join(p.dir, SetupPy))
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to read setup.py")
	}
	if m := setupVersionPattern.FindSubmatch(data); m != nil {
		return string(m[1]), nil
	}

	if p.runner == nil {
		return "", rperrors.Manifest(op, "setup.py has no literal version")
	}
	res, err := p.runner.Run(ctx, p.dir, "python3", SetupPy, "--version")
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to evaluate setup.py")
	}
	lines := res.Lines()
	if len(lines) == 0 {
		return "", rperrors.Manifest(op, "setup.py --version printed nothing")
	}
	return lines[len(lines)-1], nil
}

// ProductName returns the package name.
func (p *Python) ProductName(_ context.Context) (string, error) {
	const op = "manifest.Python.ProductName"

	if !p.usesSetupPy() {
		_, proj, err := p.readPyproject()
		if err != nil {
			return "", rperrors.ManifestWrap(err, op, "failed to read pyproject.toml")
		}
		if proj.name() == "" {
			return "", rperrors.Manifest(op, "pyproject.toml has no name")
		}
		return proj.name(), nil
	}

	data, err := fileutil.ReadManifest(filepath.Join(p.dir, SetupPy))
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to read setup.py")
	}
	m := setupNamePattern.FindSubmatch(data)
	if m == nil {
		return "", rperrors.Manifest(op, "unable to parse name from setup.py; please ensure name is set")
	}
	return string(m[1]), nil
}

// Write replaces the first occurrence of the current version.
func (p *Python) Write(ctx context.Context, version string) error {
	const op = "manifest.Python.Write"

	current, err := p.Read(ctx)
	if err != nil {
		return err
	}

	name := p.Files()[0]
	path := filepath.Join(p.dir, name)
	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return rperrors.ManifestWrap(err, op, fmt.Sprintf("failed to read %s", name))
	}

	var updated []byte
	if name == PyprojectToml {
		pattern := regexp.MustCompile(`(?m)^(\s*version\s*=\s*["'])` + regexp.QuoteMeta(current) + `(["'])`)
		loc := pattern.FindIndex(data)
		if loc == nil {
			return rperrors.Manifest(op, fmt.Sprintf("could not find version %s in %s", current, name))
		}
		replacement := pattern.ReplaceAll(data[loc[0]:loc[1]], []byte("${1}"+version+"${2}"))
		updated = append(append(append([]byte{}, data[:loc[0]]...), replacement...), data[loc[1]:]...)
	} else {
		if !bytes.Contains(data, []byte(current)) {
			return rperrors.Manifest(op, fmt.Sprintf("could not find version %s in %s", current, name))
		}
		updated = bytes.Replace(data, []byte(current), []byte(version), 1)
	}

	if err := fileutil.RewriteFile(path, updated); err != nil {
		return rperrors.ManifestWrap(err, op, fmt.Sprintf("failed to write %s", name))
	}
	return nil
}
