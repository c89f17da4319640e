package manifest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/fileutil"
)

// CsprojPattern locates the project file of a dotnet project.
const CsprojPattern = "*.csproj"

type csproj struct {
	PropertyGroups []struct {
		Version      string `xml:"Version"`
		Product      string `xml:"Product"`
		AssemblyName string `xml:"AssemblyName"`
	} `xml:"PropertyGroup"`
}

// Dotnet is the *.csproj manifest.
type Dotnet struct {
	dir  string
	path string
}

// NewDotnet returns the dotnet manifest of the single *.csproj in dir.
func NewDotnet(dir string) *Dotnet {
	return &Dotnet{dir: dir}
}

// NewDotnetAt returns the dotnet manifest of an explicit project file.
func NewDotnetAt(path string) *Dotnet {
	return &Dotnet{dir: filepath.Dir(path), path: filepath.Base(path)}
}

func (d *Dotnet) Mode() domainmanifest.Mode { return domainmanifest.ModeDotnet }

// Files returns the project file, or nothing when it cannot be located.
func (d *Dotnet) Files() []string {
	name, err := d.locate()
	if err != nil {
		return nil
	}
	return []string{name}
}

func (d *Dotnet) locate() (string, error) {
	if d.path != "" {
		return d.path, nil
	}

	matches, err := doublestar.Glob(os.DirFS(d.dir), CsprojPattern)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s file found in %s", CsprojPattern, d.dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("more than one .csproj file found: %s", strings.Join(matches, ", "))
	}
}

func (d *Dotnet) load() (string, []byte, *csproj, error) {
	name, err := d.locate()
	if err != nil {
		return "", nil, nil, err
	}

	path := filepath.Join(d.dir, name)
	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return "", nil, nil, err
	}

	var proj csproj
	if err := xml.Unmarshal(data, &proj); err != nil {
		return "", nil, nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return path, data, &proj, nil
}

func (p *csproj) first(field func(i int) string) string {
	for i := range p.PropertyGroups {
		if v := strings.TrimSpace(field(i)); v != "" {
			return v
		}
	}
	return ""
}

// Read returns Project/PropertyGroup/Version.
func (d *Dotnet) Read(_ context.Context) (string, error) {
	const op = "manifest.Dotnet.Read"

	_, _, proj, err := d.load()
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to read project file")
	}

	version := proj.first(func(i int) string { return proj.PropertyGroups[i].Version })
	if version == "" {
		return "", rperrors.Manifest(op, "project file has no <Version>")
	}
	return version, nil
}

// ProductName returns <Product>, falling back to <AssemblyName>.
func (d *Dotnet) ProductName(_ context.Context) (string, error) {
	const op = "manifest.Dotnet.ProductName"

	_, _, proj, err := d.load()
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to read project file")
	}

	if name := proj.first(func(i int) string { return proj.PropertyGroups[i].Product }); name != "" {
		return name, nil
	}
	if name := proj.first(func(i int) string { return proj.PropertyGroups[i].AssemblyName }); name != "" {
		return name, nil
	}
	return "", rperrors.Manifest(op, "project file sets neither <Product> nor <AssemblyName>")
}

// Write replaces the first <Version>current</Version> element.
func (d *Dotnet) Write(ctx context.Context, version string) error {
	const op = "manifest.Dotnet.Write"

	current, err := d.Read(ctx)
	if err != nil {
		return err
	}

	path, data, _, err := d.load()
	if err != nil {
		return rperrors.ManifestWrap(err, op, "failed to read project file")
	}

	old := []byte("<Version>" + current + "</Version>")
	if !bytes.Contains(data, old) {
		return rperrors.Manifest(op, fmt.Sprintf("could not find %s in %s", old, filepath.Base(path)))
	}
	updated := bytes.Replace(data, old, []byte("<Version>"+version+"</Version>"), 1)

	if err := fileutil.RewriteFile(path, updated); err != nil {
		return rperrors.ManifestWrap(err, op, "failed to write project file")
	}
	return nil
}
