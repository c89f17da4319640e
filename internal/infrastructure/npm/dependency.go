// Package npm drives the npm CLI: publishing, registry lookups and the
// dependency rewrites used when promoting releases between channels.
package npm

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/fileutil"
)

// Dependency is one entry of a package.json dependency map.
type Dependency struct {
	Name    string
	Version string
}

// String renders the dependency as an npm install argument.
func (d Dependency) String() string {
	return d.Name + "@" + d.Version
}

// DependencyType selects the dependency map of package.json.
type DependencyType string

// Dependency types.
const (
	Prod     DependencyType = "prod"
	Dev      DependencyType = "dev"
	Optional DependencyType = "optional"
)

// DependencyTypes lists the types in install order.
var DependencyTypes = []DependencyType{Prod, Dev, Optional}

func (t DependencyType) installFlags() []string {
	switch t {
	case Dev:
		return []string{"--save-exact", "--save-dev"}
	case Optional:
		return []string{"--save-exact", "--save-optional"}
	default:
		return []string{"--save-exact"}
	}
}

// PackageFile is the subset of package.json the npm commands read.
type PackageFile struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

// ReadPackageFile reads package.json from dir.
func ReadPackageFile(dir string) (*PackageFile, error) {
	const op = "npm.ReadPackageFile"

	data, err := fileutil.ReadManifest(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, rperrors.ManifestWrap(err, op, "failed to read package.json")
	}

	var pkg PackageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, rperrors.ManifestWrap(err, op, "invalid package.json")
	}
	return &pkg, nil
}

// Of returns the dependencies of type t sorted by name.
func (p *PackageFile) Of(t DependencyType) []Dependency {
	switch t {
	case Dev:
		return toDependencies(p.DevDependencies)
	case Optional:
		return toDependencies(p.OptionalDependencies)
	default:
		return toDependencies(p.Dependencies)
	}
}

func toDependencies(m map[string]string) []Dependency {
	deps := lo.MapToSlice(m, func(name, v string) Dependency {
		return Dependency{Name: name, Version: v}
	})
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// PreVersionDependencies returns the runtime and dev dependencies pinned to
// a pre-release version.
func (p *PackageFile) PreVersionDependencies() []Dependency {
	deps := append(p.Of(Prod), p.Of(Dev)...)
	return lo.Filter(deps, func(d Dependency, _ int) bool {
		return strings.Contains(d.Version, "-")
	})
}

// MatchingPrefix keeps the dependencies whose name starts with one of the
// patterns.
func MatchingPrefix(deps []Dependency, patterns []string) []Dependency {
	return lo.Filter(deps, func(d Dependency, _ int) bool {
		return lo.SomeBy(patterns, func(p string) bool { return strings.HasPrefix(d.Name, p) })
	})
}

// IsStrictVersion reports whether v pins an exact version rather than a
// caret or tilde range.
func IsStrictVersion(v string) bool {
	return !strings.HasPrefix(v, "^") && !strings.HasPrefix(v, "~")
}

// Dist-tags handled when promoting dependencies.
const (
	DistTagFeature = "feature"
	DistTagAlpha   = "alpha"
	DistTagBeta    = "beta"
	DistTagLatest  = "latest"
)

var (
	featureTagPattern = regexp.MustCompile(`^feature~`)
	preVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+-`)
)

// MatchesDistTag reports whether dep is pinned to one of distTags: either
// the tag itself, a feature branch tag when "feature" is requested, or a
// pre-release version of that channel.
func MatchesDistTag(dep Dependency, distTags []string) bool {
	for _, tag := range distTags {
		if dep.Version == tag {
			return true
		}
		if tag == DistTagFeature && featureTagPattern.MatchString(dep.Version) {
			return true
		}
		if preVersionPattern.MatchString(dep.Version) {
			if p := version.Parse(dep.Version); p != nil && p.Channel.String() == tag {
				return true
			}
		}
	}
	return false
}

// NextReleaseChannel returns the channel a dependency is promoted to.
func NextReleaseChannel(channel string) (string, error) {
	switch channel {
	case DistTagFeature:
		return DistTagAlpha, nil
	case DistTagAlpha:
		return DistTagBeta, nil
	case DistTagBeta:
		return DistTagLatest, nil
	default:
		return "", rperrors.Validation("npm.NextReleaseChannel",
			fmt.Sprintf("could not determine next release channel for %q", channel))
	}
}
