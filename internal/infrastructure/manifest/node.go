// Package manifest implements the manifest port for node, dotnet and python
// projects. Writes edit the version in place and leave the rest of the file
// byte-for-byte untouched.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/fileutil"
)

// Node manifest files.
const (
	PackageJSON     = "package.json"
	PackageLockJSON = "package-lock.json"
)

type packageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type packageLock struct {
	Version  string `json:"version"`
	Packages map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
}

// Node is the package.json manifest.
type Node struct {
	dir string
}

// NewNode returns the node manifest rooted at dir.
func NewNode(dir string) *Node {
	return &Node{dir: dir}
}

func (n *Node) Mode() domainmanifest.Mode { return domainmanifest.ModeNode }

// Files returns package.json and package-lock.json.
func (n *Node) Files() []string {
	return []string{PackageJSON, PackageLockJSON}
}

func (n *Node) read() (*packageJSON, []byte, error) {
	path := filepath.Join(n.dir, PackageJSON)
	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return nil, nil, err
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", PackageJSON, err)
	}
	return &pkg, data, nil
}

// Read returns the "version" field of package.json.
func (n *Node) Read(_ context.Context) (string, error) {
	const op = "manifest.Node.Read"

	pkg, _, err := n.read()
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to read package.json")
	}
	if pkg.Version == "" {
		return "", rperrors.Manifest(op, "package.json has no version")
	}
	return pkg.Version, nil
}

// ProductName returns the "name" field of package.json.
func (n *Node) ProductName(_ context.Context) (string, error) {
	const op = "manifest.Node.ProductName"

	pkg, _, err := n.read()
	if err != nil {
		return "", rperrors.ManifestWrap(err, op, "failed to read package.json")
	}
	if pkg.Name == "" {
		return "", rperrors.Manifest(op, "package.json has no name")
	}
	return pkg.Name, nil
}

// Write sets the version in package.json and, when present, in the root
// entries of package-lock.json.
func (n *Node) Write(_ context.Context, version string) error {
	const op = "manifest.Node.Write"

	pkg, data, err := n.read()
	if err != nil {
		return rperrors.ManifestWrap(err, op, "failed to read package.json")
	}

	updated, ok := replaceJSONVersion(data, pkg.Version, version, 1)
	if !ok {
		return rperrors.Manifest(op, "package.json has no version to replace")
	}
	if err := fileutil.RewriteFile(filepath.Join(n.dir, PackageJSON), updated); err != nil {
		return rperrors.ManifestWrap(err, op, "failed to write package.json")
	}

	return n.writeLock(version)
}

func (n *Node) writeLock(version string) error {
	const op = "manifest.Node.Write"

	path := filepath.Join(n.dir, PackageLockJSON)
	if !fileutil.Exists(path) {
		return nil
	}

	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return rperrors.ManifestWrap(err, op, "failed to read package-lock.json")
	}

	var lock packageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return rperrors.ManifestWrap(err, op, "invalid package-lock.json")
	}
	if lock.Version == "" {
		return nil
	}

	// lockfileVersion 2+ repeats the root version under packages[""].
	count := 1
	if root, ok := lock.Packages[""]; ok && root.Version == lock.Version {
		count = 2
	}

	updated, ok := replaceJSONVersion(data, lock.Version, version, count)
	if !ok {
		return nil
	}
	if err := fileutil.RewriteFile(path, updated); err != nil {
		return rperrors.ManifestWrap(err, op, "failed to write package-lock.json")
	}
	return nil
}

// replaceJSONVersion rewrites the first count `"version": "<old>"` pairs.
func replaceJSONVersion(data []byte, old, version string, count int) ([]byte, bool) {
	pattern := regexp.MustCompile(`("version"\s*:\s*")` + regexp.QuoteMeta(old) + `(")`)

	replaced := 0
	out := pattern.ReplaceAllFunc(data, func(match []byte) []byte {
		if replaced >= count {
			return match
		}
		replaced++
		return pattern.ReplaceAll(match, []byte("${1}"+version+"${2}"))
	})
	return out, replaced > 0
}
