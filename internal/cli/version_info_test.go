package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		args     []string
		want     string
	}{
		{"full version", "1.2.0-alpha3", nil, "1.2.0-alpha3\n"},
		{"major", "12.4.1-beta2", []string{"--major"}, "12\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, "develop")
			e.writePackage(tt.manifest, nil)

			require.NoError(t, e.run(append([]string{"get-version"}, tt.args...)...))
			assert.Equal(t, tt.want, e.stdout.String())
		})
	}
}

func TestGetVersion_Dotnet(t *testing.T) {
	e := newTestEnv(t, "develop")
	e.writeFile("App.csproj", "<Project>\n  <PropertyGroup>\n    <Version>3.1.0-beta4</Version>\n  </PropertyGroup>\n</Project>\n")

	require.NoError(t, e.run("get-version", "--mode", "dotnet"))
	assert.Equal(t, "3.1.0-beta4\n", e.stdout.String())
}

func TestGetVersion_MissingManifest(t *testing.T) {
	e := newTestEnv(t, "develop")

	err := e.run("get-version")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestSetVersion(t *testing.T) {
	e := newTestEnv(t, "develop")
	path := e.writeFile(filepath.Join("src", "App.csproj"),
		"<Project>\n  <PropertyGroup>\n    <Version>1.0.0</Version>\n  </PropertyGroup>\n</Project>\n")

	require.NoError(t, e.run("set-version", "--version", "1.1.0-alpha2", "--csproj-path", path))
	assert.Contains(t, e.readFile(filepath.Join("src", "App.csproj")), "<Version>1.1.0-alpha2</Version>")
}

func TestSetVersion_InvalidVersion(t *testing.T) {
	e := newTestEnv(t, "develop")
	path := e.writeFile("App.csproj", "<Project><PropertyGroup><Version>1.0.0</Version></PropertyGroup></Project>")

	err := e.run("set-version", "--version", "latest", "--csproj-path", path)
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindValidation))
	assert.Contains(t, e.readFile("App.csproj"), "<Version>1.0.0</Version>")
}

func TestNextVersion(t *testing.T) {
	e := newTestEnv(t, "beta")
	e.writePackage("1.3.0-alpha7", nil)
	e.repo.AddTag("v1.2.0")
	e.withReleasedTag("v1.3.0-alpha7")

	require.NoError(t, e.run("next-version", "-o", "json"))

	var report versionReport
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &report))
	assert.Equal(t, versionReport{
		ManifestVersion: "1.3.0-alpha7",
		Branch:          "beta",
		NextVersion:     "1.3.0-beta1",
		NextTag:         "v1.3.0-beta1",
		Eligible:        true,
		PreviousStable:  "v1.2.0",
		NpmDistTag:      "beta",
	}, report)
}

func TestNextVersion_Formats(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)
		e.withReleasedTag("v1.2.0-alpha3")

		require.NoError(t, e.run("next-version", "--output", "yaml"))

		var report map[string]any
		require.NoError(t, yaml.Unmarshal(e.stdout.Bytes(), &report))
		assert.Equal(t, "1.2.0-alpha4", report["next_version"])
		assert.Equal(t, "alpha", report["npm_dist_tag"])
		assert.NotContains(t, report, "previous_stable")
	})

	t.Run("text", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)
		e.withReleasedTag("v1.2.0-alpha3")

		require.NoError(t, e.run("next-version"))
		assert.Equal(t, "1.2.0-alpha4\n", e.stdout.String())
	})

	t.Run("json flag", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)
		e.withReleasedTag("v1.2.0-alpha3")

		require.NoError(t, e.run("next-version", "--json"))
		assert.True(t, json.Valid(e.stdout.Bytes()), e.stdout.String())
	})

	t.Run("unknown", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)

		err := e.run("next-version", "-o", "xml")
		require.Error(t, err)
		assert.True(t, rperrors.IsKind(err, rperrors.KindValidation))
	})
}

func TestNextVersion_RedundantRun(t *testing.T) {
	e := newTestEnv(t, "develop")
	e.writePackage("1.2.0-alpha4", nil)
	e.withReleasedTag("v1.2.0-alpha3")
	e.repo.AddTag("v1.2.0-alpha4")

	require.NoError(t, e.run("next-version", "-o", "json"))

	var report versionReport
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &report))
	assert.True(t, report.Redundant)
	assert.False(t, report.Retry)
}
