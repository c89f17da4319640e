package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/ci-tools/internal/config"
	"github.com/relicta-tech/ci-tools/internal/container"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/command"
	gitadapter "github.com/relicta-tech/ci-tools/internal/infrastructure/git"
)

// testEnv runs commands against a temporary project, an in-memory
// repository and a fake command runner.
type testEnv struct {
	t      *testing.T
	dir    string
	repo   *gitadapter.MemoryRepository
	runner *command.FakeRunner
	env    map[string]string

	stdout bytes.Buffer
	stderr bytes.Buffer
	logs   bytes.Buffer
}

func newTestEnv(t *testing.T, branch string) *testEnv {
	t.Helper()

	// Keep the developer's environment out of the configuration.
	for _, key := range []string{"GH_TOKEN", "GITHUB_TOKEN", "RELEASE_GH_TOKEN", "SLACK_WEBHOOK"} {
		t.Setenv(key, "")
	}

	e := &testEnv{
		t:      t,
		dir:    t.TempDir(),
		repo:   gitadapter.NewMemoryRepository(branch),
		runner: command.NewFakeRunner(),
		env:    map[string]string{},
	}

	prev := newContainerApp
	newContainerApp = func(cfg *config.Config, o *Options) (cliApp, error) {
		return container.New(cfg,
			container.WithWorkDir(o.WorkDir),
			container.WithRepository(e.repo),
			container.WithRunner(e.runner),
			container.WithLogger(o.Logger),
		)
	}
	t.Cleanup(func() { newContainerApp = prev })

	return e
}

// writePackage writes package.json with the given version and dependencies.
func (e *testEnv) writePackage(version string, deps map[string]string) {
	e.t.Helper()

	pkg := map[string]any{"name": "demo", "version": version}
	if deps != nil {
		pkg["dependencies"] = deps
	}
	data, err := json.MarshalIndent(pkg, "", "  ")
	require.NoError(e.t, err)
	e.writeFile("package.json", string(data)+"\n")
}

func (e *testEnv) writeFile(name, content string) string {
	e.t.Helper()

	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) readFile(name string) string {
	e.t.Helper()

	data, err := os.ReadFile(filepath.Join(e.dir, name))
	require.NoError(e.t, err)
	return string(data)
}

// useGitHub points the GitHub client at server.
func (e *testEnv) useGitHub(server string) {
	e.writeFile("ci_tools.yaml", "github:\n  api_url: "+server+"\n")
}

func (e *testEnv) run(args ...string) error {
	e.t.Helper()

	o := &Options{
		Styles: DefaultStyles(),
		Stdout: &e.stdout,
		Stderr: &e.stderr,
		Logger: log.New(&e.logs),
		Getenv: func(key string) string { return e.env[key] },
	}
	o.SetVersion("1.0.0-test", "abc123", "2024-01-01")

	args = append(args, "--workdir", e.dir, "--no-color")
	err := Run(context.Background(), o, args)
	require.NoError(e.t, o.Cleanup())
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
