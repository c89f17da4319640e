package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/webhook"
)

var changelogStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// mountHistory serves the commit of every tag at changelogStart, the given
// closed pull requests and closed issues.
func mountHistory(mux *http.ServeMux, pulls, issues []map[string]any) {
	mux.HandleFunc("/repos/example/project/commits/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"sha":    "abc",
			"commit": map[string]any{"committer": map[string]any{"date": changelogStart.Format(time.RFC3339)}},
		})
	})
	mux.HandleFunc("/repos/example/project/pulls", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, pulls)
	})
	mux.HandleFunc("/repos/example/project/issues", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, issues)
	})
}

func mergedPull(number int, title string, mergedAt time.Time, mergeSHA string, labels ...string) map[string]any {
	ls := make([]map[string]string, 0, len(labels))
	for _, l := range labels {
		ls = append(ls, map[string]string{"name": l})
	}
	return map[string]any{
		"number":           number,
		"title":            title,
		"state":            "closed",
		"merged_at":        mergedAt.Format(time.RFC3339),
		"merge_commit_sha": mergeSHA,
		"head":             map[string]any{"sha": fmt.Sprintf("head%d", number)},
		"labels":           ls,
	}
}

// withStableHistory tags the root commit v1.1.0 and a later commit with
// preTag, leaving HEAD one commit after it.
func (e *testEnv) withStableHistory(preTag string) {
	e.repo.AddTag("v1.1.0")
	e.withReleasedTag(preTag)
}

func TestCreateChangelog(t *testing.T) {
	e := newTestEnv(t, "master")
	e.writePackage("1.2.0-beta3", nil)
	e.withStableHistory("v1.2.0-beta3")
	mountHistory(e.newGitHubServer(),
		[]map[string]any{
			mergedPull(12, "Add login form", changelogStart.Add(2*time.Hour), "m12"),
			mergedPull(9, "Old change", changelogStart.Add(-time.Hour), "m9"),
		},
		[]map[string]any{
			{"number": 7, "title": "Crash on start"},
			{"number": 12, "title": "Add login form", "pull_request": map[string]any{"url": "https://api.github.com/x"}},
		},
	)

	require.NoError(t, e.run("create-changelog"))

	out := e.stdout.String()
	assert.Contains(t, out, "# Changelog v1.2.0 (")
	assert.Contains(t, out, "https://github.com/example/project/compare/v1.1.0...v1.2.0")
	assert.Contains(t, out, "- #12 Add login form (merged 2024-01-01)")
	assert.Contains(t, out, "- #7 Crash on start")
	assert.NotContains(t, out, "Old change")
	assert.Contains(t, e.logs.String(), "using the previous stable release")
}

func TestCreateChangelog_ExplicitStartRef(t *testing.T) {
	e := newTestEnv(t, "develop")
	e.writePackage("1.2.0-alpha3", nil)
	e.withReleasedTag("v1.2.0-alpha3")
	mountHistory(e.newGitHubServer(), nil, nil)

	require.NoError(t, e.run("create-changelog", "v1.2.0-alpha1"))

	out := e.stdout.String()
	assert.Contains(t, out, "# Changelog v1.2.0-alpha4 (")
	assert.Contains(t, out, "compare/v1.2.0-alpha1...v1.2.0-alpha4")
}

func TestCreateChangelog_ExitCodes(t *testing.T) {
	t.Run("no previous stable release", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)
		e.withReleasedTag("v1.2.0-alpha3")

		err := e.run("create-changelog")
		require.Error(t, err)
		assert.True(t, rperrors.IsKind(err, rperrors.KindNotFound))
		assert.Equal(t, ExitFailure, ExitCode(err))
	})

	t.Run("no next version", func(t *testing.T) {
		e := newTestEnv(t, "feature/login")
		e.writePackage("1.2.0-alpha3", nil)

		err := e.run("create-changelog", "v1.1.0")
		require.Error(t, err)
		assert.Equal(t, ExitNoTarget, ExitCode(err))
	})

	t.Run("implausible number of pull requests", func(t *testing.T) {
		e := newTestEnv(t, "master")
		e.writePackage("1.2.0-beta3", nil)
		e.withStableHistory("v1.2.0-beta3")

		pulls := make([]map[string]any, 0, 60)
		for i := 1; i <= 60; i++ {
			pulls = append(pulls, mergedPull(i, fmt.Sprintf("Change %d", i), changelogStart.Add(time.Hour), fmt.Sprintf("m%d", i)))
		}
		mountHistory(e.newGitHubServer(), pulls, nil)

		err := e.run("create-changelog")
		require.Error(t, err)
		assert.Equal(t, ExitSanity, ExitCode(err))
		assert.Empty(t, e.stdout.String())
	})
}

// slackRecorder captures the messages posted to a webhook.
type slackRecorder struct {
	mu       sync.Mutex
	messages []webhook.Message
}

func (s *slackRecorder) posted() []webhook.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webhook.Message(nil), s.messages...)
}

func newSlackServer(t *testing.T) *slackRecorder {
	t.Helper()

	rec := &slackRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg webhook.Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))

		rec.mu.Lock()
		rec.messages = append(rec.messages, msg)
		rec.mu.Unlock()

		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	t.Setenv("SLACK_WEBHOOK", server.URL)
	return rec
}

func TestPublishReleaseNotesOnSlack(t *testing.T) {
	t.Run("first release of a channel", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)
		slack := newSlackServer(t)

		require.NoError(t, e.run("publish-releasenotes-on-slack"))

		msgs := slack.posted()
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].Text, "*v1.2.0-alpha3* was released!")
		assert.Contains(t, msgs[0].Text, "https://github.com/example/project/releases/tag/v1.2.0-alpha3")
		assert.Equal(t, "ci_tools", msgs[0].Username)
		require.Len(t, msgs[0].Attachments, 1)
		assert.Equal(t, "good", msgs[0].Attachments[0].Color)
		assert.Equal(t, webhook.Field{Title: "Channel", Value: "Alpha", Short: true}, msgs[0].Attachments[0].Fields[0])
	})

	t.Run("announces the merged pull requests", func(t *testing.T) {
		e := newTestEnv(t, "master")
		e.writePackage("1.2.0", nil)
		e.repo.AddTag("v1.1.0")
		previous := e.repo.Head()
		fresh := e.repo.AddCommit("Merge pull request #12")
		mountHistory(e.newGitHubServer(),
			[]map[string]any{
				mergedPull(12, "Replace the session API", changelogStart.Add(2*time.Hour), fresh, "breaking change"),
				mergedPull(11, "Shipped last time", changelogStart.Add(-2*time.Hour), previous),
			},
			nil,
		)
		slack := newSlackServer(t)

		require.NoError(t, e.run("publish-releasenotes-on-slack"))

		msgs := slack.posted()
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].Text, "*BREAKING CHANGES*")
		assert.Contains(t, msgs[0].Text, "Replace the session API")
		assert.NotContains(t, msgs[0].Text, "Shipped last time")
		assert.Equal(t, "warning", msgs[0].Attachments[0].Color)
		assert.Equal(t, "Stable", msgs[0].Attachments[0].Fields[0].Value)
	})

	t.Run("dry run prints the announcement", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)
		slack := newSlackServer(t)

		require.NoError(t, e.run("publish-releasenotes-on-slack", "--dry"))
		assert.Contains(t, e.stdout.String(), "*v1.2.0-alpha3* was released!")
		assert.Empty(t, slack.posted())
	})

	t.Run("webhook is required", func(t *testing.T) {
		e := newTestEnv(t, "develop")
		e.writePackage("1.2.0-alpha3", nil)

		err := e.run("publish-releasenotes-on-slack")
		require.Error(t, err)
		assert.True(t, rperrors.IsKind(err, rperrors.KindConfig))
	})
}
