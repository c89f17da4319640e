package git

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Ensure MemoryRepository implements the port.
var _ sourcecontrol.Repository = (*MemoryRepository)(nil)

type memCommit struct {
	sha     string
	parent  string
	message string
	when    time.Time
}

// memoryEpoch is the commit time of the root commit; each further commit is
// one hour later.
var memoryEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// MemoryRepository is an in-memory sourcecontrol.Repository for tests of
// callers. History is linear; tags are listed newest first.
type MemoryRepository struct {
	mu       sync.Mutex
	branch   string
	head     string
	commits  map[string]memCommit
	tags     map[string]string
	tagOrder []string
	dirty    []string
	staged   []string
	remotes  map[string]string
	pushed   []string
	pushErr  error
	seq      int
}

// NewMemoryRepository creates a repository on branch with a single root commit.
func NewMemoryRepository(branch string) *MemoryRepository {
	m := &MemoryRepository{
		branch:  branch,
		commits: make(map[string]memCommit),
		tags:    make(map[string]string),
		remotes: map[string]string{"origin": "https://github.com/example/project.git"},
	}
	m.addCommit("initial commit")
	return m
}

func (m *MemoryRepository) addCommit(message string) string {
	m.seq++
	sha := fmt.Sprintf("%040x", m.seq)
	m.commits[sha] = memCommit{
		sha:     sha,
		parent:  m.head,
		message: message,
		when:    memoryEpoch.Add(time.Duration(m.seq-1) * time.Hour),
	}
	m.head = sha
	return sha
}

// AddCommit appends a commit at HEAD and returns its SHA.
func (m *MemoryRepository) AddCommit(message string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCommit(message)
}

// AddTag tags HEAD.
func (m *MemoryRepository) AddTag(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagAtHead(name)
}

func (m *MemoryRepository) tagAtHead(name string) {
	m.tags[name] = m.head
	m.tagOrder = append([]string{name}, m.tagOrder...)
}

// ResetHead moves HEAD to an existing commit, the way CI checks out an
// older revision. It panics on an unknown SHA.
func (m *MemoryRepository) ResetHead(sha string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commits[sha]; !ok {
		panic(fmt.Sprintf("memory repository: unknown commit %s", sha))
	}
	m.head = sha
}

// SetDirty marks tracked files as modified.
func (m *MemoryRepository) SetDirty(files ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = append([]string(nil), files...)
}

// SetRemote sets the URL of a remote.
func (m *MemoryRepository) SetRemote(name, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remotes[name] = url
}

// FailPush makes every push return err.
func (m *MemoryRepository) FailPush(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushErr = err
}

// Pushed returns the pushes performed, as "remote branch" or "remote --tags".
func (m *MemoryRepository) Pushed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pushed...)
}

// Staged returns the paths passed to Add since the last commit.
func (m *MemoryRepository) Staged() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.staged...)
}

// Head returns the SHA of HEAD.
func (m *MemoryRepository) Head() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head
}

func (m *MemoryRepository) CurrentBranch(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.branch == "" {
		return "", rperrors.GitWrap(sourcecontrol.ErrDetachedHead, "git.CurrentBranch", "HEAD is not on a branch")
	}
	return m.branch, nil
}

func (m *MemoryRepository) ResolveSHA(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sha, err := m.resolve(ref)
	if err != nil {
		return "", rperrors.GitWrap(err, "git.ResolveSHA", fmt.Sprintf("failed to resolve %s", ref))
	}
	return sha, nil
}

// resolve understands SHAs, tag names, HEAD and a single trailing "^".
func (m *MemoryRepository) resolve(ref string) (string, error) {
	parent := false
	if len(ref) > 1 && ref[len(ref)-1] == '^' {
		parent = true
		ref = ref[:len(ref)-1]
	}

	var sha string
	switch {
	case ref == "HEAD" || ref == m.branch:
		sha = m.head
	case m.tags[ref] != "":
		sha = m.tags[ref]
	case m.commits[ref].sha != "":
		sha = ref
	}
	if sha != "" && parent {
		sha = m.commits[sha].parent
	}
	if sha == "" {
		return "", fmt.Errorf("%w: %s", sourcecontrol.ErrRefNotFound, ref)
	}
	return sha, nil
}

func (m *MemoryRepository) ListTags(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tagOrder...), nil
}

func (m *MemoryRepository) TagExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tags[name]
	return ok, nil
}

func (m *MemoryRepository) TagsPointingAt(_ context.Context, ref string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sha, err := m.resolve(ref)
	if err != nil {
		return nil, rperrors.GitWrap(err, "git.TagsPointingAt", fmt.Sprintf("failed to resolve %s", ref))
	}

	var names []string
	for name, target := range m.tags {
		if target == sha {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryRepository) IsDirty(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty) > 0, nil
}

func (m *MemoryRepository) DirtyFiles(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dirty...), nil
}

func (m *MemoryRepository) Checkout(_ context.Context, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branch = branch
	return nil
}

func (m *MemoryRepository) Add(_ context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = append(m.staged, paths...)
	return nil
}

func (m *MemoryRepository) Commit(_ context.Context, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = nil
	m.dirty = nil
	return m.addCommit(message), nil
}

func (m *MemoryRepository) CreateTag(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[name]; ok {
		return rperrors.GitWrap(sourcecontrol.ErrTagAlreadyExists, "git.CreateTag", fmt.Sprintf("tag %s already exists", name))
	}
	m.tagAtHead(name)
	return nil
}

func (m *MemoryRepository) CommitMessage(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sha, err := m.resolve(ref)
	if err != nil {
		return "", rperrors.GitWrap(err, "git.CommitMessage", fmt.Sprintf("failed to resolve %s", ref))
	}
	return m.commits[sha].message, nil
}

func (m *MemoryRepository) Push(_ context.Context, remote, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return rperrors.GitWrap(m.pushErr, "git.Push", fmt.Sprintf("failed to push to %s", remote))
	}
	m.pushed = append(m.pushed, remote+" "+branch)
	return nil
}

func (m *MemoryRepository) PushTags(_ context.Context, remote string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return rperrors.GitWrap(m.pushErr, "git.PushTags", fmt.Sprintf("failed to push to %s", remote))
	}
	m.pushed = append(m.pushed, remote+" --tags")
	return nil
}

func (m *MemoryRepository) RemoteURL(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.remotes[name]
	if !ok {
		return "", rperrors.GitWrap(fmt.Errorf("%w: %s", sourcecontrol.ErrRemoteNotFound, name), "git.RemoteURL", "failed to get remote")
	}
	return url, nil
}

// CommitDate returns the commit time of ref.
func (m *MemoryRepository) CommitDate(ref string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sha, err := m.resolve(ref)
	if err != nil {
		return time.Time{}, err
	}
	return m.commits[sha].when, nil
}

func (m *MemoryRepository) CommitsSince(_ context.Context, ref string, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sha, err := m.resolve(ref)
	if err != nil {
		return nil, rperrors.GitWrap(err, "git.CommitsSince", fmt.Sprintf("failed to resolve %s", ref))
	}

	var shas []string
	for sha != "" {
		c := m.commits[sha]
		if c.when.After(since) {
			shas = append(shas, sha)
		}
		sha = c.parent
	}
	return shas, nil
}
