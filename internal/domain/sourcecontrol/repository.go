// Package sourcecontrol defines the version control port used by the release
// workflow. Adapters live in internal/infrastructure/git.
package sourcecontrol

import (
	"context"
	"time"
)

// Resolver resolves revisions ("HEAD", "v1.2.0", "v1.2.0^") to commit SHAs.
type Resolver interface {
	ResolveSHA(ctx context.Context, ref string) (string, error)
}

// BranchReader reports the checked out branch.
type BranchReader interface {
	CurrentBranch(ctx context.Context) (string, error)
}

// TagReader provides read access to tags.
type TagReader interface {
	// ListTags returns all tag names, most recent first.
	ListTags(ctx context.Context) ([]string, error)
	TagExists(ctx context.Context, name string) (bool, error)
	// TagsPointingAt returns the tags whose target commit is ref.
	TagsPointingAt(ctx context.Context, ref string) ([]string, error)
}

// WorkingTreeInspector inspects uncommitted changes.
type WorkingTreeInspector interface {
	IsDirty(ctx context.Context) (bool, error)
	// DirtyFiles returns the paths with staged, unstaged or untracked changes.
	DirtyFiles(ctx context.Context) ([]string, error)
}

// Committer records changes in the local repository.
type Committer interface {
	Checkout(ctx context.Context, branch string) error
	Add(ctx context.Context, paths ...string) error
	// Commit creates a commit even when nothing is staged and returns its SHA.
	Commit(ctx context.Context, message string) (string, error)
	// CreateTag creates a lightweight tag at HEAD.
	CreateTag(ctx context.Context, name string) error
	// CommitMessage returns the full message of the commit ref points to.
	CommitMessage(ctx context.Context, ref string) (string, error)
}

// RemoteOperator synchronizes with remotes.
type RemoteOperator interface {
	Push(ctx context.Context, remote, branch string) error
	PushTags(ctx context.Context, remote string) error
	RemoteURL(ctx context.Context, name string) (string, error)
}

// HistoryReader walks commit history.
type HistoryReader interface {
	// CommitsSince returns the SHAs reachable from ref committed after since,
	// newest first.
	CommitsSince(ctx context.Context, ref string, since time.Time) ([]string, error)
}

// Repository is the full port the release workflow needs.
type Repository interface {
	Resolver
	BranchReader
	TagReader
	WorkingTreeInspector
	Committer
	RemoteOperator
	HistoryReader
}
