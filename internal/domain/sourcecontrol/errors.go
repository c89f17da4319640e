package sourcecontrol

import "errors"

// Domain errors for source control operations.
var (
	// ErrNotARepository indicates the path is not a git repository.
	ErrNotARepository = errors.New("not a git repository")

	// ErrRefNotFound indicates a revision could not be resolved.
	ErrRefNotFound = errors.New("reference not found")

	// ErrTagNotFound indicates the tag was not found.
	ErrTagNotFound = errors.New("tag not found")

	// ErrTagAlreadyExists indicates the tag already exists.
	ErrTagAlreadyExists = errors.New("tag already exists")

	// ErrDetachedHead indicates HEAD does not point at a branch.
	ErrDetachedHead = errors.New("HEAD is detached")

	// ErrRemoteNotFound indicates the remote was not found.
	ErrRemoteNotFound = errors.New("remote not found")

	// ErrPushFailed indicates a push operation failed.
	ErrPushFailed = errors.New("push failed")
)
