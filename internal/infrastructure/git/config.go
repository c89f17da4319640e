// Package git implements the source control port with go-git.
package git

import (
	"context"
	"time"
)

// Default timeouts for git operations to prevent hangs on slow/unreachable remotes.
const (
	// DefaultLocalTimeout is the timeout for local git operations.
	DefaultLocalTimeout = 30 * time.Second

	// DefaultRemoteTimeout is the timeout for remote git operations (network calls).
	DefaultRemoteTimeout = 60 * time.Second
)

// withLocalTimeout applies a timeout for local git operations.
func withLocalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultLocalTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultLocalTimeout)
}

// withRemoteTimeout applies a timeout for remote git operations.
func withRemoteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < DefaultRemoteTimeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, DefaultRemoteTimeout)
}

// Config configures the go-git repository adapter.
type Config struct {
	// Path is a directory inside the working tree.
	Path string
	// DefaultRemote is used when callers pass an empty remote name.
	DefaultRemote string
	// AuthToken authenticates HTTPS pushes.
	AuthToken string
	// AuthUsername goes with AuthToken; GitHub accepts any non-empty name.
	AuthUsername string
	// UserName and UserEmail sign release commits. Empty values fall back
	// to the git configuration.
	UserName  string
	UserEmail string
	// UseCLIFallback retries failed pushes with the git binary, which knows
	// about credential helpers and SSH agents.
	UseCLIFallback bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Path:          ".",
		DefaultRemote: "origin",
		AuthUsername:  "x-access-token",
	}
}

// Option configures the adapter.
type Option func(*Config)

// WithPath sets the repository path.
func WithPath(path string) Option {
	return func(cfg *Config) {
		cfg.Path = path
	}
}

// WithDefaultRemote sets the default remote.
func WithDefaultRemote(remote string) Option {
	return func(cfg *Config) {
		if remote != "" {
			cfg.DefaultRemote = remote
		}
	}
}

// WithAuthToken sets the token used for HTTPS pushes.
func WithAuthToken(token string) Option {
	return func(cfg *Config) {
		cfg.AuthToken = token
	}
}

// WithAuthUsername sets the username sent with the token.
func WithAuthUsername(username string) Option {
	return func(cfg *Config) {
		if username != "" {
			cfg.AuthUsername = username
		}
	}
}

// WithCommitter sets the identity of release commits.
func WithCommitter(name, email string) Option {
	return func(cfg *Config) {
		cfg.UserName = name
		cfg.UserEmail = email
	}
}

// WithCLIFallback enables pushing with the git binary when go-git fails.
func WithCLIFallback(enabled bool) Option {
	return func(cfg *Config) {
		cfg.UseCLIFallback = enabled
	}
}
