// Package config provides configuration management for ci_tools.
package config

import (
	"time"
)

// Config is the root configuration for ci_tools.
type Config struct {
	// Mode selects the manifest flavor (node, dotnet, python).
	Mode string `mapstructure:"mode" json:"mode" yaml:"mode"`
	// ForcePublish releases even when the current commit already carries a
	// version tag. Mapped from CI_TOOLS_FORCE_PUBLISH.
	ForcePublish bool `mapstructure:"force_publish" json:"force_publish" yaml:"force_publish"`
	// Git configures repository access and commit identity.
	Git GitConfig `mapstructure:"git" json:"git" yaml:"git"`
	// NPM configures registry interaction.
	NPM NPMConfig `mapstructure:"npm" json:"npm" yaml:"npm"`
	// GitHub configures the GitHub API client.
	GitHub GitHubConfig `mapstructure:"github" json:"github" yaml:"github"`
	// Slack configures release announcements.
	Slack SlackConfig `mapstructure:"slack" json:"slack" yaml:"slack"`
	// Changelog configures changelog rendering.
	Changelog ChangelogConfig `mapstructure:"changelog" json:"changelog" yaml:"changelog"`
	// Output configures output settings.
	Output OutputConfig `mapstructure:"output" json:"output" yaml:"output"`
}

// GitConfig configures git operations and authentication.
type GitConfig struct {
	// DefaultRemote is the remote tags are pushed to (default: "origin").
	DefaultRemote string `mapstructure:"default_remote" json:"default_remote" yaml:"default_remote"`
	// UseCLIFallback falls back to the git binary when go-git cannot push.
	UseCLIFallback bool `mapstructure:"use_cli_fallback" json:"use_cli_fallback" yaml:"use_cli_fallback"`
	// UserName and UserEmail are the committer identity for version commits.
	UserName  string `mapstructure:"user_name" json:"user_name,omitempty" yaml:"user_name,omitempty"`
	UserEmail string `mapstructure:"user_email" json:"user_email,omitempty" yaml:"user_email,omitempty"`
	// AuthUser and AuthToken authenticate pushes over HTTPS.
	AuthUser  string `mapstructure:"auth_user" json:"auth_user,omitempty" yaml:"auth_user,omitempty"`
	AuthToken string `mapstructure:"auth_token" json:"-" yaml:"-"`
}

// NPMConfig configures npm.
type NPMConfig struct {
	// VerifyAttempts is how often the registry is polled after a publish.
	VerifyAttempts int `mapstructure:"verify_attempts" json:"verify_attempts" yaml:"verify_attempts"`
	// VerifyInterval is the initial wait between polls.
	VerifyInterval time.Duration `mapstructure:"verify_interval" json:"verify_interval" yaml:"verify_interval"`
	// DistTags are the channels `replace-dist-tags` looks for.
	DistTags []string `mapstructure:"dist_tags" json:"dist_tags" yaml:"dist_tags"`
}

// GitHubConfig configures the GitHub API client.
type GitHubConfig struct {
	// Token is used for reading pull requests and issues.
	Token string `mapstructure:"token" json:"-" yaml:"-"`
	// ReleaseToken is used for creating and editing releases.
	ReleaseToken string `mapstructure:"release_token" json:"-" yaml:"-"`
	// APIURL overrides the API endpoint, e.g. for GitHub Enterprise.
	APIURL string `mapstructure:"api_url" json:"api_url,omitempty" yaml:"api_url,omitempty"`
	// Repository is "owner/name". Detected from the remote when empty.
	Repository string `mapstructure:"repository" json:"repository,omitempty" yaml:"repository,omitempty"`
}

// ReleaseAuthToken is the token used for release writes, falling back to
// Token.
func (c GitHubConfig) ReleaseAuthToken() string {
	if c.ReleaseToken != "" {
		return c.ReleaseToken
	}
	return c.Token
}

// SlackConfig configures the Slack incoming webhook.
type SlackConfig struct {
	Webhook    string        `mapstructure:"webhook" json:"-" yaml:"-"`
	Channel    string        `mapstructure:"channel" json:"channel,omitempty" yaml:"channel,omitempty"`
	Username   string        `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty"`
	IconEmoji  string        `mapstructure:"icon_emoji" json:"icon_emoji,omitempty" yaml:"icon_emoji,omitempty"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	RetryCount int           `mapstructure:"retry_count" json:"retry_count" yaml:"retry_count"`
}

// ChangelogConfig configures changelog rendering.
type ChangelogConfig struct {
	// TemplateDir holds *.tmpl files overriding the built-in templates.
	TemplateDir string `mapstructure:"template_dir" json:"template_dir,omitempty" yaml:"template_dir,omitempty"`
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// Format is the output format (text, json, yaml).
	Format string `mapstructure:"format" json:"format" yaml:"format"`
	// Color enables colored output.
	Color bool `mapstructure:"color" json:"color" yaml:"color"`
	// Verbose enables verbose output.
	Verbose bool `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	// Quiet suppresses all output except errors.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode: "node",
		Git: GitConfig{
			DefaultRemote:  "origin",
			UseCLIFallback: true,
			AuthUser:       "${GH_USER}",
			AuthToken:      "${GH_TOKEN}",
		},
		NPM: NPMConfig{
			VerifyAttempts: 10,
			VerifyInterval: 2 * time.Second,
			DistTags:       []string{"alpha", "beta"},
		},
		GitHub: GitHubConfig{
			Token:        "${GH_TOKEN}",
			ReleaseToken: "${RELEASE_GH_TOKEN}",
		},
		Slack: SlackConfig{
			Webhook:    "${SLACK_WEBHOOK}",
			Username:   "ci_tools",
			IconEmoji:  ":rocket:",
			Timeout:    10 * time.Second,
			RetryCount: 3,
		},
		Output: OutputConfig{
			Format:   "text",
			Color:    true,
			LogLevel: "info",
		},
	}
}

// ConfigFileNames to search for, in order.
var ConfigFileNames = []string{
	"ci_tools",
	".ci_tools",
}

// ConfigFileExtensions supported by Viper.
var ConfigFileExtensions = []string{
	"yaml",
	"yml",
	"json",
	"toml",
}
