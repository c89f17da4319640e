package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	domainmanifest "github.com/relicta-tech/ci-tools/internal/domain/manifest"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}
	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors   *ValidationError
	warnings io.Writer
}

// NewValidator creates a new configuration validator. Warnings go to stderr.
func NewValidator() *Validator {
	return &Validator{
		errors:   &ValidationError{},
		warnings: os.Stderr,
	}
}

// WithWarningOutput redirects the printed warnings. A nil writer silences them.
func (v *Validator) WithWarningOutput(w io.Writer) *Validator {
	v.warnings = w
	return v
}

// Validate validates the configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateMode(cfg.Mode)
	v.validateGit(cfg.Git)
	v.validateNPM(cfg.NPM)
	v.validateGitHub(cfg.GitHub)
	v.validateSlack(cfg.Slack)
	v.validateChangelog(cfg.Changelog)
	v.validateOutput(cfg.Output)

	if v.errors.HasWarnings() && v.warnings != nil {
		fmt.Fprintf(v.warnings, "\n⚠️  Configuration Warnings:\n")
		for _, warning := range v.errors.Warnings {
			fmt.Fprintf(v.warnings, "  - %s\n", warning)
		}
		fmt.Fprintf(v.warnings, "\n")
	}

	if v.errors.HasErrors() {
		return rperrors.Validation("config.Validate", v.errors.Error())
	}
	return nil
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return v.errors.Warnings
}

func (v *Validator) validateMode(mode string) {
	if _, err := domainmanifest.ParseMode(mode); err != nil {
		v.errors.Addf("mode: must be one of %v, got %q", domainmanifest.Modes(), mode)
	}
}

func (v *Validator) validateGit(cfg GitConfig) {
	if cfg.DefaultRemote == "" {
		v.errors.Addf("git.default_remote: must not be empty")
	}
	if (cfg.UserName == "") != (cfg.UserEmail == "") {
		v.errors.Warnf("git.user_name and git.user_email should be set together, falling back to the git configuration")
	}
}

func (v *Validator) validateNPM(cfg NPMConfig) {
	if cfg.VerifyAttempts < 1 {
		v.errors.Addf("npm.verify_attempts: must be at least 1, got %d", cfg.VerifyAttempts)
	}
	if cfg.VerifyInterval < 0 {
		v.errors.Addf("npm.verify_interval: must not be negative")
	}
	for _, tag := range cfg.DistTags {
		if tag == "" || strings.ContainsAny(tag, " /") {
			v.errors.Addf("npm.dist_tags: invalid dist-tag %q", tag)
		}
	}
}

func (v *Validator) validateGitHub(cfg GitHubConfig) {
	if cfg.APIURL != "" {
		if u, err := url.Parse(cfg.APIURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			v.errors.Addf("github.api_url: invalid URL: %s", cfg.APIURL)
		}
	}
	if cfg.Repository != "" {
		owner, name, ok := strings.Cut(cfg.Repository, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			v.errors.Addf("github.repository: must be owner/name, got %q", cfg.Repository)
		}
	}
}

func (v *Validator) validateSlack(cfg SlackConfig) {
	if cfg.Webhook != "" {
		if u, err := url.Parse(cfg.Webhook); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			// The URL itself is a secret.
			v.errors.Addf("slack.webhook: invalid URL")
		}
	}
	if cfg.Timeout < 0 {
		v.errors.Addf("slack.timeout: must not be negative")
	}
	if cfg.RetryCount < 0 {
		v.errors.Addf("slack.retry_count: must not be negative, got %d", cfg.RetryCount)
	}
	if cfg.Channel != "" && !strings.HasPrefix(cfg.Channel, "#") && !strings.HasPrefix(cfg.Channel, "@") {
		v.errors.Warnf("slack.channel: %q usually starts with # or @", cfg.Channel)
	}
}

func (v *Validator) validateChangelog(cfg ChangelogConfig) {
	if cfg.TemplateDir == "" {
		return
	}
	info, err := os.Stat(cfg.TemplateDir)
	switch {
	case os.IsNotExist(err):
		v.errors.Addf("changelog.template_dir: directory does not exist: %s", cfg.TemplateDir)
	case err == nil && !info.IsDir():
		v.errors.Addf("changelog.template_dir: not a directory: %s", cfg.TemplateDir)
	}
}

func (v *Validator) validateOutput(cfg OutputConfig) {
	validFormats := []string{"text", "json", "yaml"}
	if !slices.Contains(validFormats, cfg.Format) {
		v.errors.Addf("output.format: must be one of %v, got %q", validFormats, cfg.Format)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.LogLevel) {
		v.errors.Addf("output.log_level: must be one of %v, got %q", validLevels, cfg.LogLevel)
	}

	if cfg.Quiet && cfg.Verbose {
		v.errors.Addf("output: quiet and verbose are mutually exclusive")
	}
}

// Validate validates cfg with a fresh validator.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
