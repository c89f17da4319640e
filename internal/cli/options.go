// Package cli provides the command-line interface for ci_tools.
package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/relicta-tech/ci-tools/internal/config"
	"github.com/relicta-tech/ci-tools/internal/security"
)

// Options holds the CLI runtime options and dependencies.
// Each command tree gets its own Options so tests can run commands in
// isolation.
type Options struct {
	// Version information
	Version VersionInfo

	// Global flags
	ConfigFile              string
	Verbose                 bool
	JSONOutput              bool
	NoColor                 bool
	LogLevel                string
	WorkDir                 string
	OnlyOnPrimaryBranches   bool
	ExceptOnPrimaryBranches bool

	// Runtime state
	Config *config.Config
	Logger *log.Logger
	Styles Styles

	// Masker learns the configured credentials once the config is loaded.
	// Stderr and the logger write through it.
	Masker *security.Masker

	// I/O streams (for testing)
	Stdout io.Writer
	Stderr io.Writer

	// Getenv reads the CI environment (GIT_BRANCH, GITHUB_REF).
	Getenv func(string) string

	app cliApp
}

// VersionInfo holds version metadata.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// Styles holds the CLI styling configuration.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Subtle  lipgloss.Style
	Bold    lipgloss.Style
}

// DefaultStyles returns the default CLI styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
}

// NewOptions creates a new Options instance with default values.
func NewOptions() *Options {
	masker := security.NewMasker()
	stderr := masker.Writer(os.Stderr)
	return &Options{
		Styles: DefaultStyles(),
		Stdout: os.Stdout,
		Stderr: stderr,
		Getenv: os.Getenv,
		Masker: masker,
		Logger: log.NewWithOptions(stderr, log.Options{
			ReportTimestamp: true,
			ReportCaller:    false,
		}),
	}
}

// SetVersion sets the version information.
func (o *Options) SetVersion(version, commit, date string) {
	o.Version.Version = version
	o.Version.Commit = commit
	o.Version.Date = date
}

// IsJSON returns true if JSON output is enabled.
func (o *Options) IsJSON() bool {
	return o.JSONOutput || (o.Config != nil && o.Config.Output.Format == "json")
}

// IsVerbose returns true if verbose output is enabled.
func (o *Options) IsVerbose() bool {
	return o.Verbose || (o.Config != nil && o.Config.Output.Verbose)
}

// Cleanup closes the adapters opened by the last command.
func (o *Options) Cleanup() error {
	if o.app == nil {
		return nil
	}
	err := o.app.Close()
	o.app = nil
	return err
}

// commandLogger returns the logger prefixed with the command name, the way
// CI logs tell interleaved steps apart.
func (o *Options) commandLogger(name string) *log.Logger {
	return o.Logger.WithPrefix("[" + name + "]")
}

func (o *Options) getenv(key string) string {
	if o.Getenv == nil {
		return os.Getenv(key)
	}
	return o.Getenv(key)
}

// PrintSuccess prints a success message.
func (o *Options) PrintSuccess(msg string) {
	o.println(o.Styles.Success.Render("✓ " + msg))
}

// PrintError prints an error message.
func (o *Options) PrintError(msg string) {
	o.println(o.Styles.Error.Render("✗ " + msg))
}

// PrintWarning prints a warning message.
func (o *Options) PrintWarning(msg string) {
	o.println(o.Styles.Warning.Render("⚠ " + msg))
}

// PrintInfo prints an info message.
func (o *Options) PrintInfo(msg string) {
	o.println(o.Styles.Info.Render("ℹ " + msg))
}

// PrintTitle prints a title.
func (o *Options) PrintTitle(msg string) {
	o.println(o.Styles.Title.Render(msg))
}

// PrintSubtle prints subtle/muted text.
func (o *Options) PrintSubtle(msg string) {
	o.println(o.Styles.Subtle.Render(msg))
}

// println writes decorated messages to stderr; stdout is reserved for
// command results other steps consume.
func (o *Options) println(s string) {
	if o.Stderr != nil {
		_, _ = io.WriteString(o.Stderr, s+"\n")
	}
}

// result writes a command result to stdout.
func (o *Options) result(s string) {
	if o.Stdout != nil {
		_, _ = io.WriteString(o.Stdout, s+"\n")
	}
}
