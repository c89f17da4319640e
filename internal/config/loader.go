package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// EnvPrefix prefixes environment overrides, e.g. CI_TOOLS_FORCE_PUBLISH.
const EnvPrefix = "CI_TOOLS"

var (
	// envVarPattern matches ${VAR} or ${VAR:-default}
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
	getenv      func(string) string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
		getenv:      os.Getenv,
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	l.expandEnvVars(cfg)

	return cfg, nil
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("mode", defaults.Mode)
	l.v.SetDefault("force_publish", defaults.ForcePublish)

	l.v.SetDefault("git.default_remote", defaults.Git.DefaultRemote)
	l.v.SetDefault("git.use_cli_fallback", defaults.Git.UseCLIFallback)
	l.v.SetDefault("git.user_name", defaults.Git.UserName)
	l.v.SetDefault("git.user_email", defaults.Git.UserEmail)
	l.v.SetDefault("git.auth_user", defaults.Git.AuthUser)
	l.v.SetDefault("git.auth_token", defaults.Git.AuthToken)

	l.v.SetDefault("npm.verify_attempts", defaults.NPM.VerifyAttempts)
	l.v.SetDefault("npm.verify_interval", defaults.NPM.VerifyInterval)
	l.v.SetDefault("npm.dist_tags", defaults.NPM.DistTags)

	l.v.SetDefault("github.token", defaults.GitHub.Token)
	l.v.SetDefault("github.release_token", defaults.GitHub.ReleaseToken)
	l.v.SetDefault("github.api_url", defaults.GitHub.APIURL)
	l.v.SetDefault("github.repository", defaults.GitHub.Repository)

	l.v.SetDefault("slack.webhook", defaults.Slack.Webhook)
	l.v.SetDefault("slack.channel", defaults.Slack.Channel)
	l.v.SetDefault("slack.username", defaults.Slack.Username)
	l.v.SetDefault("slack.icon_emoji", defaults.Slack.IconEmoji)
	l.v.SetDefault("slack.timeout", defaults.Slack.Timeout)
	l.v.SetDefault("slack.retry_count", defaults.Slack.RetryCount)

	l.v.SetDefault("changelog.template_dir", defaults.Changelog.TemplateDir)

	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.color", defaults.Output.Color)
	l.v.SetDefault("output.verbose", defaults.Output.Verbose)
	l.v.SetDefault("output.quiet", defaults.Output.Quiet)
	l.v.SetDefault("output.log_level", defaults.Output.LogLevel)
}

func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	configFile, err := FindConfigFile(l.searchPaths...)
	if err != nil {
		// No config file, defaults and environment apply.
		return nil
	}
	l.v.SetConfigFile(configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", configFile, err)
	}
	return nil
}

// expandEnvVars expands environment references in secrets and paths.
func (l *Loader) expandEnvVars(cfg *Config) {
	cfg.Git.AuthUser = l.expand(cfg.Git.AuthUser)
	cfg.Git.AuthToken = l.expand(cfg.Git.AuthToken)

	cfg.GitHub.Token = l.expand(cfg.GitHub.Token)
	cfg.GitHub.ReleaseToken = l.expand(cfg.GitHub.ReleaseToken)
	cfg.GitHub.APIURL = l.expand(cfg.GitHub.APIURL)
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = l.getenv("GITHUB_TOKEN")
	}

	cfg.Slack.Webhook = l.expand(cfg.Slack.Webhook)
	cfg.Changelog.TemplateDir = l.expand(cfg.Changelog.TemplateDir)
}

func (l *Loader) expand(s string) string {
	return expandEnvVar(s, l.getenv)
}

// expandEnvVar expands ${VAR}, ${VAR:-default} and $VAR. Unset $VAR
// references are left untouched.
func expandEnvVar(s string, getenv func(string) string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		if value := getenv(submatch[1]); value != "" {
			return value
		}
		if len(submatch) > 2 {
			return submatch[2]
		}
		return ""
	})

	return simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		if value := getenv(match[1:]); value != "" {
			return value
		}
		return match
	})
}

// ConfigFileUsed returns the path to the loaded config file, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					return configFile, nil
				}
			}
		}
	}

	return "", rperrors.NotFound("config.FindConfigFile", "no config file found")
}
