// Package template renders the changelog and the release announcement from
// text templates. Embedded defaults can be overridden from a directory.
package template

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Names of the embedded templates.
const (
	Changelog    = "changelog"
	Announcement = "announcement"
)

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// DefaultExecutionTimeout bounds a single template execution.
const DefaultExecutionTimeout = 5 * time.Second

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// Service renders named templates.
type Service struct {
	mu               sync.RWMutex
	templates        map[string]*template.Template
	customDir        string
	funcMap          template.FuncMap
	executionTimeout time.Duration
}

// ServiceConfig configures the template service.
type ServiceConfig struct {
	// CustomDir holds <name>.tmpl files that replace the embedded ones.
	CustomDir string
	// Zero or negative values use DefaultExecutionTimeout.
	ExecutionTimeout time.Duration
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{ExecutionTimeout: DefaultExecutionTimeout}
}

// ServiceOption configures the template service.
type ServiceOption func(*ServiceConfig)

// WithCustomDir sets the directory of overriding templates.
func WithCustomDir(dir string) ServiceOption {
	return func(cfg *ServiceConfig) {
		cfg.CustomDir = dir
	}
}

// WithExecutionTimeout sets the maximum template execution time.
func WithExecutionTimeout(timeout time.Duration) ServiceOption {
	return func(cfg *ServiceConfig) {
		cfg.ExecutionTimeout = timeout
	}
}

// NewService loads the embedded templates and, if configured, the custom
// directory. A broken custom template is an error: it was asked for
// explicitly.
func NewService(opts ...ServiceOption) (*Service, error) {
	const op = "template.NewService"

	cfg := DefaultServiceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	timeout := cfg.ExecutionTimeout
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}

	s := &Service{
		templates:        make(map[string]*template.Template),
		customDir:        cfg.CustomDir,
		funcMap:          createFuncMap(),
		executionTimeout: timeout,
	}

	if err := s.loadEmbeddedTemplates(); err != nil {
		return nil, rperrors.TemplateWrap(err, op, "failed to load embedded templates")
	}
	if cfg.CustomDir != "" {
		if err := s.loadCustomTemplates(); err != nil {
			return nil, rperrors.TemplateWrap(err, op, fmt.Sprintf("failed to load templates from %s", cfg.CustomDir))
		}
	}
	return s, nil
}

func (s *Service) loadEmbeddedTemplates() error {
	return fs.WalkDir(embeddedTemplates, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}

		content, err := embeddedTemplates.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded template %s: %w", path, err)
		}
		return s.parse(strings.TrimSuffix(filepath.Base(path), ".tmpl"), string(content))
	})
}

func (s *Service) loadCustomTemplates() error {
	entries, err := os.ReadDir(s.customDir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmpl") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(s.customDir, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read custom template %s: %w", e.Name(), err)
		}
		if err := s.parse(strings.TrimSuffix(e.Name(), ".tmpl"), string(content)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) parse(name, content string) error {
	tmpl, err := template.New(name).Funcs(s.funcMap).Option("missingkey=error").Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	s.mu.Lock()
	s.templates[name] = tmpl
	s.mu.Unlock()
	return nil
}

// Render renders the named template. Surrounding whitespace is trimmed.
func (s *Service) Render(ctx context.Context, name string, data any) (string, error) {
	const op = "template.Render"

	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()

	if !ok {
		return "", rperrors.NotFound(op, fmt.Sprintf("template not found: %s", name))
	}

	ctx, cancel := context.WithTimeout(ctx, s.executionTimeout)
	defer cancel()

	out, err := s.executeWithTimeout(ctx, op, tmpl, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RegisterTemplate adds or replaces a template.
func (s *Service) RegisterTemplate(name, content string) error {
	if err := s.parse(name, content); err != nil {
		return rperrors.TemplateWrap(err, "template.RegisterTemplate", fmt.Sprintf("invalid template %s", name))
	}
	return nil
}

// Names returns the available template names, sorted.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// executeWithTimeout runs tmpl in a goroutine. text/template cannot be
// interrupted, so on timeout the goroutine finishes in the background.
func (s *Service) executeWithTimeout(ctx context.Context, op string, tmpl *template.Template, data any) (string, error) {
	type result struct {
		output string
		err    error
	}

	done := make(chan result, 1)

	go func() {
		buf := bufferPool.Get().(*bytes.Buffer)
		buf.Reset()

		defer func() {
			bufferPool.Put(buf)

			if r := recover(); r != nil {
				done <- result{err: rperrors.TemplateWrap(
					fmt.Errorf("template panic: %v", r),
					op,
					fmt.Sprintf("template execution panicked: %s", tmpl.Name()),
				)}
			}
		}()

		if err := tmpl.Execute(buf, data); err != nil {
			done <- result{err: rperrors.TemplateWrap(err, op, fmt.Sprintf("failed to render template %s", tmpl.Name()))}
			return
		}
		done <- result{output: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", rperrors.TimeoutWrap(ctx.Err(), op, fmt.Sprintf("template execution timed out: %s", tmpl.Name()))
	case r := <-done:
		return r.output, r.err
	}
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"title":     cases.Title(language.English).String,
		"trim":      strings.TrimSpace,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"join":      strings.Join,
		"dateISO":   dateISO,
		"default":   defaultFunc,
		"mdLink":    mdLinkFunc,
		"slackLink": slackLinkFunc,
	}
}

func dateISO(t time.Time) string {
	return t.Format("2006-01-02")
}

func defaultFunc(def, value any) any {
	if value == nil || value == "" {
		return def
	}
	return value
}

func mdLinkFunc(text, url string) string {
	return fmt.Sprintf("[%s](%s)", text, url)
}

func slackLinkFunc(text, url string) string {
	return fmt.Sprintf("<%s|%s>", url, text)
}
