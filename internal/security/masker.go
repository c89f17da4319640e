// Package security keeps credentials out of CI logs.
package security

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/relicta-tech/ci-tools/internal/errors"
)

// minSecretLen keeps short values such as "1" or "true" from being masked
// across the whole log.
const minSecretLen = 6

const mask = "[REDACTED]"

// Masker replaces known secret values and token-shaped strings in output.
type Masker struct {
	mu      sync.RWMutex
	secrets []string
}

// NewMasker creates a Masker that only redacts token patterns until secrets
// are added.
func NewMasker() *Masker {
	return &Masker{}
}

// AddSecrets registers values that must never be printed. Empty and short
// values are ignored.
func (m *Masker) AddSecrets(values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) < minSecretLen || contains(m.secrets, v) {
			continue
		}
		m.secrets = append(m.secrets, v)
	}
	// Longest first, so a token is masked before any secret it contains.
	sort.Slice(m.secrets, func(i, j int) bool {
		return len(m.secrets[i]) > len(m.secrets[j])
	})
}

// Mask redacts registered secrets and known token patterns from s.
func (m *Masker) Mask(s string) string {
	m.mu.RLock()
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, mask)
	}
	m.mu.RUnlock()
	return errors.RedactSensitive(s)
}

// Writer wraps w so that everything written through it is masked.
func (m *Masker) Writer(w io.Writer) io.Writer {
	return &maskedWriter{w: w, m: m}
}

type maskedWriter struct {
	w io.Writer
	m *Masker
}

// Write masks p before writing it. It reports len(p) on success to satisfy
// the io.Writer contract even when the masked output differs in length.
func (mw *maskedWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(mw.w, mw.m.Mask(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
