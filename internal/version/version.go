// Package version holds the ci_tools release number for builds without ldflags.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Number returns the embedded version without a "v" prefix.
func Number() string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "v")
}

// Resolve returns ldflagsVersion unless it is empty or the "dev" placeholder,
// in which case the embedded version is used.
func Resolve(ldflagsVersion string) string {
	if ldflagsVersion == "" || ldflagsVersion == "dev" {
		return Number()
	}
	return ldflagsVersion
}
