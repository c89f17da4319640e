package sourcecontrol

import (
	"fmt"
	"strings"
)

// SkipCIMarker keeps CI from re-triggering on release commits.
const SkipCIMarker = "[skip ci]"

// Message is a commit message split into subject and body.
type Message struct {
	Subject string
	Body    string
}

// ParseMessage splits raw into its first line and the remaining body.
// The skip-ci marker is removed from both parts.
func ParseMessage(raw string) Message {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	subject, body, _ := strings.Cut(raw, "\n")

	return Message{
		Subject: strings.TrimSpace(strings.ReplaceAll(subject, SkipCIMarker, "")),
		Body:    strings.TrimSpace(strings.ReplaceAll(body, SkipCIMarker, "")),
	}
}

// ReleaseMessage builds the commit message for a release commit.
func ReleaseMessage(tag, changelog string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release %s\n\n", tag)
	if changelog = strings.TrimSpace(changelog); changelog != "" {
		b.WriteString(changelog)
		b.WriteString("\n\n")
	}
	b.WriteString(SkipCIMarker)
	return b.String()
}

// SubpackageMessage builds the commit message for a subpackage version bump.
func SubpackageMessage(tag string) string {
	return fmt.Sprintf("Update Types to %s\n\n%s", tag, SkipCIMarker)
}

// HarmonizeMessage is used when dependency dist-tags were pinned to versions.
const HarmonizeMessage = "Harmonize dependency versions\n\n" + SkipCIMarker
