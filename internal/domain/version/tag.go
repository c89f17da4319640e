package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// TagPrefix precedes every version in a git tag name.
const TagPrefix = "v"

var (
	tagChannelPattern   = regexp.MustCompile(`^v?\d+\.\d+\.\d+-([^.]+)`)
	unsafeBranchPattern = regexp.MustCompile(`[^0-9A-Za-z-]+`)
)

// Tag returns the git tag name for version.
func Tag(version string) string {
	return TagPrefix + version
}

// FromTag strips the tag prefix from name.
func FromTag(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), TagPrefix)
}

// ChannelOfTag extracts the pre-release word of a tag or version
// ("v1.2.0-alpha14" and "1.2.0-alpha.14" both give "alpha"). Stable tags give "".
func ChannelOfTag(name string) string {
	m := tagChannelPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], "0123456789")
}

// PreviousStable returns the highest stable version in tags that precedes
// currentVersion by semantic-version precedence. A pre-release sorts below its
// own base, so "2.0.0-alpha4" is preceded by "1.2.0" even when "v2.0.1" exists.
func PreviousStable(currentVersion string, tags []string) (string, bool) {
	current, err := semver.NewVersion(FromTag(currentVersion))
	if err != nil {
		return "", false
	}

	var (
		best    *semver.Version
		bestRaw string
	)
	for _, tag := range tags {
		raw := FromTag(tag)
		if raw == "" || strings.Contains(raw, "-") {
			continue
		}
		v, err := semver.NewVersion(raw)
		if err != nil || !v.LessThan(current) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}

	if best == nil {
		return "", false
	}
	return bestRaw, true
}

// CommitPrerelease builds a unique pre-release version for builds on branches
// outside the versioning scheme: <base>-<branch prefix>-<sha[:6]>-<base36 ms>.
func CommitPrerelease(manifestVersion, branch, sha string, at time.Time) string {
	prefix, _, _ := strings.Cut(branch, "/")
	prefix = strings.Trim(unsafeBranchPattern.ReplaceAllString(prefix, "-"), "-")
	if prefix == "" {
		prefix = "build"
	}

	short := sha
	if len(short) > 6 {
		short = short[:6]
	}

	return fmt.Sprintf("%s-%s-%s-%s", TargetBase(manifestVersion), prefix, short, strconv.FormatInt(at.UnixMilli(), 36))
}

// BranchFromRef turns a CI ref into a branch name. Branch refs lose their
// refs/heads/ prefix; tag refs map to the branch publishing the tag's channel,
// or "" when the tag is not a release version.
func BranchFromRef(ref string) string {
	if name, ok := strings.CutPrefix(ref, "refs/tags/"); ok {
		p := Parse(FromTag(name))
		if p == nil {
			return ""
		}
		branch, _ := BranchForChannel(p.Channel)
		return branch
	}
	return strings.TrimPrefix(ref, "refs/heads/")
}
