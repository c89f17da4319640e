package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var trailingDigitsPattern = regexp.MustCompile(`(\d+)$`)

// TargetBase returns the base triple of version: everything before the first
// "-", trimmed and without a leading "v". The manifest's own pre-release suffix
// is never carried forward.
func TargetBase(version string) string {
	base, _, _ := strings.Cut(version, "-")
	return strings.TrimPrefix(strings.TrimSpace(base), TagPrefix)
}

// Increment computes the next version for manifestVersion released from branch.
//
// Stable releases strip any suffix. Pre-release channels continue from the
// highest sequence number found in tags for the same base and channel, so the
// tag list wins over whatever number the manifest currently carries.
// The second value is false when branch is not a primary branch.
func Increment(manifestVersion, branch string, tags []string) (string, bool) {
	channel, ok := ChannelForBranch(branch)
	if !ok {
		return "", false
	}

	base := TargetBase(manifestVersion)
	if !channel.IsPrerelease() {
		return base, true
	}

	next, _ := NextSuffixNumber(manifestVersion, branch, tags)
	return fmt.Sprintf("%s-%s%d", base, channel, next), true
}

// NextSuffixNumber returns the sequence number the next pre-release of
// baseVersion on branch's channel gets: 1 when no matching tag exists, the
// numeric maximum plus one otherwise.
func NextSuffixNumber(baseVersion, branch string, tags []string) (int, bool) {
	channel, ok := ChannelForBranch(branch)
	if !ok {
		return 0, false
	}

	highest, found := highestSuffixNumber(TargetBase(baseVersion), channel, tags)
	if !found {
		return 1, true
	}
	return highest + 1, true
}

// ExpectedLatest returns the version a previous run on branch would have
// produced for manifestVersion. It is false when no such release exists yet.
func ExpectedLatest(manifestVersion, branch string, tags []string) (string, bool) {
	channel, ok := ChannelForBranch(branch)
	if !ok {
		return "", false
	}

	base := TargetBase(manifestVersion)
	if !channel.IsPrerelease() {
		return base, true
	}

	highest, found := highestSuffixNumber(base, channel, tags)
	if !found {
		return "", false
	}
	return fmt.Sprintf("%s-%s%d", base, channel, highest), true
}

// highestSuffixNumber scans tags starting with v<base>-<channel>.
func highestSuffixNumber(base string, channel Channel, tags []string) (int, bool) {
	prefix := fmt.Sprintf("%s%s-%s", TagPrefix, base, channel)

	numbers := lo.FilterMap(tags, func(tag string, _ int) (int, bool) {
		tag = strings.TrimSpace(tag)
		if !strings.HasPrefix(tag, prefix) {
			return 0, false
		}
		m := trailingDigitsPattern.FindStringSubmatch(tag)
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n, true
	})

	if len(numbers) == 0 {
		return 0, false
	}
	return lo.Max(numbers), true
}
