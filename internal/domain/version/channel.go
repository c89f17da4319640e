// Package version provides the release-channel versioning rules: parsing
// pre-release versions, mapping branches to channels and computing the next
// version from the git tag list.
package version

// Channel is a named release track bound to exactly one primary branch.
type Channel string

// Release channels.
const (
	ChannelStable Channel = "stable"
	ChannelAlpha  Channel = "alpha"
	ChannelBeta   Channel = "beta"
)

// Primary branches.
const (
	BranchDevelop = "develop"
	BranchBeta    = "beta"
	BranchMaster  = "master"
)

// branchChannels is the fixed branch to channel table.
var branchChannels = map[string]Channel{
	BranchDevelop: ChannelAlpha,
	BranchBeta:    ChannelBeta,
	BranchMaster:  ChannelStable,
}

// primaryBranches keeps a stable order for messages.
var primaryBranches = []string{BranchDevelop, BranchBeta, BranchMaster}

// String returns the channel name.
func (c Channel) String() string {
	return string(c)
}

// IsPrerelease reports whether versions on this channel carry a suffix.
func (c Channel) IsPrerelease() bool {
	return c != ChannelStable
}

// IsKnown reports whether c is one of the release channels.
func (c Channel) IsKnown() bool {
	switch c {
	case ChannelStable, ChannelAlpha, ChannelBeta:
		return true
	default:
		return false
	}
}

// ChannelForBranch returns the channel bound to branch.
// The second value is false for branches outside the versioning scheme.
func ChannelForBranch(branch string) (Channel, bool) {
	c, ok := branchChannels[branch]
	return c, ok
}

// BranchForChannel returns the primary branch that publishes channel.
func BranchForChannel(channel Channel) (string, bool) {
	for branch, c := range branchChannels {
		if c == channel {
			return branch, true
		}
	}
	return "", false
}

// IsPrimaryBranch reports whether branch participates in automatic versioning.
func IsPrimaryBranch(branch string) bool {
	_, ok := branchChannels[branch]
	return ok
}

// PrimaryBranches returns the primary branch names.
func PrimaryBranches() []string {
	out := make([]string, len(primaryBranches))
	copy(out, primaryBranches)
	return out
}
