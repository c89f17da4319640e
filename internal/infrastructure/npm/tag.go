package npm

import (
	"strings"

	"github.com/relicta-tech/ci-tools/internal/domain/version"
)

// DistTag returns the npm dist-tag a branch publishes under. master
// publishes to the default tag and yields "". Other branches use their name
// with "/" replaced by "~".
func DistTag(branch string) string {
	switch branch {
	case version.BranchMaster:
		return ""
	case version.BranchDevelop:
		return DistTagAlpha
	case version.BranchBeta:
		return DistTagBeta
	default:
		return strings.ReplaceAll(branch, "/", "~")
	}
}
