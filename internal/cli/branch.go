package cli

import (
	"context"
	"strings"

	"github.com/relicta-tech/ci-tools/internal/domain/sourcecontrol"
	"github.com/relicta-tech/ci-tools/internal/domain/version"
)

// branchEnvVars are read in order; the first one set wins.
var branchEnvVars = []string{"GIT_BRANCH", "GITHUB_REF"}

// detectBranch returns the branch being built. CI systems check out a
// detached HEAD, so the ref they export takes precedence over git. A tag ref
// maps to the branch publishing the tag's channel; a tag that is not a
// release version yields no branch, so the build gets a commit pre-release.
func (o *Options) detectBranch(ctx context.Context, repo sourcecontrol.BranchReader) (string, error) {
	for _, key := range branchEnvVars {
		ref := strings.TrimSpace(o.getenv(key))
		if ref == "" {
			continue
		}
		if strings.HasPrefix(ref, "refs/tags/") {
			return version.BranchFromRef(ref), nil
		}
		if branch := version.BranchFromRef(ref); branch != "" {
			return branch, nil
		}
		break
	}
	return repo.CurrentBranch(ctx)
}
