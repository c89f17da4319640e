package npm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Replacement is a dependency promoted to a concrete version.
type Replacement struct {
	Type DependencyType
	From Dependency
	To   Dependency
	// Note explains why To equals From, if it does.
	Note string
}

// Changed reports whether the version actually moved.
func (r Replacement) Changed() bool {
	return r.From.Version != r.To.Version
}

// ReplacePlan groups the replacements and the install commands they need.
type ReplacePlan struct {
	Replacements []Replacement
	Commands     []string
}

// Empty reports whether no dependency matched.
func (p *ReplacePlan) Empty() bool {
	return len(p.Replacements) == 0
}

// PlanDistTagReplacement resolves every dependency matching patterns and
// distTags to the latest revision of its next release channel. Registry
// lookups happen here; nothing is installed.
func (c *Client) PlanDistTagReplacement(ctx context.Context, pkg *PackageFile, patterns, distTags []string) (*ReplacePlan, error) {
	if len(distTags) == 0 {
		return nil, rperrors.Validation("npm.PlanDistTagReplacement", "no dist tags to replace were specified")
	}

	plan := &ReplacePlan{}
	for _, t := range DependencyTypes {
		deps := lo.Filter(MatchingPrefix(pkg.Of(t), patterns), func(d Dependency, _ int) bool {
			return MatchesDistTag(d, distTags)
		})
		if len(deps) == 0 {
			continue
		}

		targets := make([]string, 0, len(deps))
		for _, dep := range deps {
			r, err := c.promote(ctx, dep)
			if err != nil {
				return nil, err
			}
			r.Type = t
			plan.Replacements = append(plan.Replacements, r)
			targets = append(targets, r.To.String())
		}

		args := append([]string{"npm", "install"}, t.installFlags()...)
		plan.Commands = append(plan.Commands, strings.Join(append(args, targets...), " "))
	}
	return plan, nil
}

func (c *Client) promote(ctx context.Context, dep Dependency) (Replacement, error) {
	r := Replacement{From: dep, To: dep}

	switch dep.Version {
	case DistTagLatest:
		return r, nil
	case DistTagAlpha, DistTagBeta:
		next, err := NextReleaseChannel(dep.Version)
		if err != nil {
			return r, err
		}
		r.To.Version = next
		return r, nil
	}

	var base, channel string
	if featureTagPattern.MatchString(dep.Version) {
		info, err := c.View(ctx, dep.Name)
		if err != nil {
			return r, err
		}
		featureVersion := info.DistTags[dep.Version]
		if featureVersion == "" {
			return r, rperrors.NotFound("npm.PlanDistTagReplacement",
				fmt.Sprintf("could not resolve feature dist tag %q for dependency %q", dep.Version, dep.Name))
		}
		base, _, _ = strings.Cut(featureVersion, "-")
		channel = DistTagFeature
	} else {
		p := version.Parse(dep.Version)
		if p == nil {
			r.Note = fmt.Sprintf("could not parse version %q, keeping current version", dep.Version)
			return r, nil
		}
		base, channel = p.Base, p.Channel.String()
	}

	next, err := NextReleaseChannel(channel)
	if err != nil {
		return r, err
	}

	versions, err := c.Versions(ctx, dep.Name)
	if err != nil {
		return r, err
	}
	latest, ok := LatestRevision(versions, base, next)
	if !ok {
		r.Note = fmt.Sprintf("could not find version %s for release channel %s, keeping current version", base, next)
		return r, nil
	}

	r.To.Version = latest
	return r, nil
}

// ApplyReplacement runs npm install for every dependency type in plan.
func (c *Client) ApplyReplacement(ctx context.Context, plan *ReplacePlan) error {
	for _, t := range DependencyTypes {
		deps := lo.FilterMap(plan.Replacements, func(r Replacement, _ int) (Dependency, bool) {
			return r.To, r.Type == t
		})
		if len(deps) == 0 {
			continue
		}
		if _, err := c.Install(ctx, t, deps); err != nil {
			return err
		}
	}
	return nil
}

// InstallOnlyCommands returns the npm invocations that reinstall the
// dependencies matching patterns: ranges with plain install, pinned versions
// with --save-exact. Empty package lists are omitted.
func InstallOnlyCommands(pkg *PackageFile, patterns []string) [][]string {
	all := append(pkg.Of(Prod), pkg.Of(Dev)...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].String() < all[j].String() })

	matching := MatchingPrefix(all, patterns)
	loose := lo.Filter(matching, func(d Dependency, _ int) bool { return !IsStrictVersion(d.Version) })
	strict := lo.Filter(matching, func(d Dependency, _ int) bool { return IsStrictVersion(d.Version) })

	var cmds [][]string
	if len(loose) > 0 {
		cmds = append(cmds, append([]string{"install"}, depStrings(loose)...))
	}
	if len(strict) > 0 {
		cmds = append(cmds, append([]string{"install", "--save-exact"}, depStrings(strict)...))
	}
	return cmds
}

// CIExceptCommands returns `npm ci` followed by a plain install of the
// packages matching patterns.
func CIExceptCommands(pkg *PackageFile, patterns []string) [][]string {
	names := lo.Map(append(pkg.Of(Prod), pkg.Of(Dev)...), func(d Dependency, _ int) string { return d.Name })
	sort.Strings(names)

	var matching []string
	for _, p := range patterns {
		matching = append(matching, lo.Filter(names, func(n string, _ int) bool { return strings.HasPrefix(n, p) })...)
	}

	cmds := [][]string{{"ci"}}
	if len(matching) > 0 {
		cmds = append(cmds, append([]string{"install"}, matching...))
	}
	return cmds
}

func depStrings(deps []Dependency) []string {
	return lo.Map(deps, func(d Dependency, _ int) string { return d.String() })
}
