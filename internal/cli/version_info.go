package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/ci-tools/internal/domain/version"
	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	manifestadapter "github.com/relicta-tech/ci-tools/internal/infrastructure/manifest"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/npm"
)

func newGetVersionCmd(o *Options) *cobra.Command {
	var (
		mode  string
		major bool
	)

	cmd := &cobra.Command{
		Use:   "get-version",
		Short: "Print the version from the project file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := o.app.Manifest(mode)
			if err != nil {
				return err
			}
			v, err := m.Read(cmd.Context())
			if err != nil {
				return err
			}

			if major {
				mv, ok := version.Major(v)
				if !ok {
					return rperrors.Version("cli.get-version", fmt.Sprintf("%q is not a semantic version", v))
				}
				v = mv
			}
			o.result(v)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "package mode: node, dotnet or python (default from config)")
	cmd.Flags().BoolVar(&major, "major", false, "print only the major version")
	return cmd
}

func newSetVersionCmd(o *Options) *cobra.Command {
	var newVersion, csprojPath string

	cmd := &cobra.Command{
		Use:   "set-version",
		Short: "Write a version to a .csproj file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const op = "cli.set-version"

			if version.Parse(newVersion) == nil {
				return rperrors.Validation(op, fmt.Sprintf("%q is not a release version", newVersion))
			}

			m := manifestadapter.NewDotnetAt(csprojPath)
			if err := m.Write(cmd.Context(), newVersion); err != nil {
				return err
			}
			o.PrintSuccess(fmt.Sprintf("Wrote version %s to %s", newVersion, csprojPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&newVersion, "version", "", "version to write")
	cmd.Flags().StringVar(&csprojPath, "csproj-path", "", "path of the .csproj file")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("csproj-path")
	return cmd
}

// versionReport is what next-version prints.
type versionReport struct {
	ManifestVersion string `json:"manifest_version" yaml:"manifest_version"`
	Branch          string `json:"branch" yaml:"branch"`
	NextVersion     string `json:"next_version" yaml:"next_version"`
	NextTag         string `json:"next_tag" yaml:"next_tag"`
	Eligible        bool   `json:"eligible" yaml:"eligible"`
	PreviousStable  string `json:"previous_stable,omitempty" yaml:"previous_stable,omitempty"`
	NpmDistTag      string `json:"npm_dist_tag" yaml:"npm_dist_tag"`
	Redundant       bool   `json:"redundant" yaml:"redundant"`
	Retry           bool   `json:"retry" yaml:"retry"`
}

func newNextVersionCmd(o *Options) *cobra.Command {
	var (
		flags  releaseFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "next-version",
		Short: "Print the version the next release would get",
		Long: `Print the next version together with the state it was computed from,
without changing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			run, err := o.loadRelease(ctx, flags)
			if err != nil {
				return err
			}
			rc := run.rc

			next, eligible := rc.NextVersion()
			retry, err := run.detector.IsRetryRun(ctx, rc)
			if err != nil {
				return err
			}
			if retry {
				if v, ok := run.detector.PartiallySuccessfulBuildVersion(rc); ok {
					next = v
				}
			}
			prev, _ := rc.PreviousStableTag()

			report := versionReport{
				ManifestVersion: rc.ManifestVersion,
				Branch:          rc.Branch,
				NextVersion:     next,
				NextTag:         version.Tag(next),
				Eligible:        eligible,
				PreviousStable:  prev,
				NpmDistTag:      npm.DistTag(rc.Branch),
				Redundant:       run.detector.IsRedundantRun(rc),
				Retry:           retry,
			}

			if output == "" && o.IsJSON() {
				output = "json"
			}
			return o.printReport(output, report)
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "", "package mode: node, dotnet or python (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: text, json or yaml")
	return cmd
}

func (o *Options) printReport(format string, r versionReport) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		o.result(string(data))
	case "yaml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		o.result(strings.TrimRight(string(data), "\n"))
	case "", "text":
		o.result(r.NextVersion)
		if o.IsVerbose() {
			o.PrintSubtle(fmt.Sprintf("manifest %s on %s, eligible=%t redundant=%t retry=%t",
				r.ManifestVersion, r.Branch, r.Eligible, r.Redundant, r.Retry))
		}
	default:
		return rperrors.Validation("cli.next-version", fmt.Sprintf("unknown output format %q", format))
	}
	return nil
}
