package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	basePattern   = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	suffixPattern = regexp.MustCompile(`^([A-Za-z]+)\.?(\d*)$`)
	majorPattern  = regexp.MustCompile(`(\d+)\.(\d+).(\d+)`)
)

// Parsed is a version split into its base triple and release channel.
type Parsed struct {
	// Base is the MAJOR.MINOR.PATCH portion.
	Base string
	// Channel is stable for versions without a pre-release suffix.
	Channel Channel
	// Number is the trailing sequence number of the suffix, e.g. 7 in alpha7.
	Number int
	// HasNumber is false for stable versions and bare channel suffixes.
	HasNumber bool
}

// Parse splits version into base, channel and sequence number.
//
// Both "1.2.0-alpha13" and "1.2.0-alpha.13" are accepted. Parse returns nil
// for anything without a full base triple (npm dist-tags such as "alpha" or
// "latest") and for suffixes whose word is not a pre-release channel
// ("3.2.1-asdf5").
func Parse(version string) *Parsed {
	base, suffix, hasSuffix := strings.Cut(version, "-")
	if !basePattern.MatchString(base) {
		return nil
	}

	if !hasSuffix {
		return &Parsed{Base: base, Channel: ChannelStable}
	}

	m := suffixPattern.FindStringSubmatch(suffix)
	if m == nil {
		return nil
	}

	channel := Channel(m[1])
	if !channel.IsKnown() || !channel.IsPrerelease() {
		return nil
	}

	p := &Parsed{Base: base, Channel: channel}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		p.Number = n
		p.HasNumber = true
	}

	return p
}

// String renders the version in tag form without the leading "v".
func (p Parsed) String() string {
	switch {
	case !p.Channel.IsPrerelease():
		return p.Base
	case p.HasNumber:
		return fmt.Sprintf("%s-%s%d", p.Base, p.Channel, p.Number)
	default:
		return fmt.Sprintf("%s-%s", p.Base, p.Channel)
	}
}

// IsStable reports whether the version has no pre-release suffix.
func (p Parsed) IsStable() bool {
	return p.Channel == ChannelStable
}

// Major returns the major component of the first version triple in v.
func Major(v string) (string, bool) {
	m := majorPattern.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	return m[1], true
}
