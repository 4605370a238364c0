// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version provides a single location to house the version information
// of tradenetd and the user agent it advertises to other peers.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
)

// AppName is the name advertised in the user agent.
const AppName = "tradenetd"

// semverRE matches a semantic version 2.0.0 string and captures the major,
// minor and patch numbers along with the optional pre-release and build
// metadata.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var (
	// Version is the semantic version of the application.  Release builds
	// override it with:
	// '-ldflags "-X github.com/decred/tradenet/internal/version.Version=fullsemver"'
	//
	// The package panics at startup when it is not a valid semantic version.
	Version = "0.3.0-pre"

	// The components of Version, set on startup.  When Version carries no
	// build metadata, the commit id of the checkout the binary was built
	// from is used.
	Major         uint
	Minor         uint
	Patch         uint
	PreRelease    string
	BuildMetadata string
)

// semVer holds the components of a parsed semantic version.
type semVer struct {
	major, minor, patch uint
	preRelease, build   string
}

// String returns the semantic version string of the components.
func (v semVer) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
	if v.preRelease != "" {
		s += "-" + v.preRelease
	}
	if v.build != "" {
		s += "+" + v.build
	}
	return s
}

// parseSemVer splits the passed semantic version string into its components.
func parseSemVer(s string) (semVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return semVer{}, fmt.Errorf("malformed version string %q: does not "+
			"conform to semver specification", s)
	}
	var nums [3]uint
	for i, field := range []string{"major", "minor", "patch"} {
		n, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return semVer{}, fmt.Errorf("malformed semver %s: %w", field, err)
		}
		nums[i] = uint(n)
	}
	return semVer{
		major:      nums[0],
		minor:      nums[1],
		patch:      nums[2],
		preRelease: m[4],
		build:      m[5],
	}, nil
}

// vcsCommitID returns the abbreviated git commit the binary was built from or
// an empty string when the go tool recorded none.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, bs := range bi.Settings {
		settings[bs.Key] = bs.Value
	}
	revision := settings["vcs.revision"]
	if settings["vcs"] == "git" && len(revision) > 9 {
		revision = revision[:9]
	}
	return revision
}

func init() {
	v, err := parseSemVer(Version)
	if err != nil {
		panic(err)
	}
	if v.build == "" {
		v.build = NormalizeString(vcsCommitID())
		Version = v.String()
	}
	Major, Minor, Patch = v.major, v.minor, v.patch
	PreRelease, BuildMetadata = v.preRelease, v.build
}

// UserAgent returns the user agent advertised in the version handshake.  The
// build metadata is left out so nodes built from the same release share a
// user agent.
func UserAgent() string {
	v := semVer{major: Major, minor: Minor, patch: Patch, preRelease: PreRelease}
	return "/" + AppName + ":" + v.String() + "/"
}

// String returns the application version as a semantic version string.
func String() string {
	return Version
}

// NormalizeString strips the passed string of all characters which are not
// allowed in the pre-release and build metadata of a semantic version.
func NormalizeString(str string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r == '-', r == '.':
			return r
		}
		return -1
	}, str)
}
