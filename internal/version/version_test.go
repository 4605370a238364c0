// Copyright (c) 2021-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"strings"
	"testing"
)

// TestSemVerParsing ensures semantic version strings are split into their
// components and malformed ones are rejected.
func TestSemVerParsing(t *testing.T) {
	tests := []struct {
		ver     string
		want    semVer
		invalid bool
	}{
		{ver: "0.0.4", want: semVer{patch: 4}},
		{ver: "10.20.30", want: semVer{major: 10, minor: 20, patch: 30}},
		{ver: "0.3.0-pre", want: semVer{minor: 3, preRelease: "pre"}},
		{ver: "1.1.2-prerelease+meta", want: semVer{major: 1, minor: 1,
			patch: 2, preRelease: "prerelease", build: "meta"}},
		{ver: "1.0.0-alpha.1+release.local", want: semVer{major: 1,
			preRelease: "alpha.1", build: "release.local"}},
		{ver: "2.0.0+a1b2c3d4e", want: semVer{major: 2, build: "a1b2c3d4e"}},
		{ver: "1", invalid: true},
		{ver: "1.2", invalid: true},
		{ver: "01.1.1", invalid: true},
		{ver: "1.2.3-0123", invalid: true},
		{ver: "1.2.3+meta+meta", invalid: true},
		{ver: "1.2.3-pre_release", invalid: true},
		{ver: "v1.2.3", invalid: true},
		{ver: "99999999999999999999999.0.0", invalid: true},
	}

	for _, test := range tests {
		got, err := parseSemVer(test.ver)
		if test.invalid {
			if err == nil {
				t.Errorf("%q: expected error", test.ver)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.ver, err)
			continue
		}
		if got != test.want {
			t.Errorf("%q: mismatched components -- got %+v, want %+v",
				test.ver, got, test.want)
			continue
		}
		if got.String() != test.ver {
			t.Errorf("%q: does not round trip -- got %q", test.ver, got)
		}
	}
}

// TestNormalizeString ensures characters which are not allowed in build
// metadata are removed.
func TestNormalizeString(t *testing.T) {
	if got := NormalizeString("abc_123+x.y-Z!"); got != "abc123x.y-Z" {
		t.Fatalf("unexpected normalized string %q", got)
	}
}

// TestUserAgent ensures the user agent carries the application name and
// version without build metadata.
func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "/"+AppName+":") || !strings.HasSuffix(ua, "/") {
		t.Fatalf("malformed user agent %q", ua)
	}
	if strings.Contains(ua, "+") {
		t.Fatalf("user agent %q contains build metadata", ua)
	}
	release, _, _ := strings.Cut(String(), "+")
	if !strings.Contains(ua, release) {
		t.Fatalf("user agent %q does not contain version %q", ua, release)
	}
}
