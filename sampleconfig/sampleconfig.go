// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// sampleTradenetdConf is a string containing the commented example config for
// tradenetd.
//
//go:embed sample-tradenetd.conf
var sampleTradenetdConf string

// Tradenetd returns a string containing the commented example config for
// tradenetd.
func Tradenetd() string {
	return sampleTradenetdConf
}
