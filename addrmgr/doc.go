// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package addrmgr implements a concurrency safe manager of known overlay peers.

# Address Manager Overview

Nodes of the overlay network connect and disconnect as they please, so every
node must maintain a set of peer addresses to connect to and to share with
other nodes during peer exchange.  Remote peers cannot be trusted.  They might
report unreachable addresses, addresses from the future or addresses of the
receiving node itself.

This package keeps a bounded set of known peers keyed by their overlay address.
Reported peers are merged into the set and refresh the last seen time of peers
that are already known.  Timestamps in the future are clamped to the current
time.  When the set exceeds its capacity the peers seen least recently are
removed first while connected peers are kept.

The caller notifies the address manager when connections to peers are
attempted, established, and lost, and requests addresses as it needs them.
Addresses are selected at random with preference given to peers that have not
failed recently.

The known peers are periodically saved to a JSON file in the data directory and
loaded back on start.

# Errors

Errors returned by this package are of type addrmgr.Error and fully support
errors.Is and errors.As.  See the ErrorKind constants for the list of kinds.
*/
package addrmgr
