// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package connmgr implements a generic overlay network connection manager.

# Connection Manager Overview

Connection Manager handles all the general connection concerns such as
maintaining a set number of outbound connections, sourcing addresses from the
address manager, banning hosts, limiting max connections and retrying
permanent connections such as those to seed nodes.

Accepted connections from hosts the IsBanned callback reports as banned are
closed before the accept callback runs.  NewCandidates lets the caller fill
free outbound slots once new addresses were learned through peer exchange.

Connections to hidden service addresses require a SOCKS5 proxy such as Tor.
NewDialer returns a dial function which connects through the configured proxy,
optionally with stream isolation.
*/
package connmgr
