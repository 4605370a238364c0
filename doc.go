// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
tradenetd is a node of a peer-to-peer overlay network which stores and gossips
the signed offers and trade data of a decentralized exchange.

Every node keeps a bounded number of connections, learns about other nodes
through seed nodes and peer exchange, and floods data it accepts to its peers.
Entries are owned by a key and may only be replaced, refreshed or removed by
their owner with an increasing sequence number.  Local applications publish
and query data through a websocket API.

The default options are sane for most users.  This means tradenetd will work
'out of the box' for most users.  However, there are also a wide variety of
flags that can be used to control it.

The following section provides a usage overview which enumerates the flags.  An
interesting point to note is that the long form of all of these options
(except -C) can be specified in a configuration file that is automatically
parsed when tradenetd starts up.  By default, the configuration file is located
at ~/.tradenetd/tradenetd.conf on POSIX-style operating systems and
%LOCALAPPDATA%\tradenetd\tradenetd.conf on Windows.  The -C (--configfile)
flag, as shown below, can be used to override this location.

Usage:

	tradenetd [OPTIONS]

Application Options:

	-V, --version                 Display version information and exit
	-A, --appdata=                Path to application home directory
	-C, --configfile=             Path to configuration file
	-b, --datadir=                Directory to store data
	    --logdir=                 Directory to log output
	    --nofilelogging           Disable file logging
	    --maxlogzips=             The number of zipped log files created by
	                              the log rotator to be retained. Setting to 0
	                              will keep all. (default: 3)
	-d, --debuglevel=             Logging level for all subsystems {trace,
	                              debug, info, warn, error, critical} -- You
	                              may also specify
	                              <subsystem>=<level>,<subsystem2>=<level>,...
	                              to set the log level for individual
	                              subsystems -- Use show to list available
	                              subsystems (default: info)
	    --networkid=              Overlay network to join {1 = mainnet, 2 =
	                              testnet, 3 = regnet} (default: 1)
	    --maxuptime=              Shut down after running for this long (0 to
	                              run until interrupted)
	    --profile=                Enable HTTP profiling on given [addr:]port
	                              -- NOTE port must be between 1024 and 65536
	    --cpuprofile=             Write CPU profile to the specified file
	    --listen=                 Add an interface/port to listen for
	                              connections (default all interfaces port:
	                              9999)
	    --nolisten                Disable listening for incoming connections
	    --port=                   Port advertised to other nodes along with
	                              the external host (default: 9999)
	    --externalhost=           Host advertised to other nodes as the
	                              address of this node, such as an onion
	                              service name (default 127.0.0.1)
	    --maxconnections=         Max number of active connections
	                              (default: 12)
	    --targetoutbound=         Number of outbound connections to maintain
	                              (default: 8)
	    --evictpolicy=            Policy applied when a connection arrives at
	                              max connections {evict, reject} (default:
	                              evict)
	    --maxknownpeers=          Max number of known peers remembered
	                              (default: 1000)
	    --seednode=               Add a seed node to use instead of the built
	                              in seed nodes
	    --connect=                Connect only to the specified peers at
	                              startup
	    --noseeders               Disable connecting to seed nodes
	    --seedmode                Run as a seed node
	    --uselocalhost            Only use addresses on the local host, for
	                              development networks
	    --proxy=                  Connect via SOCKS5 proxy (eg.
	                              127.0.0.1:9050)
	    --proxyuser=              Username for proxy server
	    --proxypass=              Password for proxy server
	    --torisolation            Enable Tor stream isolation by randomizing
	                              user credentials for each connection
	    --msgthrottlepersec=      Max number of messages per second received
	                              from a peer before they are delayed
	                              (default: 200)
	    --msgthrottleper10sec=    Max number of messages per 10 seconds
	                              received from a peer before they are
	                              delayed (default: 1000)
	    --throttleviolations=     Number of message rate violations after
	                              which a peer is disconnected (default: 10)
	    --sendmsgthrottletrigger= Number of broadcast sends within one second
	                              after which sending is slowed down
	                              (default: 20)
	    --sendmsgthrottlesleep=   Delay between broadcast sends once slowed
	                              down (default: 50ms)
	    --maxsequencenumbers=     Max number of sequence numbers remembered
	                              for replay protection (default: 1000)
	    --sweepinterval=          Interval of the removal of expired entries
	                              (default: 1m0s)
	    --getdatatimeout=         Time to wait for the reply to the initial
	                              data request (default: 1m30s)
	    --peerexchangeinterval=   Average interval between peer exchanges
	                              (default: 10m0s)
	    --keepaliveinterval=      Average interval between liveness checks of
	                              idle connections (default: 30s)
	    --idletimeout=            Close connections which received no traffic
	                              for this long (default: 1m30s)
	    --nobanning               Disable banning of misbehaving peers
	    --banduration=            How long to ban misbehaving peers. Valid
	                              time units are {s, m, h}. Minimum 1 second
	                              (default: 24h0m0s)
	    --banthreshold=           Maximum allowed ban score before
	                              disconnecting and banning misbehaving peers
	                              (default: 100)
	    --banlist=                Add a host to refuse connections from, may
	                              be specified multiple times
	    --whitelist=              Add an IP network or IP that will not be
	                              banned (eg. 192.168.1.0/24 or ::1)
	    --apilisten=              Add an interface/port to listen for API
	                              websocket connections (default 127.0.0.1
	                              port: 9998)
	    --noapi                   Disable the API server
	    --apimaxclients=          Max number of API websocket clients
	                              (default: 25)

Help Options:

	-h, --help                    Show this help message
*/
package main
