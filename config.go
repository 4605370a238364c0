// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/tradenet/addrmgr"
	"github.com/decred/tradenet/internal/apiserver"
	"github.com/decred/tradenet/internal/banmanager"
	"github.com/decred/tradenet/internal/broadcaster"
	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/internal/keepalive"
	"github.com/decred/tradenet/internal/peerexchange"
	"github.com/decred/tradenet/internal/peermgr"
	"github.com/decred/tradenet/internal/requestdata"
	"github.com/decred/tradenet/internal/version"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/sampleconfig"
	"github.com/decred/tradenet/wire"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "tradenetd.conf"
	defaultDataDirname     = "data"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "tradenetd.log"
	defaultMaxLogZips      = 3
	defaultDatabaseDirname = "datastore"
	defaultNetworkID       = uint32(wire.MainNet)
	defaultPort            = 9999
	defaultAPIPort         = 9998
	defaultTargetOutbound  = 8
	defaultBanDuration     = time.Hour * 24
	defaultBanThreshold    = 100
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("tradenetd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for tradenetd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ShowVersion   bool          `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir       string        `short:"A" long:"appdata" description:"Path to application home directory" env:"TRADENETD_APPDATA"`
	ConfigFile    string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool          `long:"nofilelogging" description:"Disable file logging"`
	MaxLogZips    int           `long:"maxlogzips" description:"The number of zipped log files created by the log rotator to be retained. Setting to 0 will keep all."`
	DebugLevel    string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	NetworkID     uint32        `long:"networkid" description:"Overlay network to join {1 = mainnet, 2 = testnet, 3 = regnet}"`
	MaxUptime     time.Duration `long:"maxuptime" description:"Shut down after running for this long (0 to run until interrupted)"`
	Profile       string        `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65536"`
	CPUProfile    string        `long:"cpuprofile" description:"Write CPU profile to the specified file"`

	// Overlay network options.
	Listeners      []string `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 9999)"`
	DisableListen  bool     `long:"nolisten" description:"Disable listening for incoming connections"`
	Port           uint16   `long:"port" description:"Port advertised to other nodes along with the external host"`
	ExternalHost   string   `long:"externalhost" description:"Host advertised to other nodes as the address of this node, such as an onion service name (default 127.0.0.1)"`
	MaxConnections int      `long:"maxconnections" description:"Max number of active connections"`
	TargetOutbound uint32   `long:"targetoutbound" description:"Number of outbound connections to maintain"`
	EvictPolicy    string   `long:"evictpolicy" description:"Policy applied when a connection arrives at max connections {evict, reject}"`
	MaxKnownPeers  int      `long:"maxknownpeers" description:"Max number of known peers remembered"`
	SeedNodes      []string `long:"seednode" description:"Add a seed node to use instead of the built in seed nodes"`
	ConnectPeers   []string `long:"connect" description:"Connect only to the specified peers at startup"`
	DisableSeeders bool     `long:"noseeders" description:"Disable connecting to seed nodes"`
	SeedMode       bool     `long:"seedmode" description:"Run as a seed node"`
	UseLocalhost   bool     `long:"uselocalhost" description:"Only use addresses on the local host, for development networks"`
	Proxy          string   `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string   `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	TorIsolation   bool     `long:"torisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection"`

	// Message rate limits.
	MsgThrottlePerSec      int           `long:"msgthrottlepersec" description:"Max number of messages per second received from a peer before they are delayed"`
	MsgThrottlePer10Sec    int           `long:"msgthrottleper10sec" description:"Max number of messages per 10 seconds received from a peer before they are delayed"`
	ThrottleViolations     uint32        `long:"throttleviolations" description:"Number of message rate violations after which a peer is disconnected"`
	SendMsgThrottleTrigger int           `long:"sendmsgthrottletrigger" description:"Number of broadcast sends within one second after which sending is slowed down"`
	SendMsgThrottleSleep   time.Duration `long:"sendmsgthrottlesleep" description:"Delay between broadcast sends once slowed down"`

	// Data store and maintenance options.
	MaxSequenceNumbers   int           `long:"maxsequencenumbers" description:"Max number of sequence numbers remembered for replay protection"`
	SweepInterval        time.Duration `long:"sweepinterval" description:"Interval of the removal of expired entries"`
	GetDataTimeout       time.Duration `long:"getdatatimeout" description:"Time to wait for the reply to the initial data request"`
	PeerExchangeInterval time.Duration `long:"peerexchangeinterval" description:"Average interval between peer exchanges"`
	KeepAliveInterval    time.Duration `long:"keepaliveinterval" description:"Average interval between liveness checks of idle connections"`
	IdleTimeout          time.Duration `long:"idletimeout" description:"Close connections which received no traffic for this long"`

	// Banning options.
	DisableBanning bool          `long:"nobanning" description:"Disable banning of misbehaving peers"`
	BanDuration    time.Duration `long:"banduration" description:"How long to ban misbehaving peers. Valid time units are {s, m, h}. Minimum 1 second"`
	BanThreshold   uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers"`
	BanList        []string      `long:"banlist" description:"Add a host to refuse connections from, may be specified multiple times"`
	Whitelists     []string      `long:"whitelist" description:"Add an IP network or IP that will not be banned (eg. 192.168.1.0/24 or ::1)"`

	// API server options.
	APIListeners  []string `long:"apilisten" description:"Add an interface/port to listen for API websocket connections (default 127.0.0.1 port: 9998)"`
	DisableAPI    bool     `long:"noapi" description:"Disable the API server"`
	APIMaxClients int      `long:"apimaxclients" description:"Max number of API websocket clients"`

	// The following options are computed from the options above.
	netID       wire.NetworkID
	self        wire.NodeAddress
	evictPolicy peermgr.EvictionPolicy
	seedNodes   []wire.NodeAddress
	connect     []wire.NodeAddress
	whitelists  []net.IPNet
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// parseNodeAddresses normalizes and parses the passed overlay addresses.
func parseNodeAddresses(option string, addrs []string) ([]wire.NodeAddress, error) {
	addrs = normalizeAddresses(addrs, strconv.Itoa(defaultPort))
	nas := make([]wire.NodeAddress, 0, len(addrs))
	for _, addr := range addrs {
		na, err := wire.ParseNodeAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("the %s option %q is invalid: %w", option,
				addr, err)
		}
		nas = append(nas, na)
	}
	return nas, nil
}

// parseWhitelists parses the whitelisted networks and IPs.  A single IP is
// treated as a network of one address.
func parseWhitelists(whitelists []string) ([]net.IPNet, error) {
	ipNets := make([]net.IPNet, 0, len(whitelists))
	for _, addr := range whitelists {
		_, ipnet, err := net.ParseCIDR(addr)
		if err != nil {
			ip := net.ParseIP(addr)
			if ip == nil {
				return nil, fmt.Errorf("the whitelist value of %q is "+
					"invalid", addr)
			}
			var bits int
			if ip.To4() == nil {
				// IPv6
				bits = 128
			} else {
				bits = 32
			}
			ipnet = &net.IPNet{
				IP:   ip,
				Mask: net.CIDRMask(bits, bits),
			}
		}
		ipNets = append(ipNets, *ipnet)
	}
	return ipNets, nil
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// createDefaultConfigFile writes the sample configuration to the passed path
// creating the directory as needed.
func createDefaultConfigFile(destPath string) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destPath), 0700)
	if err != nil {
		return err
	}

	return os.WriteFile(destPath, []byte(sampleconfig.Tradenetd()), 0600)
}

// defaultConfig returns the configuration with every option set to its
// default value.
func defaultConfig() config {
	return config{
		HomeDir:                defaultHomeDir,
		ConfigFile:             defaultConfigFile,
		DataDir:                defaultDataDir,
		LogDir:                 defaultLogDir,
		MaxLogZips:             defaultMaxLogZips,
		DebugLevel:             defaultLogLevel,
		NetworkID:              defaultNetworkID,
		Port:                   defaultPort,
		MaxConnections:         peermgr.DefaultMaxConnections,
		TargetOutbound:         defaultTargetOutbound,
		EvictPolicy:            string(peermgr.PolicyEvict),
		MaxKnownPeers:          addrmgr.DefaultMaxKnownPeers,
		MsgThrottlePerSec:      peer.DefaultMsgThrottlePerSec,
		MsgThrottlePer10Sec:    peer.DefaultMsgThrottlePer10Sec,
		ThrottleViolations:     peer.DefaultThrottleViolationLimit,
		SendMsgThrottleTrigger: broadcaster.DefaultThrottleTrigger,
		SendMsgThrottleSleep:   broadcaster.DefaultThrottleSleep,
		MaxSequenceNumbers:     datastore.DefaultMaxSequenceNumbers,
		SweepInterval:          datastore.DefaultSweepInterval,
		GetDataTimeout:         requestdata.DefaultTimeout,
		PeerExchangeInterval:   peerexchange.DefaultInterval,
		KeepAliveInterval:      keepalive.DefaultInterval,
		IdleTimeout:            keepalive.DefaultTimeout,
		BanDuration:            defaultBanDuration,
		BanThreshold:           defaultBanThreshold,
		APIMaxClients:          apiserver.DefaultMaxClients,
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in tradenetd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for tradenetd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect the
	// new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = cleanAndExpandPath(preCfg.DataDir)
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = cleanAndExpandPath(preCfg.LogDir)
		}
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	if preCfg.ConfigFile == defaultConfigFile {
		if _, err := os.Stat(cfg.ConfigFile); os.IsNotExist(err) {
			err := createDefaultConfigFile(cfg.ConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default config "+
					"file: %v\n", err)
			}
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			err = fmt.Errorf("error parsing config file: %w", err)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
		}
		return nil, nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile, cfg.MaxLogZips); err != nil {
			return nil, nil, errSuppressUsage(err.Error())
		}
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid options.
	// Note this should go directly before the return.
	if configFileError != nil {
		trndLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// validate checks the parsed options and computes the derived ones.  The
// data and log directories are namespaced by the network.
func (cfg *config) validate() error {
	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err := os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is linked to
		// a directory that does not exist (probably because it's not
		// mounted).
		var e *os.PathError
		if errors.As(err, &e) && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: failed to create home directory: %v"
		return errSuppressUsage(fmt.Sprintf(str, funcName, err))
	}

	cfg.netID = wire.NetworkID(cfg.NetworkID)
	switch cfg.netID {
	case wire.MainNet, wire.TestNet, wire.RegNet:
	default:
		str := "%s: unknown network id %d"
		return fmt.Errorf(str, funcName, cfg.NetworkID)
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	netName := cfg.netID.String()
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), netName)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), netName)

	cfg.evictPolicy, err = peermgr.ParseEvictionPolicy(cfg.EvictPolicy)
	if err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"maxconnections", int64(cfg.MaxConnections)},
		{"maxknownpeers", int64(cfg.MaxKnownPeers)},
		{"msgthrottlepersec", int64(cfg.MsgThrottlePerSec)},
		{"msgthrottleper10sec", int64(cfg.MsgThrottlePer10Sec)},
		{"throttleviolations", int64(cfg.ThrottleViolations)},
		{"sendmsgthrottletrigger", int64(cfg.SendMsgThrottleTrigger)},
		{"maxsequencenumbers", int64(cfg.MaxSequenceNumbers)},
		{"sweepinterval", int64(cfg.SweepInterval)},
		{"getdatatimeout", int64(cfg.GetDataTimeout)},
		{"peerexchangeinterval", int64(cfg.PeerExchangeInterval)},
		{"keepaliveinterval", int64(cfg.KeepAliveInterval)},
		{"idletimeout", int64(cfg.IdleTimeout)},
		{"banthreshold", int64(cfg.BanThreshold)},
		{"apimaxclients", int64(cfg.APIMaxClients)},
	}
	for _, opt := range positive {
		if opt.value <= 0 {
			str := "%s: the %s option must be positive -- parsed [%d]"
			return fmt.Errorf(str, funcName, opt.name, opt.value)
		}
	}
	if cfg.MsgThrottlePer10Sec < cfg.MsgThrottlePerSec {
		str := "%s: the msgthrottleper10sec option may not be less than " +
			"msgthrottlepersec -- parsed [%d < %d]"
		return fmt.Errorf(str, funcName, cfg.MsgThrottlePer10Sec,
			cfg.MsgThrottlePerSec)
	}
	if cfg.IdleTimeout <= cfg.KeepAliveInterval {
		str := "%s: the idletimeout option must be greater than the " +
			"keepaliveinterval option -- parsed [%v <= %v]"
		return fmt.Errorf(str, funcName, cfg.IdleTimeout,
			cfg.KeepAliveInterval)
	}
	if cfg.SendMsgThrottleSleep < 0 || cfg.MaxUptime < 0 {
		str := "%s: durations may not be negative"
		return fmt.Errorf(str, funcName)
	}

	// Don't allow ban durations that are too short.
	if cfg.BanDuration < time.Second {
		str := "%s: the banduration option may not be less than 1s -- " +
			"parsed [%v]"
		return fmt.Errorf(str, funcName, cfg.BanDuration)
	}

	cfg.whitelists, err = parseWhitelists(cfg.Whitelists)
	if err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}

	// --proxy without a host:port is invalid, and only valid hosts are
	// accepted for the other peer address options.
	if cfg.Proxy != "" {
		cfg.Proxy = normalizeAddress(cfg.Proxy, "9050")
	}
	if cfg.seedNodes, err = parseNodeAddresses("seednode", cfg.SeedNodes); err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}
	if cfg.connect, err = parseNodeAddresses("connect", cfg.ConnectPeers); err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}

	// Connecting only to specified peers implies no listening and no seed
	// nodes unless explicitly requested otherwise.
	if len(cfg.connect) > 0 {
		cfg.DisableSeeders = true
	}

	// Add the default listener if none were specified.
	port := strconv.Itoa(int(cfg.Port))
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{net.JoinHostPort("", port)}
	}
	if cfg.DisableListen {
		cfg.Listeners = nil
	}
	cfg.Listeners = normalizeAddresses(cfg.Listeners, port)

	if len(cfg.APIListeners) == 0 {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(defaultAPIPort))
		cfg.APIListeners = []string{addr}
	}
	cfg.APIListeners = normalizeAddresses(cfg.APIListeners,
		strconv.Itoa(defaultAPIPort))

	// The advertised address identifies this node on the overlay.
	host := cfg.ExternalHost
	if host == "" {
		host = "127.0.0.1"
		if cfg.UseLocalhost {
			host = "localhost"
		}
	}
	cfg.self = wire.NewNodeAddress(host, cfg.Port)
	if _, err := wire.ParseNodeAddress(cfg.self.String()); err != nil {
		return fmt.Errorf("%s: invalid external address: %w", funcName, err)
	}
	if cfg.UseLocalhost && !cfg.self.IsLocal() {
		str := "%s: the externalhost option must refer to the local host " +
			"when uselocalhost is set -- parsed [%v]"
		return fmt.Errorf(str, funcName, cfg.ExternalHost)
	}
	if cfg.self.IsOnion() && cfg.Proxy == "" {
		str := "%s: an onion service external host requires the proxy option"
		return fmt.Errorf(str, funcName)
	}

	return nil
}

// banManagerConfig returns the ban manager configuration for the options.
func (cfg *config) banManagerConfig() *banmanager.Config {
	return &banmanager.Config{
		DisableBanning: cfg.DisableBanning,
		BanThreshold:   cfg.BanThreshold,
		BanDuration:    cfg.BanDuration,
		MaxPeers:       cfg.MaxConnections,
		BanList:        cfg.BanList,
		WhiteList:      cfg.whitelists,
	}
}
