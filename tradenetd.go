// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/internal/version"
)

var cfg *config

// tradenetdMain is the real main function for tradenetd.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func tradenetdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the max uptime timer.
	ctx := shutdownListener()
	defer trndLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	trndLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	trndLog.Infof("Home dir: %s", cfg.HomeDir)
	trndLog.Infof("Network: %s, node address: %s", cfg.netID, cfg.self)
	if cfg.NoFileLogging {
		trndLog.Info("File logging disabled")
	}

	// The data store keeps every live entry in memory.  A soft limit keeps
	// the heap of a busy seed node in check without lowering the GC
	// percentage.
	const softMemLimit = 1 << 30 // 1 GiB
	debug.SetMemoryLimit(softMemLimit)

	// Enable http profile server if requested.
	var profiler profileServer
	defer profiler.Stop()
	if cfg.Profile != "" {
		const allowNonLoopback = true
		if err := profiler.Start(cfg.Profile, allowNonLoopback); err != nil {
			trndLog.Warnf("unable to start profile server: %v", err)
			return err
		}
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			trndLog.Errorf("Unable to create cpu profile: %v", err)
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			trndLog.Errorf("Unable to start cpu profile: %v", err)
			return err
		}
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Seed nodes may be restarted periodically by bounding the uptime.
	if cfg.MaxUptime > 0 {
		trndLog.Infof("Shutting down after %v", cfg.MaxUptime)
		timer := time.AfterFunc(cfg.MaxUptime, func() {
			trndLog.Infof("Max uptime of %v reached", cfg.MaxUptime)
			requestShutdown()
		})
		defer timer.Stop()
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Load the data store database.
	dbPath := filepath.Join(cfg.DataDir, defaultDatabaseDirname)
	db, err := datastore.OpenLevelDBStore(dbPath)
	if err != nil {
		trndLog.Errorf("%v", err)
		return err
	}

	// Create server.  The server owns the database from now on and closes it
	// once every subsystem stopped.
	svr, err := newServer(ctx, cfg, db)
	if err != nil {
		trndLog.Errorf("Unable to start server: %v", err)
		db.Close()
		return err
	}

	// Run the server.  This will block until the context is cancelled which
	// happens when the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems such as the max
	// uptime timer.
	if err := svr.Run(ctx); err != nil {
		srvrLog.Errorf("Server stopped with error: %v", err)
		return err
	}
	srvrLog.Infof("Server shutdown complete")
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := tradenetdMain(); err != nil {
		os.Exit(1)
	}
}
