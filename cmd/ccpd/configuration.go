// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/ccp-project/goccp/algs/gca"
	"github.com/ccp-project/goccp/core"
	"github.com/ccp-project/goccp/introspect"
	"github.com/ccp-project/goccp/storage"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging    logConf
	Ipc        ipcConf
	Core       coreConf
	Storage    storageConf
	Introspect introspectConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// ipcConf describes the Ipc-configuration block selecting the datapath
// transport.
type ipcConf struct {
	Transport string

	// unix transport
	RecvPath string `toml:"recv-path"`
	SendPath string `toml:"send-path"`

	// netlink transport
	Group uint32

	// char-device transport
	Device string
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Algorithm string
	Strict    bool
}

// storageConf enables the report archive when a path is set.
type storageConf struct {
	Path string
}

// introspectConf enables the HTTP introspection API when a listen address
// is set.
type introspectConf struct {
	Listen string
}

// parseLogging sets the logging configuration up, the way the rest of the
// daemon expects it.
func parseLogging(conf logConf) error {
	if conf.Level != "" {
		level, err := log.ParseLevel(conf.Level)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: false})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown logging format %q", conf.Format)
	}

	return nil
}

// parseCore creates the session core and its companions based on the given
// TOML configuration.
func parseCore(filename string) (c *core.Core, closers []func() error, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if err = parseLogging(conf.Logging); err != nil {
		return
	}

	ch, err := parseTransport(conf.Ipc)
	if err != nil {
		return
	}

	c, err = core.New(core.Config{
		Channel:    ch,
		Algorithms: []core.Alg{gca.Alg{}},
		DefaultAlg: conf.Core.Algorithm,
		Strict:     conf.Core.Strict,
	})
	if err != nil {
		_ = ch.Close()
		return
	}

	if conf.Storage.Path != "" {
		store, storeErr := storage.NewStore(conf.Storage.Path)
		if storeErr != nil {
			err = storeErr
			return
		}
		c.AddObserver(store)
		closers = append(closers, store.Close)
	}

	if conf.Introspect.Listen != "" {
		agent := introspect.NewAgent(c)
		c.AddObserver(agent)
		agent.Listen(conf.Introspect.Listen)
		closers = append(closers, agent.Close)
	}

	return
}
