// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package introspect exposes the session core's state over HTTP: the flow
// registry and the program cache as JSON endpoints, and a live report feed
// over a WebSocket.
package introspect

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ccp-project/goccp/core"
)

// feedBuffer bounds the per-client report queue; a stalled client loses
// reports rather than stalling the core.
const feedBuffer = 64

// Agent serves the introspection API for one Core. Register it as an
// Observer to feed the WebSocket clients.
type Agent struct {
	core   *core.Core
	router *mux.Router

	upgrader websocket.Upgrader

	clientMu sync.Mutex
	clients  map[chan core.Report]struct{}

	srv *http.Server
}

// NewAgent builds the Agent and its routes.
func NewAgent(c *core.Core) *Agent {
	a := &Agent{
		core:     c,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{},
		clients:  make(map[chan core.Report]struct{}),
	}

	a.router.HandleFunc("/v1/flows", a.handleFlows).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/programs", a.handlePrograms).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/reports", a.handleReports)

	return a
}

// ServeHTTP implements http.Handler.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Listen serves the API on addr until Close.
func (a *Agent) Listen(addr string) {
	a.srv = &http.Server{Addr: addr, Handler: a}

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Introspection server failed")
		}
	}()

	log.WithField("addr", addr).Info("Introspection API listening")
}

// Close stops the HTTP server, if Listen started one.
func (a *Agent) Close() error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Close()
}

func (a *Agent) handleFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.core.Flows())
}

func (a *Agent) handlePrograms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.core.Programs())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write introspection response")
	}
}

// handleReports upgrades to a WebSocket and streams reports as JSON.
func (a *Agent) handleReports(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	feed := make(chan core.Report, feedBuffer)
	a.clientMu.Lock()
	a.clients[feed] = struct{}{}
	a.clientMu.Unlock()

	defer func() {
		a.clientMu.Lock()
		delete(a.clients, feed)
		a.clientMu.Unlock()
		conn.Close()
	}()

	for report := range feed {
		if err := conn.WriteJSON(report); err != nil {
			log.WithError(err).Debug("Report feed client went away")
			return
		}
	}
}

// FlowCreated implements core.Observer.
func (a *Agent) FlowCreated(core.FlowInfo) {}

// FlowClosed implements core.Observer.
func (a *Agent) FlowClosed(uint32) {}

// ReportReceived implements core.Observer; it fans the report out to every
// connected WebSocket client without blocking the receive loop.
func (a *Agent) ReportReceived(r core.Report) {
	a.clientMu.Lock()
	defer a.clientMu.Unlock()

	for feed := range a.clients {
		select {
		case feed <- r:
		default:
			// client is too slow, drop this report for it
		}
	}
}
