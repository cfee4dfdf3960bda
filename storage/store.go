// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage archives the reports flows emit, for offline analysis
// of algorithm behavior. The archive is an embedded badgerhold store and
// plugs into the core as an Observer.
package storage

import (
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"

	"github.com/ccp-project/goccp/core"
)

const dirBadger string = "db"

// ReportItem is one archived report.
type ReportItem struct {
	Id uint64 `badgerhold:"key"`

	SocketID   uint32 `badgerholdIndex:"SocketID"`
	ProgramUID uint32

	Received time.Time

	Cwnd   uint64
	Rate   uint64
	Fields map[string]uint64
}

// Store is a report archive.
type Store struct {
	bh *badgerhold.Store
}

// NewStore opens (or creates) the archive below dir.
func NewStore(dir string) (*Store, error) {
	badgerDir := path.Join(dir, dirBadger)
	if err := os.MkdirAll(badgerDir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{bh: bh}, nil
}

// Close shuts the underlying store down.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Push archives one report.
func (s *Store) Push(r core.Report) error {
	item := ReportItem{
		SocketID:   r.SocketID,
		ProgramUID: r.ProgramUID,
		Received:   time.Now(),
		Cwnd:       r.Cwnd,
		Rate:       r.Rate,
		Fields:     make(map[string]uint64, len(r.Fields)),
	}
	for _, f := range r.Fields {
		item.Fields[f.Name] = f.Value
	}

	return s.bh.Insert(badgerhold.NextSequence(), &item)
}

// QueryFlow returns a flow's archived reports in arrival order.
func (s *Store) QueryFlow(sid uint32) ([]ReportItem, error) {
	var items []ReportItem
	err := s.bh.Find(&items, badgerhold.Where("SocketID").Eq(sid).Index("SocketID"))
	return items, err
}

// FlowCreated implements core.Observer.
func (s *Store) FlowCreated(info core.FlowInfo) {}

// FlowClosed implements core.Observer.
func (s *Store) FlowClosed(sid uint32) {}

// ReportReceived implements core.Observer.
func (s *Store) ReportReceived(r core.Report) {
	if err := s.Push(r); err != nil {
		log.WithFields(log.Fields{
			"sid":   r.SocketID,
			"error": err,
		}).Warn("Failed to archive report")
	}
}
