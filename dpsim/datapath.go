// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dpsim

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ccp-project/goccp/ipc"
	"github.com/ccp-project/goccp/lang"
	"github.com/ccp-project/goccp/wire"
)

// simFlow is one simulated connection: its machine plus the programs the
// core has installed on it.
type simFlow struct {
	machine  *Machine
	programs map[uint32]*lang.Bin
}

// Datapath speaks the datapath side of the protocol over an ipc.Channel.
// Control messages from the core are applied by a background goroutine;
// the test or caller drives ACK processing explicitly.
type Datapath struct {
	ch      ipc.Channel
	buildID uint32

	mu    sync.Mutex
	flows map[uint32]*simFlow

	stopAck chan struct{}
}

// New builds a Datapath on ch, advertising buildID in its Ready message.
func New(ch ipc.Channel, buildID uint32) *Datapath {
	return &Datapath{
		ch:      ch,
		buildID: buildID,
		flows:   make(map[uint32]*simFlow),
		stopAck: make(chan struct{}),
	}
}

// Start announces the datapath and begins applying control messages in the
// background.
func (dp *Datapath) Start() error {
	if err := dp.send(&wire.Ready{BuildID: dp.buildID}); err != nil {
		return err
	}
	go dp.controlLoop()
	return nil
}

// Stop closes the channel and waits for the control loop to exit.
func (dp *Datapath) Stop() {
	_ = dp.ch.Close()
	<-dp.stopAck
}

func (dp *Datapath) controlLoop() {
	defer close(dp.stopAck)

	buf := make([]byte, dp.ch.MTU())
	dec := wire.Decoder{MTU: dp.ch.MTU()}

	for {
		n, err := dp.ch.Recv(buf)
		if err == ipc.ErrClosed {
			return
		}
		if err != nil {
			log.WithError(err).Warn("Simulated datapath receive failed")
			continue
		}

		msg, err := dec.Decode(buf[:n])
		if err != nil || msg == nil {
			continue
		}
		dp.apply(msg)
	}
}

func (dp *Datapath) apply(msg wire.Msg) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	switch m := msg.(type) {
	case *wire.Install:
		f := dp.flow(m.Sid)
		f.programs[m.ProgramUID] = m.Bin

	case *wire.ChangeProg:
		f := dp.flow(m.Sid)
		bin, ok := f.programs[m.ProgramUID]
		if !ok {
			log.WithFields(log.Fields{
				"sid":         m.Sid,
				"program_uid": m.ProgramUID,
			}).Warn("ChangeProg for unknown program")
			return
		}
		f.machine.Switch(m.ProgramUID, bin)
		dp.applyUpdates(f, m.Sid, m.Updates)

	case *wire.Update:
		f := dp.flow(m.Sid)
		dp.applyUpdates(f, m.Sid, m.Updates)

	case *wire.Free:
		delete(dp.flows, m.Sid)

	default:
		log.WithField("type", msg.Type()).Debug("Simulated datapath ignores message")
	}
}

func (dp *Datapath) applyUpdates(f *simFlow, sid uint32, updates []wire.FieldUpdate) {
	for _, u := range updates {
		if err := f.machine.Update(lang.RegClass(u.Class), u.Idx, u.Value); err != nil {
			log.WithFields(log.Fields{
				"sid":   sid,
				"error": err,
			}).Warn("Update failed")
		}
	}
}

// flow returns the registry entry for sid, creating it if the core's
// install got ahead of our Create bookkeeping.
func (dp *Datapath) flow(sid uint32) *simFlow {
	f, ok := dp.flows[sid]
	if !ok {
		f = &simFlow{machine: NewMachine(), programs: make(map[uint32]*lang.Bin)}
		dp.flows[sid] = f
	}
	return f
}

// Create opens a flow towards the core and seeds the machine's congestion
// state.
func (dp *Datapath) Create(m *wire.Create) error {
	dp.mu.Lock()
	f := dp.flow(m.Sid)
	f.machine.SetPerm(lang.PermCwnd, uint64(m.InitCwnd))
	dp.mu.Unlock()

	return dp.send(m)
}

// Ack runs one ACK event on a flow: the clock advances by elapsed
// microseconds, the current program executes, and every emitted report
// goes out as a Measure message.
func (dp *Datapath) Ack(sid uint32, prims Primitives, elapsed uint64) error {
	dp.mu.Lock()
	f, ok := dp.flows[sid]
	if !ok {
		dp.mu.Unlock()
		return nil
	}
	snaps, err := f.machine.Ack(prims, elapsed)
	dp.mu.Unlock()
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		m := &wire.Measure{Sid: sid, ProgramUID: snap.ProgramUID, Fields: snap.Fields}
		if err := dp.send(m); err != nil {
			return err
		}
	}
	return nil
}

// ProgramUID returns the uid of a flow's running program, zero if none.
func (dp *Datapath) ProgramUID(sid uint32) uint32 {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if f, ok := dp.flows[sid]; ok {
		return f.machine.ProgID()
	}
	return 0
}

// Cwnd reads a flow's current congestion window.
func (dp *Datapath) Cwnd(sid uint32) uint64 {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if f, ok := dp.flows[sid]; ok {
		return f.machine.Perm(lang.PermCwnd)
	}
	return 0
}

// Free tells the core the flow ended and drops it locally.
func (dp *Datapath) Free(sid uint32) error {
	dp.mu.Lock()
	delete(dp.flows, sid)
	dp.mu.Unlock()

	return dp.send(&wire.Free{Sid: sid})
}

func (dp *Datapath) send(m wire.Msg) error {
	buf, err := wire.Append(nil, m, dp.ch.MTU())
	if err != nil {
		return err
	}
	return dp.ch.Send(buf)
}
