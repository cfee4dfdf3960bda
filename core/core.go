// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/ccp-project/goccp/ipc"
	"github.com/ccp-project/goccp/wire"
)

// maxRecvErrors bounds consecutive transient receive failures before the
// loop gives up.
const maxRecvErrors = 10

// Observer is notified about flow lifecycle and reports. Observers run on
// the receive loop and must return quickly.
type Observer interface {
	FlowCreated(info FlowInfo)
	FlowClosed(sid uint32)
	ReportReceived(r Report)
}

// Config wires a Core up.
type Config struct {
	// Channel is the transport to the datapath, chosen at startup.
	Channel ipc.Channel

	// Algorithms is the registry; Create messages go to DefaultAlg, or to
	// the first entry if DefaultAlg is empty.
	Algorithms []Alg
	DefaultAlg string

	// Strict makes unknown inbound message types an error instead of a
	// silent skip.
	Strict bool
}

// ProgramSnapshot is the introspection view of one cached program.
type ProgramSnapshot struct {
	UID          uint32
	NumEvents    int
	NumInstrs    int
	ReportFields []string
}

// Core is the session core: one datapath channel, the flow registry and
// the shared program cache.
type Core struct {
	ch  ipc.Channel
	dec wire.Decoder

	algs       map[string]Alg
	defaultAlg Alg

	cache *programCache

	registryMu sync.Mutex
	flows      map[uint32]*flowState

	sendMu  sync.Mutex
	sendBuf []byte

	observerMu sync.Mutex
	observers  []Observer

	stateMu sync.Mutex
	ready   bool
	buildID uint32
}

// New builds a Core from its configuration.
func New(conf Config) (*Core, error) {
	if conf.Channel == nil {
		return nil, fmt.Errorf("core needs a channel")
	}
	if len(conf.Algorithms) == 0 {
		return nil, fmt.Errorf("core needs at least one algorithm")
	}

	c := &Core{
		ch:    conf.Channel,
		dec:   wire.Decoder{Strict: conf.Strict, MTU: conf.Channel.MTU()},
		algs:  make(map[string]Alg),
		cache: newProgramCache(),
		flows: make(map[uint32]*flowState),
	}

	for _, alg := range conf.Algorithms {
		if _, dup := c.algs[alg.Name()]; dup {
			return nil, fmt.Errorf("algorithm %q registered twice", alg.Name())
		}
		c.algs[alg.Name()] = alg
	}

	name := conf.DefaultAlg
	if name == "" {
		name = conf.Algorithms[0].Name()
	}
	def, ok := c.algs[name]
	if !ok {
		return nil, fmt.Errorf("default algorithm %q is not registered", name)
	}
	c.defaultAlg = def

	return c, nil
}

// AddObserver registers an observer; call before Run.
func (c *Core) AddObserver(o Observer) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.observers = append(c.observers, o)
}

// BuildID returns the datapath build id from its Ready message and whether
// a Ready has been seen at all.
func (c *Core) BuildID() (uint32, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.buildID, c.ready
}

// Run drains the channel and dispatches until the channel is closed. It
// returns nil on a clean close; all flows are dropped and their algorithm
// instances destroyed before it returns.
func (c *Core) Run() error {
	buf := make([]byte, c.ch.MTU())
	recvErrors := 0

	log.WithField("mtu", c.ch.MTU()).Info("Session core listening")

	for {
		n, err := c.ch.Recv(buf)
		if err == ipc.ErrClosed {
			log.Info("Channel closed, session core shutting down")
			c.dropAllFlows()
			return nil
		}
		if err != nil {
			recvErrors++
			if recvErrors >= maxRecvErrors {
				c.dropAllFlows()
				return fmt.Errorf("receive failed %d times, last: %w", recvErrors, err)
			}
			log.WithError(err).Warn("Receive failed, continuing")
			continue
		}
		recvErrors = 0

		msg, err := c.dec.Decode(buf[:n])
		if err != nil {
			log.WithError(err).Warn("Dropping malformed datagram")
			continue
		}
		if msg == nil {
			continue
		}

		c.dispatch(msg)
	}
}

// Handle controls a spawned receive loop.
type Handle struct {
	core *Core
	done chan struct{}
	err  error
}

// Spawn runs the receive loop on its own goroutine.
func (c *Core) Spawn() *Handle {
	h := &Handle{core: c, done: make(chan struct{})}
	go func() {
		h.err = c.Run()
		close(h.done)
	}()
	return h
}

// Stop closes the channel and waits for the loop to exit.
func (h *Handle) Stop() error {
	_ = h.core.ch.Close()
	<-h.done
	return h.err
}

// Wait blocks until the loop exits on its own.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Close shuts the Core down: the channel is closed, which terminates a
// running receive loop, and all remaining flows are dropped.
func (c *Core) Close() error {
	var errs *multierror.Error

	if err := c.ch.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	c.dropAllFlows()

	return errs.ErrorOrNil()
}

func (c *Core) dispatch(msg wire.Msg) {
	switch m := msg.(type) {
	case *wire.Ready:
		c.handleReady(m)
	case *wire.Create:
		c.handleCreate(m)
	case *wire.Measure:
		c.handleMeasure(m)
	case *wire.Free:
		c.handleFree(m)
	default:
		log.WithFields(log.Fields{
			"type": msg.Type(),
			"sid":  msg.SocketID(),
		}).Warn("Dropping message the datapath should not send")
	}
}

func (c *Core) handleReady(m *wire.Ready) {
	c.stateMu.Lock()
	wasReady := c.ready
	c.ready = true
	c.buildID = m.BuildID
	c.stateMu.Unlock()

	if wasReady {
		log.WithField("build_id", m.BuildID).Info(
			"Datapath announced itself again, clearing stale flows")
		c.dropAllFlows()
	} else {
		log.WithField("build_id", m.BuildID).Info("Datapath ready")
	}
}

func (c *Core) handleCreate(m *wire.Create) {
	info := FlowInfo{
		SocketID: m.Sid,
		InitCwnd: m.InitCwnd,
		Mss:      m.Mss,
		SrcIP:    m.SrcIP,
		SrcPort:  m.SrcPort,
		DstIP:    m.DstIP,
		DstPort:  m.DstPort,
	}

	if _, ready := c.BuildID(); !ready {
		log.WithField("sid", m.Sid).Warn("Create before datapath Ready, proceeding anyway")
	}

	c.registryMu.Lock()
	old, exists := c.flows[m.Sid]
	c.registryMu.Unlock()
	if exists {
		log.WithField("sid", m.Sid).Debug("Re-creating an existing flow")
		c.teardown(old, m.Sid, false)
	}

	inst, err := c.defaultAlg.NewFlow(info)
	if err != nil {
		log.WithFields(log.Fields{
			"sid":   m.Sid,
			"alg":   c.defaultAlg.Name(),
			"error": err,
		}).Error("Algorithm refused the flow")
		return
	}

	f := &flowState{
		info:     info,
		alg:      inst,
		phase:    phaseNew,
		programs: make(map[string]*compiledProgram),
	}

	sources := inst.Programs()
	if len(sources) == 0 {
		log.WithField("sid", m.Sid).Error("Algorithm provided no datapath programs")
		inst.Close()
		return
	}

	// compile everything first; a compile error must leave no flow state
	// behind and send nothing
	for _, src := range sources {
		prog, err := c.cache.compile(src.Source)
		if err != nil {
			log.WithFields(log.Fields{
				"sid":     m.Sid,
				"program": src.Name,
				"error":   err,
			}).Error("Datapath program failed to compile")
			c.notifyError(inst, err)
			inst.Close()
			return
		}
		f.programs[src.Name] = prog
	}

	initial, values := inst.Init()
	initProg, ok := f.programs[initial]
	if !ok {
		log.WithFields(log.Fields{
			"sid":     m.Sid,
			"program": initial,
		}).Error("Initial program is not among the provided programs")
		inst.Close()
		return
	}

	updates, err := resolveUpdates(m.Sid, initProg.Scope, values)
	if err != nil {
		log.WithFields(log.Fields{
			"sid":   m.Sid,
			"error": err,
		}).Error("Initial field values do not resolve")
		inst.Close()
		return
	}

	c.registryMu.Lock()
	f.current = initProg
	f.phase = phaseInstalled
	c.flows[m.Sid] = f
	c.registryMu.Unlock()

	log.WithFields(log.Fields{
		"sid":       m.Sid,
		"alg":       c.defaultAlg.Name(),
		"init_cwnd": info.InitCwnd,
		"mss":       info.Mss,
		"programs":  len(f.programs),
	}).Info("Created flow")

	for name, prog := range f.programs {
		c.send(&wire.Install{Sid: m.Sid, ProgramUID: prog.UID, Bin: prog.Bin})
		log.WithFields(log.Fields{
			"sid":         m.Sid,
			"program":     name,
			"program_uid": prog.UID,
		}).Debug("Installed program")
	}

	c.send(&wire.ChangeProg{Sid: m.Sid, ProgramUID: initProg.UID})
	if len(updates) > 0 {
		c.send(&wire.Update{Sid: m.Sid, Updates: updates})
	}

	for _, o := range c.snapshotObservers() {
		o.FlowCreated(info)
	}
}

func (c *Core) handleMeasure(m *wire.Measure) {
	c.registryMu.Lock()
	f, ok := c.flows[m.Sid]
	c.registryMu.Unlock()
	if !ok {
		log.WithField("sid", m.Sid).Debug("Measure for unknown flow")
		return
	}

	if f.phase != phaseInstalled && f.phase != phaseRunning {
		log.WithFields(log.Fields{
			"sid":   m.Sid,
			"phase": f.phase,
		}).Warn("Dropping Measure in unexpected flow state")
		return
	}

	// an empty report is the datapath's way of closing the flow
	if len(m.Fields) == 0 {
		log.WithField("sid", m.Sid).Debug("Datapath closed flow")
		c.teardown(f, m.Sid, false)
		return
	}

	if m.ProgramUID != f.current.UID {
		log.WithFields(log.Fields{
			"sid":      m.Sid,
			"got_uid":  m.ProgramUID,
			"want_uid": f.current.UID,
		}).Debug("Dropping report from a stale program")
		return
	}

	report, err := decodeReport(f.current.Scope, m)
	if err != nil {
		log.WithFields(log.Fields{
			"sid":   m.Sid,
			"error": err,
		}).Warn("Undecodable report")
		return
	}

	c.setFlowState(f, f.current, phaseRunning)

	resp, failed := c.callOnReport(f, report)
	if failed {
		c.teardown(f, m.Sid, true)
		return
	}
	c.applyResponse(f, resp)

	for _, o := range c.snapshotObservers() {
		o.ReportReceived(report)
	}
}

// callOnReport delivers a report under the flow's mutex, converting a
// callback panic into a flow-fatal condition instead of crashing the loop.
func (c *Core) callOnReport(f *flowState, r Report) (resp Response, failed bool) {
	defer func() {
		if p := recover(); p != nil {
			err := &AlgorithmError{SocketID: r.SocketID, Panic: p}
			log.WithError(err).Error("Algorithm callback panicked, dropping flow")
			resp, failed = nil, true
		}
	}()

	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.alg.OnReport(r), false
}

func (c *Core) applyResponse(f *flowState, resp Response) {
	if resp == nil {
		return
	}
	sid := f.info.SocketID

	switch resp := resp.(type) {
	case *UpdateResponse:
		updates, err := resolveUpdates(sid, f.current.Scope, resp.Updates)
		if err != nil {
			c.respondError(f, err)
			return
		}
		c.send(&wire.Update{Sid: sid, Updates: updates})

	case *SwitchResponse:
		prog, ok := f.programs[resp.Name]
		if !ok {
			c.respondError(f, protocolError(sid, "switch to unknown program %q", resp.Name))
			return
		}
		updates, err := resolveUpdates(sid, prog.Scope, resp.Updates)
		if err != nil {
			c.respondError(f, err)
			return
		}
		c.send(&wire.ChangeProg{Sid: sid, ProgramUID: prog.UID, Updates: updates})
		c.setFlowState(f, prog, phaseInstalled)

	case *InstallResponse:
		prog, err := c.cache.compile(resp.Source)
		if err != nil {
			c.respondError(f, err)
			return
		}
		updates, err := resolveUpdates(sid, prog.Scope, resp.Updates)
		if err != nil {
			c.respondError(f, err)
			return
		}
		f.programs[resp.Name] = prog
		c.send(&wire.Install{Sid: sid, ProgramUID: prog.UID, Bin: prog.Bin})
		c.send(&wire.ChangeProg{Sid: sid, ProgramUID: prog.UID, Updates: updates})
		c.setFlowState(f, prog, phaseInstalled)

	default:
		log.WithField("sid", sid).Warn("Ignoring unknown response variant")
	}
}

// respondError logs a failure caused by an algorithm response and hands it
// back to the instance if it cares. No flow state is mutated and nothing
// is sent.
func (c *Core) respondError(f *flowState, err error) {
	log.WithFields(log.Fields{
		"sid":   f.info.SocketID,
		"error": err,
	}).Error("Algorithm response failed")
	c.notifyError(f.alg, err)
}

func (c *Core) notifyError(inst Flow, err error) {
	if eh, ok := inst.(ErrorHandler); ok {
		eh.OnError(err)
	}
}

func (c *Core) handleFree(m *wire.Free) {
	c.registryMu.Lock()
	f, ok := c.flows[m.Sid]
	c.registryMu.Unlock()
	if !ok {
		log.WithField("sid", m.Sid).Debug("Free for unknown flow")
		return
	}

	log.WithField("sid", m.Sid).Info("Flow freed by datapath")
	c.teardown(f, m.Sid, false)
}

// teardown removes a flow and destroys its algorithm instance. sendFree
// tells the datapath about a core-initiated teardown, best-effort.
func (c *Core) teardown(f *flowState, sid uint32, sendFree bool) {
	c.registryMu.Lock()
	if c.flows[sid] == f {
		delete(c.flows, sid)
	}
	f.phase = phaseClosed
	c.registryMu.Unlock()

	f.mutex.Lock()
	f.alg.Close()
	f.mutex.Unlock()

	if sendFree {
		c.send(&wire.Free{Sid: sid})
	}

	for _, o := range c.snapshotObservers() {
		o.FlowClosed(sid)
	}
}

func (c *Core) dropAllFlows() {
	c.registryMu.Lock()
	flows := make(map[uint32]*flowState, len(c.flows))
	for sid, f := range c.flows {
		flows[sid] = f
	}
	c.registryMu.Unlock()

	for sid, f := range flows {
		c.teardown(f, sid, false)
	}
}

// send serializes one outbound message. Frames are never interleaved; a
// single mutex guards the scratch buffer and the channel write. Send
// failures are logged, the flow stays alive.
func (c *Core) send(m wire.Msg) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	buf, err := wire.Append(c.sendBuf[:0], m, c.ch.MTU())
	if err != nil {
		log.WithFields(log.Fields{
			"msg":   m,
			"error": err,
		}).Error("Refusing to send oversize message")
		return
	}
	c.sendBuf = buf[:0]

	if err := c.ch.Send(buf); err != nil {
		log.WithFields(log.Fields{
			"msg":   m,
			"error": err,
		}).Warn("Send failed")
	}
}

// setFlowState updates a flow's current program and phase under the
// registry lock, so introspection snapshots see a consistent view.
func (c *Core) setFlowState(f *flowState, prog *compiledProgram, phase flowPhase) {
	c.registryMu.Lock()
	f.current = prog
	f.phase = phase
	c.registryMu.Unlock()
}

func (c *Core) snapshotObservers() []Observer {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	return append([]Observer(nil), c.observers...)
}

// Flows returns an introspection snapshot of the registry.
func (c *Core) Flows() []FlowSnapshot {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()

	snaps := make([]FlowSnapshot, 0, len(c.flows))
	for _, f := range c.flows {
		snap := FlowSnapshot{
			Info:      f.info,
			Phase:     f.phase.String(),
			Algorithm: c.defaultAlg.Name(),
		}
		if f.current != nil {
			snap.ProgramUID = f.current.UID
		}
		for name := range f.programs {
			snap.Programs = append(snap.Programs, name)
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Programs returns an introspection snapshot of the shared program cache.
func (c *Core) Programs() []ProgramSnapshot {
	var snaps []ProgramSnapshot
	for _, prog := range c.cache.snapshot() {
		snap := ProgramSnapshot{
			UID:       prog.UID,
			NumEvents: prog.Bin.NumEvents(),
			NumInstrs: len(prog.Bin.Instrs),
		}
		for _, v := range prog.Scope.ReportVars() {
			snap.ReportFields = append(snap.ReportFields, v.Name)
		}
		snaps = append(snaps, snap)
	}
	return snaps
}
