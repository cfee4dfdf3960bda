// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gca is a window-based generic congestion-avoidance algorithm:
// slow start below the slow-start threshold, additive increase above it,
// multiplicative decrease on loss or timeout.
//
// A fresh flow reports on every ACK for fast startup feedback. Once slow
// start ends, the flow switches to a once-per-RTT report program to cut
// the message rate, demonstrating a program switch at runtime.
package gca

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/ccp-project/goccp/core"
)

// perAck reports on every ACK.
const perAck = `
(def (Report
    (volatile acked 0)
    (volatile sacked 0)
    (volatile loss 0)
    (volatile timeout false)
    (volatile rtt 0)
    (volatile inflight 0)
))
(when true
    (:= Report.acked (+ Report.acked Ack.bytes_acked))
    (:= Report.sacked (+ Report.sacked Ack.packets_misordered))
    (:= Report.loss Ack.lost_pkts_sample)
    (:= Report.timeout Flow.was_timeout)
    (:= Report.rtt Flow.rtt_sample_us)
    (:= Report.inflight Flow.packets_in_flight)
    (report)
)
`

// perRtt accumulates and reports once per RTT, earlier on loss or timeout.
const perRtt = `
(def (Report
    (volatile acked 0)
    (volatile sacked 0)
    (volatile loss 0)
    (volatile timeout false)
    (volatile rtt 0)
    (volatile inflight 0)
))
(when true
    (:= Report.acked (+ Report.acked Ack.bytes_acked))
    (:= Report.sacked (+ Report.sacked Ack.packets_misordered))
    (:= Report.loss Ack.lost_pkts_sample)
    (:= Report.timeout Flow.was_timeout)
    (:= Report.rtt Flow.rtt_sample_us)
    (:= Report.inflight Flow.packets_in_flight)
    (fallthrough)
)
(when (|| (> Report.loss 0) Report.timeout)
    (report)
    (:= Micros 0)
)
(when (> Micros Flow.rtt_sample_us)
    (report)
    (:= Micros 0)
)
`

// Alg is the registered algorithm capability.
type Alg struct{}

// Name implements core.Alg.
func (Alg) Name() string {
	return "gca"
}

// NewFlow implements core.Alg.
func (Alg) NewFlow(info core.FlowInfo) (core.Flow, error) {
	return &flow{
		info:     info,
		cwnd:     uint64(info.InitCwnd),
		ssthresh: math.MaxUint64,
	}, nil
}

// flow is the per-connection state.
type flow struct {
	info core.FlowInfo

	cwnd     uint64
	ssthresh uint64

	// perRttActive is set once the flow has left slow start and switched
	// to the once-per-RTT program.
	perRttActive bool
}

func (f *flow) Programs() []core.ProgramSource {
	return []core.ProgramSource{
		{Name: "per-ack", Source: perAck},
		{Name: "per-rtt", Source: perRtt},
	}
}

func (f *flow) Init() (string, []core.FieldValue) {
	return "per-ack", []core.FieldValue{{Field: "Cwnd", Value: f.cwnd}}
}

func (f *flow) OnReport(r core.Report) core.Response {
	acked, _ := r.Field("acked")
	loss, _ := r.Field("loss")
	timeout, _ := r.Field("timeout")

	mss := uint64(f.info.Mss)
	if mss == 0 {
		mss = 1460
	}

	switch {
	case timeout != 0:
		f.ssthresh = maxU64(f.cwnd/2, 2*mss)
		f.cwnd = f.ssthresh
	case loss > 0:
		f.ssthresh = maxU64(f.cwnd/2, 2*mss)
		f.cwnd = f.ssthresh
	case f.cwnd < f.ssthresh:
		// slow start
		f.cwnd += acked
	default:
		// congestion avoidance: one mss per window's worth of acks
		f.cwnd += mss * acked / f.cwnd
	}

	log.WithFields(log.Fields{
		"sid":  r.SocketID,
		"cwnd": f.cwnd,
		"loss": loss,
	}).Debug("gca adjusted window")

	update := []core.FieldValue{{Field: "Cwnd", Value: f.cwnd}}

	if !f.perRttActive && f.cwnd >= f.ssthresh {
		f.perRttActive = true
		return &core.SwitchResponse{Name: "per-rtt", Updates: update}
	}
	return &core.UpdateResponse{Updates: update}
}

func (f *flow) Close() {
	log.WithField("sid", f.info.SocketID).Debug("gca flow closed")
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
