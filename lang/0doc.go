// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package lang compiles datapath programs from their S-expression source
// into the flat register-machine form a datapath executes.
//
// A datapath program consists of a single (def ...) clause declaring user
// variables, followed by one or more (when cond body...) event clauses. The
// def clause may contain a (Report ...) block; variables declared there are
// included in every emitted report. Any variable may carry the "volatile"
// marker, meaning the datapath resets it to its declared default after each
// report.
//
//	(def (Report (volatile acked 0)) (ssthresh +infinity))
//	(when true
//	    (:= Report.acked (+ Report.acked Ack.bytes_acked))
//	    (fallthrough)
//	)
//	(when (> Micros Flow.rtt_sample_us)
//	    (report)
//	    (:= Micros 0)
//	)
//
// Compilation is staged: Parse builds the AST, Analyze enforces the
// language rules and produces the program's Scope, and Gen lowers the AST
// to a Bin, a serializable instruction vector. Compile runs all three.
package lang
