// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire implements the framed binary message format spoken between
// the session core and its datapaths.
//
// Every message starts with a fixed header of type, reserved byte, total
// length and socket id, all little-endian. One message travels per IPC
// datagram; the header's length field is authoritative, trailing padding
// within a datagram is ignored. Decoding copies every value out of the
// input buffer, so decoded messages never reference it; encoding appends
// to a caller-provided buffer.
package wire
