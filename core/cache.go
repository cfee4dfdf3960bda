// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"crypto/sha256"
	"sync"

	"github.com/ccp-project/goccp/lang"
)

// compiledProgram is one cache entry: a compiled source together with its
// datapath-wide program uid.
type compiledProgram struct {
	UID   uint32
	Bin   *lang.Bin
	Scope *lang.Scope
}

// programCache deduplicates compilation across flows. Entries are inserted
// once, keyed by the source hash, and never recompiled; reads vastly
// outnumber insertions.
type programCache struct {
	mu      sync.RWMutex
	entries map[[sha256.Size]byte]*compiledProgram
	nextUID uint32
}

func newProgramCache() *programCache {
	return &programCache{
		entries: make(map[[sha256.Size]byte]*compiledProgram),
		nextUID: 1,
	}
}

// compile returns the cached program for source, compiling it on first
// sight. Compile errors are not cached; a later identical source fails the
// same way.
func (pc *programCache) compile(source string) (*compiledProgram, error) {
	key := sha256.Sum256([]byte(source))

	pc.mu.RLock()
	entry, ok := pc.entries[key]
	pc.mu.RUnlock()
	if ok {
		return entry, nil
	}

	bin, scope, err := lang.Compile(source)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	// somebody else may have compiled it while we did
	if entry, ok := pc.entries[key]; ok {
		return entry, nil
	}

	entry = &compiledProgram{
		UID:   pc.nextUID,
		Bin:   bin,
		Scope: scope,
	}
	pc.nextUID++
	pc.entries[key] = entry
	return entry, nil
}

// snapshot lists the cached programs for introspection.
func (pc *programCache) snapshot() []*compiledProgram {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	progs := make([]*compiledProgram, 0, len(pc.entries))
	for _, entry := range pc.entries {
		progs = append(progs, entry)
	}
	return progs
}
