// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

// Compile runs the full pipeline on a program source: parse, analyze,
// generate. The returned Scope names the Local registers and gives the
// layout of every report the program will emit.
func Compile(src string) (*Bin, *Scope, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, nil, err
	}

	sc, err := Analyze(prog)
	if err != nil {
		return nil, nil, err
	}

	bin, err := Gen(prog, sc)
	if err != nil {
		return nil, nil, err
	}

	return bin, sc, nil
}
