// Package symtab is the debug-info reader: it opens a traced
// executable and produces a flat name-to-Symbol mapping sufficient to
// set breakpoints by function name.
//
// Full DWARF parsing is out of scope; this reader uses the standard
// library's debug/elf to read the ELF symbol table directly (see
// DESIGN.md for why no third-party parser is used instead).
package symtab

import (
	"debug/elf"
	"fmt"
	"io"
)

// Symbol is a named code region extracted from the executable's symbol
// table. HighPC is a byte length, not an absolute end address: callers
// read [LowPC, LowPC+HighPC) as a size-bounded region, and an ELF
// symbol's st_size field is exactly that.
type Symbol struct {
	Name   string
	LowPC  uint64
	HighPC uint64
}

// DebugInfo is the read-only symbol table resolved from an executable
// at spawn time.
type DebugInfo struct {
	byName map[string]Symbol
}

// Load opens the executable behind r and builds its DebugInfo. It
// tries the static symbol table first and falls back to the dynamic
// symbol table for stripped or dynamically linked binaries.
func Load(r io.ReaderAt) (*DebugInfo, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("symtab: %w", err)
	}
	defer f.Close()

	elfSyms, err := f.Symbols()
	if err != nil {
		elfSyms, err = f.DynamicSymbols()
		if err != nil {
			return nil, fmt.Errorf("symtab: no symbol table: %w", err)
		}
	}

	byName := make(map[string]Symbol, len(elfSyms))
	for _, s := range elfSyms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Name == "" {
			continue
		}
		byName[s.Name] = Symbol{Name: s.Name, LowPC: s.Value, HighPC: s.Size}
	}
	return &DebugInfo{byName: byName}, nil
}

// New builds a DebugInfo directly from a name-to-Symbol mapping,
// bypassing Load. It exists for callers that already have a symbol
// table from elsewhere (most notably tests driving the subordinate
// controller against a synthetic kernel and a known toy symbol table),
// where there is no real executable file to open.
func New(syms map[string]Symbol) *DebugInfo {
	byName := make(map[string]Symbol, len(syms))
	for name, sym := range syms {
		byName[name] = sym
	}
	return &DebugInfo{byName: byName}
}

// Symbols returns the name-to-Symbol mapping used for breakpoint
// resolution by name.
func (d *DebugInfo) Symbols() map[string]Symbol {
	return d.byName
}

// Lookup finds the function whose [LowPC, LowPC+HighPC) range contains
// pc, letting a consumer annotate a raw program counter with its
// enclosing function name.
func (d *DebugInfo) Lookup(pc uint64) (name string, ok bool) {
	for _, sym := range d.byName {
		if pc >= sym.LowPC && pc < sym.LowPC+sym.HighPC {
			return sym.Name, true
		}
	}
	return "", false
}
