// Package subordinate implements the subordinate controller. It owns
// exactly one traced child process and drives the debugger's control
// loop over the OS primitives layer (spawning, single-stepping,
// continuing, installing software breakpoints) and refreshes a cached
// view of the child's registers and near-stack memory on every stop.
package subordinate

import (
	"errors"
	"fmt"
	"os"

	"github.com/tracedbg/tracedbg/arch"
	"github.com/tracedbg/tracedbg/internal/sys"
	"github.com/tracedbg/tracedbg/internal/symtab"
)

// ErrEmptyArgv is the domain error for an empty argument vector passed
// to Spawn.
var ErrEmptyArgv = errors.New("subordinate: argv must not be empty")

// ErrUnknownBreakpointTarget is the domain error for a breakpoint
// target that resolves to neither a known address nor a known symbol.
// It is raised by UI-facing code that resolves a break command's
// argument, not by Breakpoint itself, which only ever takes a resolved
// address.
var ErrUnknownBreakpointTarget = errors.New("subordinate: not a known address or symbol")

const wordSize = arch.WordSize

// stackWindowWords is the fixed-length stack window read at every
// stop: 16 machine words starting at sp.
const stackWindowWords = 16

// Subordinate is the exclusive owner of one traced child process,
// together with the controller's cached view of it.
type Subordinate struct {
	k kernel

	pid int

	registers Registers
	rawRegs   sys.PtraceRegs
	stack     []uint64

	waitStatus sys.WaitStatus

	// breakpoints maps an absolute code address to the original
	// machine word the trap byte replaced there.
	breakpoints map[uint64]uint64

	debugInfo *symtab.DebugInfo
}

// debugInfoLoader resolves an executable path to its symbol table. It
// is a seam so tests can supply a known toy symbol table without a
// real ELF file on disk; production Spawn uses openDebugInfo.
type debugInfoLoader func(resolvedPath string) (*symtab.DebugInfo, error)

func openDebugInfo(resolvedPath string) (*symtab.DebugInfo, error) {
	f, err := os.Open(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("subordinate: spawn: %w", err)
	}
	defer f.Close()

	info, err := symtab.Load(f)
	if err != nil {
		return nil, fmt.Errorf("subordinate: spawn: %w", err)
	}
	return info, nil
}

// Spawn forks argv[0] as a traced child, attaches at its first
// instruction, resolves its symbol table, and returns the ready
// controller. argv[0]'s successful execvp induces the automatic
// initial stop the tracer relies on, so the first fetchState observes
// the child already stopped at entry with no race.
func Spawn(argv []string) (*Subordinate, error) {
	return spawnWith(runnerKernel{sys.NewRunner()}, openDebugInfo, argv)
}

func spawnWith(k kernel, load debugInfoLoader, argv []string) (*Subordinate, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyArgv
	}

	pid, resolvedPath, err := k.Spawn(argv)
	if err != nil {
		return nil, err
	}

	info, err := load(resolvedPath)
	if err != nil {
		return nil, err
	}

	s := &Subordinate{
		k:           k,
		pid:         pid,
		waitStatus:  sys.Unknown{Pid: pid},
		breakpoints: make(map[uint64]uint64),
		debugInfo:   info,
	}
	if err := s.fetchState(); err != nil {
		return nil, err
	}
	return s, nil
}

// Step issues one single-step request and refreshes the cached state.
// Postcondition: exactly one instruction has retired in the child, or
// the child has entered a terminal state.
func (s *Subordinate) Step() error {
	if err := s.k.SingleStep(s.pid); err != nil {
		return err
	}
	return s.fetchState()
}

// Cont resumes the child until its next stop-inducing event.
// Postcondition: the child is stopped or has terminated.
func (s *Subordinate) Cont() error {
	if err := s.k.Cont(s.pid, 0); err != nil {
		return err
	}
	return s.fetchState()
}

// Peek reads one machine word from the child's address space at addr.
func (s *Subordinate) Peek(addr uint64) (uint64, error) {
	return s.k.PeekWord(s.pid, addr)
}

// Poke writes one machine word into the child's address space at addr.
func (s *Subordinate) Poke(addr, word uint64) error {
	return s.k.PokeWord(s.pid, addr, word)
}

// ReadBytes reads ceil(size/W) words starting at from via Peek,
// appending each word's bytes in native order and truncating the
// result to exactly size bytes. This is the canonical way to extract
// sub-word regions of child memory.
func (s *Subordinate) ReadBytes(from uint64, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	n := (size + wordSize - 1) / wordSize
	out := make([]byte, 0, n*wordSize)
	for i := 0; i < n; i++ {
		word, err := s.Peek(from + uint64(i*wordSize))
		if err != nil {
			return nil, err
		}
		out = appendLittleEndian(out, word)
	}
	return out[:size], nil
}

func appendLittleEndian(buf []byte, word uint64) []byte {
	for i := 0; i < wordSize; i++ {
		buf = append(buf, byte(word>>(8*uint(i))))
	}
	return buf
}

// ReadWords reads count consecutive machine words starting at from.
func (s *Subordinate) ReadWords(from uint64, count int) ([]uint64, error) {
	words := make([]uint64, count)
	for i := range words {
		word, err := s.Peek(from + uint64(i*wordSize))
		if err != nil {
			return nil, err
		}
		words[i] = word
	}
	return words, nil
}

// Breakpoint idempotently installs a software breakpoint at addr. If
// addr already has one installed, it returns success with no effect.
// Otherwise it reads the word at addr, writes it back with its low
// byte replaced by the trap opcode, and stores the original word so
// handleBreakpoint can restore it on hit.
func (s *Subordinate) Breakpoint(addr uint64) error {
	if _, ok := s.breakpoints[addr]; ok {
		return nil
	}
	word, err := s.Peek(addr)
	if err != nil {
		return err
	}
	if err := s.Poke(addr, arch.Trap(word)); err != nil {
		return err
	}
	s.breakpoints[addr] = word
	return nil
}

// Instructions reads sym.HighPC bytes starting at sym.LowPC, for
// feeding to an external disassembler. HighPC is interpreted as a byte
// length (see internal/symtab).
func (s *Subordinate) Instructions(sym *symtab.Symbol) ([]byte, error) {
	return s.ReadBytes(sym.LowPC, int(sym.HighPC))
}

// Pid returns the traced child's process id. It is not part of the
// core's invariant surface but is useful for diagnostics, such as
// resolving /proc/<pid>/exe for a startup banner.
func (s *Subordinate) Pid() int { return s.pid }

// Registers returns the register snapshot as of the last stop.
func (s *Subordinate) Registers() Registers { return s.registers }

// Stack returns the 16-word window read at [sp, sp+16W) at the last
// stop.
func (s *Subordinate) Stack() []uint64 { return s.stack }

// DebugInfo returns the symbol table resolved at spawn.
func (s *Subordinate) DebugInfo() *symtab.DebugInfo { return s.debugInfo }

// ExitStatus returns the exit code iff the last observed wait status
// was Exited.
func (s *Subordinate) ExitStatus() (code int, ok bool) {
	if e, isExited := s.waitStatus.(sys.Exited); isExited {
		return e.Code, true
	}
	return 0, false
}

// fetchState is the inner state machine every kernel-facing control
// operation runs through afterward: wait for the child's status to
// change, and if it stopped, refresh the cached registers and stack
// window and run breakpoint hit detection. Any other status (terminal,
// or Continued/Unknown) leaves the prior snapshot intact.
func (s *Subordinate) fetchState() error {
	status, err := s.k.Wait(s.pid)
	if err != nil {
		return err
	}
	s.waitStatus = status

	if _, stopped := status.(sys.Stopped); !stopped {
		return nil
	}

	regs, err := s.k.GetRegs(s.pid)
	if err != nil {
		return err
	}
	s.rawRegs = regs
	s.registers = fromRaw(regs)

	stack, err := s.ReadWords(s.registers.SP, stackWindowWords)
	if err != nil {
		return err
	}
	s.stack = stack

	return s.handleBreakpoint()
}

// handleBreakpoint inspects the fresh stop for a breakpoint hit. After
// the child executes the trap instruction, its program counter is one
// past the trap byte; if ip-1 is a known breakpoint, the entry is
// removed, ip is rewound to the breakpoint address, the original
// instruction byte is restored in the child, and the corrected
// register file is pushed back so the next step/cont re-executes the
// now-restored instruction. Breakpoints are therefore one-shot. A stop
// at an address with no matching entry is left alone (it may be an
// ordinary signal).
func (s *Subordinate) handleBreakpoint() error {
	addr := s.registers.IP - 1
	orig, ok := s.breakpoints[addr]
	if !ok {
		return nil
	}
	delete(s.breakpoints, addr)

	s.registers.IP = addr
	s.rawRegs = withIP(s.rawRegs, addr)

	if err := s.Poke(addr, orig); err != nil {
		return err
	}
	return s.k.SetRegs(s.pid, s.rawRegs)
}
