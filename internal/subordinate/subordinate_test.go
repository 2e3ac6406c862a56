package subordinate

import (
	"testing"

	"github.com/tracedbg/tracedbg/internal/sys"
	"github.com/tracedbg/tracedbg/internal/symtab"
)

// toyDebugInfo describes a toy program's single function: a main at
// 0x4010a0, 0x24 bytes long.
func toyDebugInfo(string) (*symtab.DebugInfo, error) {
	return symtab.New(map[string]symtab.Symbol{
		"main": {Name: "main", LowPC: toyMain, HighPC: 0x24},
	}), nil
}

// fakeKernel is a synthetic OS layer standing in for a tiny toy
// executable whose main is a single instruction at 0x4010a0 (a ret,
// encoded here as the single byte 0x11 so it's trivially
// distinguishable from the 0xCC trap byte), followed by termination.
// Memory is a flat map of word-aligned addresses to words; stepping
// past main's one instruction exits the process.
type fakeKernel struct {
	pid int

	mem  map[uint64]uint64
	regs sys.PtraceRegs

	exited   bool
	exitCode int
}

const (
	toyMain = 0x4010a0
	toySP   = 0x7ffff000
)

func newFakeKernel() *fakeKernel {
	f := &fakeKernel{
		pid: 4242,
		mem: map[uint64]uint64{
			toyMain: 0x11, // one-byte "instruction", not 0xCC
		},
	}
	f.regs.Rip = toyMain
	f.regs.Rsp = toySP
	return f
}

func (f *fakeKernel) Spawn(argv []string) (int, string, error) {
	return f.pid, argv[0], nil
}

func (f *fakeKernel) Wait(pid int) (sys.WaitStatus, error) {
	if f.exited {
		return sys.Exited{Pid: f.pid, Code: f.exitCode}, nil
	}
	return sys.Stopped{Pid: f.pid, Signal: 5}, nil
}

func (f *fakeKernel) SingleStep(pid int) error {
	if f.mem[f.regs.Rip]&0xFF == 0xCC {
		f.regs.Rip++ // trap fires: ip lands one past the trap byte
		return nil
	}
	// Any non-trap instruction in this toy retires and exits.
	f.exited = true
	f.exitCode = 0
	return nil
}

func (f *fakeKernel) Cont(pid, signal int) error {
	// Run until a breakpoint (0xCC) is hit or we fall off the end.
	if f.mem[f.regs.Rip]&0xFF == 0xCC {
		f.regs.Rip++
		return nil
	}
	f.exited = true
	f.exitCode = 0
	return nil
}

func (f *fakeKernel) GetRegs(pid int) (sys.PtraceRegs, error) { return f.regs, nil }

func (f *fakeKernel) SetRegs(pid int, regs sys.PtraceRegs) error {
	f.regs = regs
	return nil
}

func (f *fakeKernel) PeekWord(pid int, addr uint64) (uint64, error) {
	return f.mem[addr], nil
}

func (f *fakeKernel) PokeWord(pid int, addr, word uint64) error {
	f.mem[addr] = word
	return nil
}

func spawnFake(t *testing.T) (*Subordinate, *fakeKernel) {
	t.Helper()
	fk := newFakeKernel()
	s, err := spawnWith(fk, toyDebugInfo, []string{"/toy"})
	if err != nil {
		t.Fatalf("spawnWith: %v", err)
	}
	return s, fk
}

func TestSpawnEmptyArgv(t *testing.T) {
	if _, err := spawnWith(newFakeKernel(), toyDebugInfo, nil); err != ErrEmptyArgv {
		t.Fatalf("got %v, want ErrEmptyArgv", err)
	}
}

func TestSpawnObservesInitialStop(t *testing.T) {
	s, _ := spawnFake(t)
	if s.registers.IP != toyMain {
		t.Fatalf("ip = %#x, want %#x", s.registers.IP, toyMain)
	}
	if len(s.stack) != 16 {
		t.Fatalf("stack has %d entries, want 16", len(s.stack))
	}
	if _, ok := s.ExitStatus(); ok {
		t.Fatalf("ExitStatus() ok on a freshly-stopped child")
	}
}

func TestContRunsToExit(t *testing.T) {
	s, _ := spawnFake(t)
	if err := s.Cont(); err != nil {
		t.Fatalf("Cont: %v", err)
	}
	code, ok := s.ExitStatus()
	if !ok || code != 0 {
		t.Fatalf("ExitStatus() = (%d, %v), want (0, true)", code, ok)
	}
}

func TestBreakpointIdempotent(t *testing.T) {
	s, fk := spawnFake(t)
	if err := s.Breakpoint(toyMain); err != nil {
		t.Fatalf("Breakpoint: %v", err)
	}
	afterFirst := fk.mem[toyMain]
	if afterFirst&0xFF != 0xCC {
		t.Fatalf("trap byte not installed: mem = %#x", afterFirst)
	}
	if err := s.Breakpoint(toyMain); err != nil {
		t.Fatalf("Breakpoint (second call): %v", err)
	}
	if fk.mem[toyMain] != afterFirst {
		t.Fatalf("memory changed on idempotent re-breakpoint: %#x != %#x", fk.mem[toyMain], afterFirst)
	}
	if len(s.breakpoints) != 1 {
		t.Fatalf("breakpoints has %d entries, want 1", len(s.breakpoints))
	}
}

func TestBreakpointSaveRestoreLaw(t *testing.T) {
	s, fk := spawnFake(t)
	origWord := fk.mem[toyMain]

	if err := s.Breakpoint(toyMain); err != nil {
		t.Fatalf("Breakpoint: %v", err)
	}
	if err := s.Cont(); err != nil {
		t.Fatalf("Cont: %v", err)
	}

	if s.registers.IP != toyMain {
		t.Fatalf("ip = %#x after breakpoint stop, want %#x", s.registers.IP, toyMain)
	}
	if _, stillSet := s.breakpoints[toyMain]; stillSet {
		t.Fatalf("breakpoints still contains %#x after it fired", toyMain)
	}
	if fk.mem[toyMain] != origWord {
		t.Fatalf("mem[%#x] = %#x after restore, want original %#x", toyMain, fk.mem[toyMain], origWord)
	}

	// A subsequent Cont runs past the now-restored instruction to
	// completion, since nothing traps anymore.
	if err := s.Cont(); err != nil {
		t.Fatalf("second Cont: %v", err)
	}
	if _, ok := s.ExitStatus(); !ok {
		t.Fatalf("ExitStatus() not ok after running past a one-shot breakpoint")
	}
}

func TestBreakpointBySymbol(t *testing.T) {
	s, _ := spawnFake(t)
	sym, ok := s.DebugInfo().Symbols()["main"]
	if !ok {
		t.Fatalf("symbol table has no entry for \"main\"")
	}
	if err := s.Breakpoint(sym.LowPC); err != nil {
		t.Fatalf("Breakpoint: %v", err)
	}
	if err := s.Cont(); err != nil {
		t.Fatalf("Cont: %v", err)
	}
	if s.registers.IP != toyMain {
		t.Fatalf("ip = %#x, want %#x", s.registers.IP, toyMain)
	}
}

func TestReadBytesZeroSize(t *testing.T) {
	s, _ := spawnFake(t)
	got, err := s.ReadBytes(toyMain, 0)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0", len(got))
	}
}

func TestReadBytesTruncatesFinalWord(t *testing.T) {
	s, fk := spawnFake(t)
	fk.mem[toyMain] = 0x0807060504030201
	fk.mem[toyMain+8] = 0x0000000000000009

	got, err := s.ReadBytes(toyMain, 9)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestReadWordsCount(t *testing.T) {
	s, fk := spawnFake(t)
	for i := 0; i < 4; i++ {
		fk.mem[toySP+uint64(i*8)] = uint64(i + 1)
	}
	words, err := s.ReadWords(toySP, 4)
	if err != nil {
		t.Fatalf("ReadWords: %v", err)
	}
	for i, w := range words {
		if w != uint64(i+1) {
			t.Fatalf("words[%d] = %d, want %d", i, w, i+1)
		}
	}
}

func TestStepCountIncreasesIP(t *testing.T) {
	s, fk := spawnFake(t)
	fk.mem[toyMain] = 0xCC // pretend main is itself a trap for this test
	s.registers.IP = toyMain
	s.rawRegs.Rip = toyMain

	if err := s.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s.registers.IP <= toyMain {
		t.Fatalf("ip did not advance: %#x", s.registers.IP)
	}
}
