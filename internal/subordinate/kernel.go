package subordinate

import "github.com/tracedbg/tracedbg/internal/sys"

// kernel is the OS primitives layer as the controller consumes it.
// Satisfied by *sys.Runner in production and by a fake in tests, so
// the state machine in fetchState/handleBreakpoint can be verified
// against a synthetic kernel without a real tracee.
type kernel interface {
	Spawn(argv []string) (pid int, resolvedPath string, err error)
	Wait(pid int) (sys.WaitStatus, error)
	SingleStep(pid int) error
	Cont(pid, signal int) error
	GetRegs(pid int) (sys.PtraceRegs, error)
	SetRegs(pid int, regs sys.PtraceRegs) error
	PeekWord(pid int, addr uint64) (uint64, error)
	PokeWord(pid int, addr, word uint64) error
}

// runnerKernel adapts *sys.Runner to kernel; it exists only so the
// production constructor doesn't need to know about the interface.
type runnerKernel struct{ r *sys.Runner }

func (k runnerKernel) Spawn(argv []string) (int, string, error) { return k.r.Spawn(argv) }
func (k runnerKernel) Wait(pid int) (sys.WaitStatus, error)     { return k.r.Wait(pid) }
func (k runnerKernel) SingleStep(pid int) error                 { return k.r.SingleStep(pid) }
func (k runnerKernel) Cont(pid, signal int) error               { return k.r.Cont(pid, signal) }
func (k runnerKernel) GetRegs(pid int) (sys.PtraceRegs, error)  { return k.r.GetRegs(pid) }
func (k runnerKernel) SetRegs(pid int, regs sys.PtraceRegs) error {
	return k.r.SetRegs(pid, regs)
}
func (k runnerKernel) PeekWord(pid int, addr uint64) (uint64, error) {
	return k.r.PeekWord(pid, addr)
}
func (k runnerKernel) PokeWord(pid int, addr, word uint64) error {
	return k.r.PokeWord(pid, addr, word)
}
