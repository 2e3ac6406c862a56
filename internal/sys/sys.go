// Package sys is a narrow, checked wrapper around the host's process
// tracing facility. It mirrors the surface of ptrace(2): spawn a traced
// child, wait for its status to change, single-step or continue it,
// and peek/poke its memory and register file one machine word at a
// time.
//
// Every failure the kernel reports comes back as an *Errno wrapping
// the errno it set, so callers above this layer never see a raw
// syscall error. Spawn's empty-argv and PATH-lookup failures are
// plain domain errors, not *Errno.
package sys

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Errno is a failure reported by the host OS layer, carried verbatim
// so callers can render it with the platform's error-to-string
// function (unix.Errno.Error already does this via strerror).
type Errno struct {
	Op  string
	Err unix.Errno
}

func (e *Errno) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Err.Error()) }
func (e *Errno) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return &Errno{Op: op, Err: errno}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrEmptyArgv is the domain error for an empty argument vector passed
// to Spawn.
var ErrEmptyArgv = errors.New("sys: argv must not be empty")

// PtraceRegs is the raw register file as reported by the kernel. It is
// aliased here so callers of Runner need not import golang.org/x/sys/unix
// directly.
type PtraceRegs = unix.PtraceRegs

// WaitStatus is the typed result of observing a child state change.
// Go's syscall layer already reports errno out-of-band (unlike the
// classic C ptrace ABI), so none of these need the zero-errno-then-
// check dance. The one place a C caller would need it, peeking a word
// that may legitimately be -1, is PeekWord below, which sidesteps it by
// receiving the word through an out pointer.
type WaitStatus interface {
	isWaitStatus()
}

// Stopped reports the child stopped, typically on a signal (including
// the SIGTRAP used by software breakpoints).
type Stopped struct {
	Pid    int
	Signal unix.Signal
}

// Exited reports the child terminated normally.
type Exited struct {
	Pid  int
	Code int
}

// Continued reports the child was resumed by SIGCONT.
type Continued struct {
	Pid int
}

// Signaled reports the child was killed by a signal.
type Signaled struct {
	Pid     int
	TermSig unix.Signal
}

// Unknown reports a status word this layer doesn't decode further.
type Unknown struct {
	Pid int
	Raw int
}

func (Stopped) isWaitStatus()   {}
func (Exited) isWaitStatus()    {}
func (Continued) isWaitStatus() {}
func (Signaled) isWaitStatus()  {}
func (Unknown) isWaitStatus()   {}

// Spawn forks the calling thread, marks the child traceable, and
// executes argv[0] (resolved against PATH, per execvp) with argv as
// its arguments. It returns the child's pid and the resolved path to
// the binary that was exec'd.
//
// Go forbids issuing a bare fork(2) from ordinary Go code: the forked
// child shares the parent's heap, goroutine scheduler and signal
// state until it calls exec, none of which survive a raw fork safely.
// Fork/exec coordination with the runtime lives in the standard
// syscall package, not in golang.org/x/sys/unix, so this goes through
// os.StartProcess with SysProcAttr.Ptrace set (os.StartProcess calls
// syscall.StartProcess, which calls syscall.forkExec under the hood),
// combining fork, the PTRACE_TRACEME handshake, and exec into one safe
// call.
func Spawn(argv []string) (pid int, resolvedPath string, err error) {
	if len(argv) == 0 {
		return 0, "", ErrEmptyArgv
	}
	resolvedPath, err = exec.LookPath(argv[0])
	if err != nil {
		return 0, "", fmt.Errorf("sys: execvp: %w", err)
	}
	proc, err := os.StartProcess(resolvedPath, argv, &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{Ptrace: true},
	})
	if err != nil {
		return 0, "", wrap("fork", err)
	}
	return proc.Pid, resolvedPath, nil
}

// Wait blocks until pid's status changes and decodes the raw status
// word into a WaitStatus.
func Wait(pid int) (WaitStatus, error) {
	var raw unix.WaitStatus
	wpid, err := unix.Wait4(pid, &raw, 0, nil)
	if err != nil {
		return nil, wrap("wait4", err)
	}
	switch {
	case raw.Stopped():
		return Stopped{Pid: wpid, Signal: raw.StopSignal()}, nil
	case raw.Exited():
		return Exited{Pid: wpid, Code: raw.ExitStatus()}, nil
	case raw.Continued():
		return Continued{Pid: wpid}, nil
	case raw.Signaled():
		return Signaled{Pid: wpid, TermSig: raw.Signal()}, nil
	default:
		return Unknown{Pid: wpid, Raw: int(raw)}, nil
	}
}

// SingleStep requests that pid execute exactly one instruction.
func SingleStep(pid int) error {
	return wrap("ptrace_singlestep", unix.PtraceSingleStep(pid))
}

// Cont resumes pid until its next stop-inducing event, optionally
// delivering signal (0 for none).
func Cont(pid, signal int) error {
	return wrap("ptrace_cont", unix.PtraceCont(pid, signal))
}

// GetRegs snapshots pid's general-purpose register file.
func GetRegs(pid int) (unix.PtraceRegs, error) {
	var regs unix.PtraceRegs
	err := unix.PtraceGetRegs(pid, &regs)
	return regs, wrap("ptrace_getregs", err)
}

// SetRegs replaces pid's register file.
func SetRegs(pid int, regs unix.PtraceRegs) error {
	return wrap("ptrace_setregs", unix.PtraceSetRegs(pid, &regs))
}

// PeekWord reads one machine word from pid's address space at addr.
//
// This goes directly through unix.Syscall6 rather than
// unix.PtracePeekData, which copies into a byte slice. At the system
// call level PTRACE_PEEKDATA stores the peeked word through its data
// pointer and uses the return value only to report failure, so a
// peeked word of all-ones is never mistaken for -1 (the ambiguity that
// makes libc's ptrace(2) wrapper, which returns the word itself,
// require a zero-errno-then-test discipline).
func PeekWord(pid int, addr uint64) (uint64, error) {
	var word uint64
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_PEEKDATA, uintptr(pid), uintptr(addr), uintptr(unsafe.Pointer(&word)), 0, 0)
	if errno != 0 {
		return 0, &Errno{Op: "ptrace_peekdata", Err: errno}
	}
	return word, nil
}

// PokeWord writes one machine word into pid's address space at addr.
func PokeWord(pid int, addr, word uint64) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_POKEDATA, uintptr(pid), uintptr(addr), uintptr(word), 0, 0)
	if errno != 0 {
		return &Errno{Op: "ptrace_pokedata", Err: errno}
	}
	return nil
}
