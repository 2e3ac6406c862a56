package sys

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSpawnEmptyArgv(t *testing.T) {
	_, _, err := Spawn(nil)
	if !errors.Is(err, ErrEmptyArgv) {
		t.Fatalf("Spawn(nil) error = %v, want ErrEmptyArgv", err)
	}
	_, _, err = Spawn([]string{})
	if !errors.Is(err, ErrEmptyArgv) {
		t.Fatalf("Spawn([]) error = %v, want ErrEmptyArgv", err)
	}
}

func TestSpawnUnknownCommand(t *testing.T) {
	_, _, err := Spawn([]string{"tracedbg-definitely-not-a-real-binary-xyz"})
	if err == nil {
		t.Fatalf("Spawn of a nonexistent command succeeded")
	}
}

func TestErrnoError(t *testing.T) {
	e := &Errno{Op: "ptrace_peekdata", Err: unix.ESRCH}
	got := e.Error()
	if got == "" {
		t.Fatalf("Errno.Error() returned empty string")
	}
	if !errors.Is(e, unix.ESRCH) {
		t.Fatalf("errors.Is(e, unix.ESRCH) = false, want true")
	}
}

func TestWaitStatusVariants(t *testing.T) {
	var variants = []WaitStatus{
		Stopped{Pid: 1, Signal: unix.SIGTRAP},
		Exited{Pid: 1, Code: 0},
		Continued{Pid: 1},
		Signaled{Pid: 1, TermSig: unix.SIGKILL},
		Unknown{Pid: 1, Raw: 0},
	}
	for _, v := range variants {
		// Every variant must satisfy WaitStatus and be distinguishable
		// via a type switch, which is how fetchState branches on it.
		switch v.(type) {
		case Stopped, Exited, Continued, Signaled, Unknown:
		default:
			t.Fatalf("unexpected WaitStatus type %T", v)
		}
	}
}
