package sys

import "runtime"

// Runner pins every kernel-facing tracing call to a single, dedicated
// OS thread. Linux's ptrace affinitises a traced child to whichever
// thread issued PTRACE_TRACEME on its behalf: every later ptrace
// request for that child must come from that same thread or it fails
// with ESRCH. Go's scheduler otherwise feels free to move a goroutine
// between OS threads between calls, so Runner routes all tracing
// closures through a goroutine that has called runtime.LockOSThread
// and never gives it back: an unbuffered request/response channel
// pair read by that one locked goroutine, so the error returned on ec
// always belongs to the closure most recently sent on fc.
type Runner struct {
	fc chan func() error
	ec chan error
}

// NewRunner starts the dedicated tracer thread and returns a Runner
// bound to it. The goroutine runs for the lifetime of the process;
// there is no Close because the controller never detaches from its
// child.
func NewRunner() *Runner {
	r := &Runner{
		fc: make(chan func() error),
		ec: make(chan error),
	}
	go r.loop()
	return r
}

func (r *Runner) loop() {
	runtime.LockOSThread()
	for f := range r.fc {
		r.ec <- f()
	}
}

func (r *Runner) run(f func() error) error {
	r.fc <- f
	return <-r.ec
}

// Spawn runs Spawn on the tracer thread, since the forking thread
// becomes the tracee's tracer.
func (r *Runner) Spawn(argv []string) (pid int, resolvedPath string, err error) {
	err = r.run(func() error {
		var err1 error
		pid, resolvedPath, err1 = Spawn(argv)
		return err1
	})
	return pid, resolvedPath, err
}

// Wait runs Wait on the tracer thread.
func (r *Runner) Wait(pid int) (status WaitStatus, err error) {
	err = r.run(func() error {
		var err1 error
		status, err1 = Wait(pid)
		return err1
	})
	return status, err
}

// SingleStep runs SingleStep on the tracer thread.
func (r *Runner) SingleStep(pid int) error {
	return r.run(func() error { return SingleStep(pid) })
}

// Cont runs Cont on the tracer thread.
func (r *Runner) Cont(pid, signal int) error {
	return r.run(func() error { return Cont(pid, signal) })
}

// GetRegs runs GetRegs on the tracer thread.
func (r *Runner) GetRegs(pid int) (regs PtraceRegs, err error) {
	err = r.run(func() error {
		var err1 error
		regs, err1 = GetRegs(pid)
		return err1
	})
	return regs, err
}

// SetRegs runs SetRegs on the tracer thread.
func (r *Runner) SetRegs(pid int, regs PtraceRegs) error {
	return r.run(func() error { return SetRegs(pid, regs) })
}

// PeekWord runs PeekWord on the tracer thread.
func (r *Runner) PeekWord(pid int, addr uint64) (word uint64, err error) {
	err = r.run(func() error {
		var err1 error
		word, err1 = PeekWord(pid, addr)
		return err1
	})
	return word, err
}

// PokeWord runs PokeWord on the tracer thread.
func (r *Runner) PokeWord(pid int, addr, word uint64) error {
	return r.run(func() error { return PokeWord(pid, addr, word) })
}
