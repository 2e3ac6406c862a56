package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"golang.org/x/arch/x86/x86asm"

	"github.com/tracedbg/tracedbg/internal/subordinate"
)

// repl implements the interactive command grammar: s/step, c/cont,
// b/break <hex-addr|name>, plus regs, stack, disas, and q/quit.
type repl struct {
	sub *subordinate.Subordinate
	log *logrus.Logger
	rl  *readline.Instance
}

func newREPL(sub *subordinate.Subordinate, log *logrus.Logger) *repl {
	return &repl{sub: sub, log: log}
}

func (r *repl) run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(tracedbg) ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("tracedbg: repl: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tracedbg: repl: %w", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if done := r.dispatch(fields[0], fields[1:]); done {
			return nil
		}
	}
}

func (r *repl) dispatch(cmd string, args []string) (quit bool) {
	r.log.WithFields(logrus.Fields{"cmd": cmd, "args": args}).Debug("dispatch")

	switch cmd {
	case "s", "step":
		r.doStep()
	case "c", "cont":
		r.doCont()
	case "b", "break":
		r.doBreak(args)
	case "regs":
		r.doRegs()
	case "stack":
		r.doStack()
	case "disas":
		r.doDisas(args)
	case "q", "quit":
		return true
	default:
		fmt.Printf("unknown command: %s\n", cmd)
	}
	return false
}

func (r *repl) doStep() {
	if err := r.sub.Step(); err != nil {
		r.log.WithError(err).Error("step failed")
		return
	}
	r.reportStop()
}

func (r *repl) doCont() {
	if err := r.sub.Cont(); err != nil {
		r.log.WithError(err).Error("cont failed")
		return
	}
	r.reportStop()
}

func (r *repl) reportStop() {
	if code, ok := r.sub.ExitStatus(); ok {
		fmt.Printf("child exited with status %d\n", code)
		return
	}
	fmt.Printf("stopped at ip=%#x\n", r.sub.Registers().IP)
}

// doBreak resolves a break target: a leading "0x" (or a string that
// parses as hex) is an address, anything else is looked up in the
// symbol table.
func (r *repl) doBreak(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: break <hex-addr|name>")
		return
	}
	addr, err := r.resolveTarget(args[0])
	if err != nil {
		r.log.WithError(err).Error("break failed")
		return
	}
	if err := r.sub.Breakpoint(addr); err != nil {
		r.log.WithError(err).Error("break failed")
		return
	}
	fmt.Printf("breakpoint set at %#x\n", addr)
}

func (r *repl) resolveTarget(target string) (uint64, error) {
	trimmed := strings.TrimPrefix(target, "0x")
	if addr, err := strconv.ParseUint(trimmed, 16, 64); err == nil {
		return addr, nil
	}
	sym, ok := r.sub.DebugInfo().Symbols()[target]
	if !ok {
		return 0, subordinate.ErrUnknownBreakpointTarget
	}
	return sym.LowPC, nil
}

func (r *repl) doRegs() {
	regs := r.sub.Registers()
	if name, ok := r.sub.DebugInfo().Lookup(regs.IP); ok {
		fmt.Printf("ip  = %#016x (%s)\n", regs.IP, name)
	} else {
		fmt.Printf("ip  = %#016x\n", regs.IP)
	}
	fmt.Printf("sp  = %#016x\n", regs.SP)
	fmt.Printf("bp  = %#016x\n", regs.BP)
	fmt.Printf("ax  = %#016x  bx = %#016x\n", regs.AX, regs.BX)
	fmt.Printf("cx  = %#016x  dx = %#016x\n", regs.CX, regs.DX)
	fmt.Printf("di  = %#016x  si = %#016x\n", regs.DI, regs.SI)
}

func (r *repl) doStack() {
	for i, word := range r.sub.Stack() {
		fmt.Printf("sp+%#02x: %#016x\n", i*8, word)
	}
}

// doDisas feeds a symbol's instruction bytes through x86asm. The
// controller only ever hands back a byte slice and a base address;
// decoding and formatting are entirely this command's concern.
func (r *repl) doDisas(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: disas <name>")
		return
	}
	sym, ok := r.sub.DebugInfo().Symbols()[args[0]]
	if !ok {
		fmt.Printf("no such symbol: %s\n", args[0])
		return
	}
	code, err := r.sub.Instructions(&sym)
	if err != nil {
		r.log.WithError(err).Error("disas failed")
		return
	}

	pc := sym.LowPC
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 64)
		if err != nil {
			fmt.Printf("%#x: <bad instruction: %v>\n", pc, err)
			return
		}
		fmt.Printf("%#x: %s\n", pc, x86asm.GNUSyntax(inst, pc, nil))
		code = code[inst.Len:]
		pc += uint64(inst.Len)
	}
}
