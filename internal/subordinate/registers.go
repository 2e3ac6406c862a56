package subordinate

import "github.com/tracedbg/tracedbg/internal/sys"

// Registers is the register snapshot exposed to the UI: the program
// counter, stack and frame pointers, and the general-purpose set used
// for ABI/argument observation. Field names are the short UI-facing
// convention (ip/sp/bp/ax/bx/cx/dx/di/si) rather than the kernel's
// architecture-specific names.
type Registers struct {
	IP, SP, BP uint64
	AX, BX, CX, DX uint64
	DI, SI uint64
}

func fromRaw(r sys.PtraceRegs) Registers {
	return Registers{
		IP: r.Rip, SP: r.Rsp, BP: r.Rbp,
		AX: r.Rax, BX: r.Rbx, CX: r.Rcx, DX: r.Rdx,
		DI: r.Rdi, SI: r.Rsi,
	}
}

// withIP returns raw with its program counter replaced by ip, leaving
// every other field (flags, segment registers, ...) untouched. Used by
// handleBreakpoint to rewind the child's PC without otherwise
// disturbing its register file.
func withIP(raw sys.PtraceRegs, ip uint64) sys.PtraceRegs {
	raw.Rip = ip
	return raw
}
