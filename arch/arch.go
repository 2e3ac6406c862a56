// Package arch contains architecture-specific definitions used by the
// subordinate controller and its OS primitives layer.
package arch

// TrapByte is the platform's single-byte software-breakpoint opcode.
// On x86-family targets this is 0xCC (INT 3). Architectures that trap
// differently (e.g. report the faulting address rather than one past
// it) would need their own RewindPC convention; this module only
// targets x86-family hosts.
const TrapByte = 0xCC

// WordSize is the machine word size in bytes: the width peek/poke,
// getregs/setregs, and the stack window all operate in.
const WordSize = 8

// Architecture bundles identifying facts about the target: its name
// and machine word size. The core itself uses the WordSize constant;
// this value is read for diagnostics.
type Architecture struct {
	// Name identifies the architecture for diagnostics.
	Name string
	// WordSize is the machine word width in bytes.
	WordSize int
}

// AMD64 is the only architecture this module supports end to end; it
// is kept as a value (rather than a bare constant) so callers have the
// same shape they would if ARM64 or 386 support were added later.
var AMD64 = Architecture{
	Name:     "amd64",
	WordSize: WordSize,
}

// Trap replaces the low-order byte of a machine word with the trap
// opcode, preserving the rest of the word untouched. This is the exact
// transform spec'd for breakpoint installation: (w &^ 0xFF) | 0xCC.
func Trap(word uint64) uint64 {
	return (word &^ 0xFF) | TrapByte
}
