// Package procfs is a narrow /proc reader used only for diagnostics:
// it does not participate in tracing and adds no control surface of
// its own. Multi-process introspection beyond this is out of scope.
package procfs

import (
	"fmt"
	"os"
)

// Exe resolves pid's running executable via its /proc/<pid>/exe
// symlink, the same resolution arctir-proctor's process tree walker
// uses to label a process with the binary behind it.
func Exe(pid int) (string, error) {
	path, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", fmt.Errorf("procfs: exe: %w", err)
	}
	return path, nil
}
