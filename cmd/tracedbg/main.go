// Command tracedbg is a minimal interactive front end for the
// subordinate controller: it spawns a traced executable and drives it
// through a small REPL exercising step, cont, breakpoints, register
// and stack inspection, and disassembly.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tracedbg/tracedbg/arch"
	"github.com/tracedbg/tracedbg/internal/procfs"
	"github.com/tracedbg/tracedbg/internal/subordinate"
)

var log = logrus.New()

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "tracedbg <program> [args...]",
	Short: "A source-level-aware native debugger core, driven interactively.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
		return run(args)
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every control operation at debug level")
}

func run(argv []string) error {
	log.WithField("argv", argv).Debug("spawning subordinate")
	sub, err := subordinate.Spawn(argv)
	if err != nil {
		return fmt.Errorf("tracedbg: %w", err)
	}

	if exe, err := procfs.Exe(sub.Pid()); err == nil {
		fmt.Printf("tracedbg: tracing pid %d (%s, %s)\n", sub.Pid(), exe, arch.AMD64.Name)
	} else {
		log.WithError(err).Debug("could not resolve /proc/<pid>/exe")
	}

	return newREPL(sub, log).run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
