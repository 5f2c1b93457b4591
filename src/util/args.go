package util

import (
	"github.com/spf13/cobra"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Options holds the settings the threadfsm CLI runs with.
type Options struct {
	Src       string // Path to the JSON-described AST program, or "" for stdin.
	Out       string // Path to the FSM-dump output file, or "" for stdout.
	Threads   int    // Batch parallelism across independent thread targets.
	Verbose   bool   // Print per-thread synthesis progress to stderr.
	LogFormat string // logrus formatter: "text" or "json".
}

// ---------------------
// ----- Constants -----
// ---------------------

const appVersion = "threadfsm 1.0"
const maxThreads = 64 // Maximum batch-synth goroutines allowed executing in parallel.

// ---------------------
// ----- functions -----
// ---------------------

// BindFlags registers threadfsm's persistent flags on cmd and returns the
// Options value they will populate once cmd.Execute parses arguments.
func BindFlags(cmd *cobra.Command) *Options {
	opt := &Options{}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opt.Src, "source", "s", "", "path to the JSON-described AST program (default: stdin)")
	flags.StringVarP(&opt.Out, "out", "o", "", "path to the FSM dump output file (default: stdout)")
	flags.IntVarP(&opt.Threads, "threads", "t", 1, "batch parallelism across independent thread targets")
	flags.BoolVarP(&opt.Verbose, "verbose", "v", false, "print per-thread synthesis progress to stderr")
	flags.StringVar(&opt.LogFormat, "log-format", "text", "log output format: text or json")
	return opt
}

// Version returns the application version string printed by `threadfsm --version`.
func Version() string { return appVersion }

// MaxThreads is the upper bound accepted for Options.Threads.
func MaxThreads() int { return maxThreads }
