// Command threadfsm lowers one or more thread entry points from a
// JSON-described AST program into explicit finite-state machines and
// dumps their transition tables. It has no lexer or parser of its own;
// program.Decode is the only thing standing between the CLI and
// compiler.ThreadGenerator.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"threadfsm/src/compiler"
	"threadfsm/src/program"
	"threadfsm/src/rtl"
	"threadfsm/src/util"
)

var log = logrus.WithField("component", "cli")

// newGenerator builds a fresh module and thread generator for one entry
// point, with every other function in the program registered for
// inlining. Each entry gets its own generator so batch workers never
// share compiler state (the lowering visitor is strictly sequential per
// thread) and register names stay reproducible per entry regardless of
// batch scheduling.
func newGenerator(prog *program.Program, entry string) (*compiler.ThreadGenerator, error) {
	module := rtl.NewModule(entry)
	clk := module.Reg("clk", 1, 0)
	rst := module.Reg("rst", 1, 0)
	gen := compiler.NewThreadGenerator(module, clk, rst)
	for _, def := range prog.Functions {
		if def.Name == entry {
			continue // the entry is inlined directly by Create
		}
		if err := gen.AddFunction(def); err != nil {
			return nil, fmt.Errorf("registering %q: %w", def.Name, err)
		}
	}
	return gen, nil
}

// synthOne lowers a single entry point into its own FSM and flushes its
// rendered transition table to the output writer. When withLogs is set
// the bind-record and loop-descriptor logs follow the table.
func synthOne(prog *program.Program, entry string, withLogs bool) error {
	def, ok := prog.Functions[entry]
	if !ok {
		return fmt.Errorf("entry function %q not found in program", entry)
	}
	gen, err := newGenerator(prog, entry)
	if err != nil {
		return err
	}
	fsm, err := gen.Create(entry, def, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("synthesizing %q: %w", entry, err)
	}

	w := util.NewWriter()
	w.Write("// %s %s\n", util.NewLabel(util.LabelThread), entry)
	fsm.Dump(&w)
	if withLogs {
		dumpLogs(&w, gen)
	}
	w.Close()
	return nil
}

// dumpLogs renders the generator's bind-record and loop-descriptor logs.
func dumpLogs(w *util.Writer, gen *compiler.ThreadGenerator) {
	w.WriteString("binds {\n")
	for _, b := range gen.Binds() {
		name := b.Name
		if name == "" {
			name = "_"
		}
		cond := ""
		if b.Cond != nil {
			cond = b.Cond.String()
		}
		w.State(b.State)
		w.Bind(name, b.Value.String(), cond)
	}
	w.WriteString("}\n")

	w.WriteString("loops {\n")
	for _, lp := range gen.Loops() {
		if lp.Iter == nil {
			w.Write("\t%d..%d\n", lp.Begin, lp.End)
			continue
		}
		w.Write("\t%d..%d iter %s step %s\n", lp.Begin, lp.End, lp.Iter.Name, lp.Step.String())
	}
	w.WriteString("}\n")
}

// runSynth drives the batch path: every entry is compiled into its own
// module, independently and in parallel up to opt.Threads at a time.
func runSynth(opt util.Options, entries []string, withLogs bool) error {
	src, err := util.ReadSource(opt)
	if err != nil {
		return fmt.Errorf("could not read source: %w", err)
	}
	prog, err := program.Decode([]byte(src))
	if err != nil {
		return fmt.Errorf("could not decode program: %w", err)
	}
	if len(entries) == 0 {
		entries = []string{prog.Entry}
	}

	threads := opt.Threads
	if threads < 1 {
		threads = 1
	}
	if threads > util.MaxThreads() {
		threads = util.MaxThreads()
	}

	pe := util.NewPerror(len(entries))
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup

	for _, entry := range entries {
		wg.Add(1)
		sem <- struct{}{}
		go func(entry string) {
			defer wg.Done()
			defer func() { <-sem }()
			if opt.Verbose {
				log.WithField("thread", entry).Debug("synthesizing")
			}
			if err := synthOne(prog, entry, withLogs); err != nil {
				log.WithField("thread", entry).Warn(err)
				pe.Append(entry, err)
			}
		}(entry)
	}
	wg.Wait()
	pe.Stop()

	if pe.Len() > 0 {
		for te := range pe.Errors() {
			fmt.Fprintln(os.Stderr, te.Error())
		}
		return fmt.Errorf("%d of %d thread targets failed to synthesize: %s",
			pe.Len(), len(entries), strings.Join(pe.Threads(), ", "))
	}
	return nil
}

// runCommand is the shared body of the synth and dump subcommands.
func runCommand(opt *util.Options, entries string, withLogs bool) error {
	if opt.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if opt.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var list []string
	if entries != "" {
		list = strings.Split(entries, ",")
	}

	var f *os.File
	if opt.Out != "" {
		var err error
		f, err = os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening %q: %w", opt.Out, err)
		}
		defer f.Close()
	}

	util.ListenLabel()
	defer util.CloseLabel()

	var wg sync.WaitGroup
	util.ListenWrite(*opt, f, &wg)
	defer util.Close()

	err := runSynth(*opt, list, withLogs)
	wg.Wait()
	return err
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threadfsm",
		Short:   "Lower thread bodies into explicit finite-state machines",
		Version: util.Version(),
	}
	opt := util.BindFlags(cmd)
	var entries string

	synthCmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize one or more thread entry points into FSMs and dump their transition tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(opt, entries, false)
		},
	}
	synthCmd.Flags().StringVar(&entries, "entries", "", "comma-separated thread entry points to synthesize (default: the program's declared entry)")
	cmd.AddCommand(synthCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Synthesize and dump FSMs together with their bind-record and loop-descriptor logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(opt, entries, true)
		},
	}
	dumpCmd.Flags().StringVar(&entries, "entries", "", "comma-separated thread entry points to dump (default: the program's declared entry)")
	cmd.AddCommand(dumpCmd)

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
