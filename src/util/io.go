package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Writer buffers output from threads in a strings.Builder.
// When the Flush or Close method is called the buffer is emptied and sent to
// the assigned output writer through channel c.
type Writer struct {
	sb strings.Builder
	c  chan string
}

// ---------------------
// ----- Constants -----
// ---------------------

var wc chan string     // Write channel used for receiving data from worker threads.
var cc chan error      // Close channel used by main thread to signal to end write operations.
var wg *sync.WaitGroup // used for synchronising when I/O finished writing to output.

// ---------------------
// ----- Functions -----
// ---------------------

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString writes a plain string to the Writer's buffer.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// State writes a one-line state header for an FSM dump.
func (w *Writer) State(n int) {
	w.sb.WriteString(fmt.Sprintf("state %d:\n", n))
}

// Goto writes one transition-table edge.
func (w *Writer) Goto(src, dst int, cond string) {
	if cond == "" {
		w.sb.WriteString(fmt.Sprintf("\tgoto %d -> %d\n", src, dst))
		return
	}
	w.sb.WriteString(fmt.Sprintf("\tgoto %d -> %d if %s\n", src, dst, cond))
}

// Bind writes one register-assignment line bound to a state.
func (w *Writer) Bind(name, value, cond string) {
	if cond == "" {
		w.sb.WriteString(fmt.Sprintf("\t%s <= %s\n", name, value))
		return
	}
	w.sb.WriteString(fmt.Sprintf("\tif (%s) %s <= %s\n", cond, name, value))
}

// Task writes one bare system-task evaluation line (e.g. $display).
func (w *Writer) Task(expr string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\n", expr))
}

// Flush empties the Writer's buffer and sends the buffer data to the
// designated output writer over the Writer's channel.
func (w *Writer) Flush() {
	w.c <- w.sb.String()
	w.sb = strings.Builder{}
}

// Close flushes the Writer's buffer and then detaches the Writer from the
// shared output channel, which stays open for other writers.
func (w *Writer) Close() {
	w.Flush()
	w.c = nil
	wg.Done()
}

// NewWriter returns a new Writer to be used by worker threads to write strings concurrently to the output buffer.
// Must not be called before main thread has called ListenWrite.
func NewWriter() Writer {
	wg.Add(1)
	return Writer{
		sb: strings.Builder{},
		c:  wc,
	}
}

// ReadSource reads the JSON-described AST program from file or stdin.
// If the Options structure holds a string for Src the file will be opened and read.
// Else the function waits for a short period for input on stdin. If no input on stdin is
// provided the function returns an error.
func ReadSource(opt Options) (string, error) {
	if len(opt.Src) > 0 {
		b, err := os.ReadFile(opt.Src)
		if err != nil {
			return "", errors.Wrapf(err, "reading source %q", opt.Src)
		}
		return string(b), nil
	}

	c := make(chan string)
	cerr := make(chan error)

	go func(c chan string, cerr chan error) {
		defer close(c)
		defer close(cerr)
		reader := bufio.NewReader(os.Stdin)
		b, err := io.ReadAll(reader)
		if err == nil {
			c <- string(b)
		} else {
			cerr <- err
		}
	}(c, cerr)

	select {
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("expected input from stdin, got none")
	case err := <-cerr:
		return "", errors.Wrap(err, "reading stdin")
	case s := <-c:
		return s, nil
	}
}

// ListenWrite listens for worker thread outputs. The received data is written to either file
// if File pointer f is not nil or stdout if File pointer f is nil. The function loops until
// a termination signal is sent using the Close function.
func ListenWrite(opt Options, f *os.File, wgg *sync.WaitGroup) {
	wg = wgg
	if opt.Threads > 1 {
		wc = make(chan string, opt.Threads+1)
	} else {
		wc = make(chan string, 1)
	}
	cc = make(chan error, 1) // Make buffered to catch Close before listener is invoked.
	var w *bufio.Writer
	if f != nil {
		w = bufio.NewWriter(f)
	} else {
		w = bufio.NewWriter(os.Stdout)
	}

	go func(wc chan string, cc chan error) {
		defer close(wc)
		defer close(cc)
		for {
			select {
			case s := <-wc:
				if _, err := w.WriteString(s); err != nil {
					fmt.Fprintln(os.Stderr, errors.Wrap(err, "writing output"))
				}
				if err := w.Flush(); err != nil {
					fmt.Fprintln(os.Stderr, errors.Wrap(err, "flushing output"))
				}
			case <-cc:
				return
			}
		}
	}(wc, cc)
}

// Close sends the termination signal to the writer listener.
func Close() {
	cc <- nil
}
