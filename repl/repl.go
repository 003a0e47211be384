// Package repl is a line oriented console for driving anchor transactions by hand.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/anchor/anchor"
)

const (
	scanBatch = 100
)

type LineReader interface {
	ReadLine() (string, error)
}

type readerLines struct {
	scanner *bufio.Scanner
}

// NewLineReader returns a LineReader which reads lines from r.
func NewLineReader(r io.Reader) LineReader {
	return readerLines{bufio.NewScanner(r)}
}

func (rl readerLines) ReadLine() (string, error) {
	if !rl.scanner.Scan() {
		err := rl.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		return "", err
	}
	return rl.scanner.Text(), nil
}

// Session holds the transaction, and the cursor within it, that console commands apply to.
type Session struct {
	Env    *anchor.Env
	Writer io.Writer
	Source string

	txn *anchor.Txn
	cur *anchor.Cursor
}

type command struct {
	name  string
	args  string
	nargs int
	fn    func(ses *Session, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"begin", "write|read", 1, (*Session).begin},
		{"get", "key", 1, (*Session).get},
		{"put", "key value", 2, (*Session).put},
		{"range", "start end", 2, (*Session).openRange},
		{"next", "", 0, (*Session).next},
		{"take", "count", 1, (*Session).take},
		{"done", "", 0, (*Session).done},
		{"commit", "", 0, (*Session).commit},
		{"abort", "", 0, (*Session).abort},
		{"scan", "start end", 2, (*Session).scan},
		{"help", "", 0, (*Session).help},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// Run reads and executes commands until lr is exhausted; anything still open at the end is
// aborted.
func (ses *Session) Run(ctx context.Context, lr LineReader) {
	entry := log.WithField("source", ses.Source)
	entry.Info("console session starting")

	for {
		line, err := lr.ReadLine()
		if err != nil {
			if err != io.EOF {
				entry.WithField("error", err.Error()).Error("console read")
			}
			break
		}

		err = ses.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(ses.Writer, "error: %s\n", err)
		}
	}

	ses.Close(ctx)
	entry.Info("console session done")
}

// Execute runs one console command line.
func (ses *Session) Execute(ctx context.Context, line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		return err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}

	cmd, ok := lookupCommand(strings.ToLower(args[0]))
	if !ok {
		return fmt.Errorf("unknown command: %s; try help", args[0])
	}
	if len(args)-1 != cmd.nargs {
		return fmt.Errorf("usage: %s %s", cmd.name, cmd.args)
	}
	return cmd.fn(ses, ctx, args[1:])
}

// Close ends the session's range and aborts its transaction, if it has them.
func (ses *Session) Close(ctx context.Context) {
	if ses.cur != nil {
		err := ses.cur.Done(ctx)
		if err != nil && !errors.Is(err, anchor.ErrCursorClosed) {
			log.WithField("error", err.Error()).Warn("console range done")
		}
		ses.cur = nil
	}
	if ses.txn != nil {
		err := ses.txn.Abort(ctx)
		if err != nil && !errors.Is(err, anchor.ErrTxnClosed) {
			log.WithField("error", err.Error()).Warn("console abort")
		}
		ses.txn = nil
		ses.cur = nil
	}
}

// check drops the transaction and cursor once an error shows they are no longer there.
func (ses *Session) check(err error) error {
	if err == nil {
		return nil
	}

	var se *anchor.StoreError
	if errors.Is(err, anchor.ErrTxnClosed) || errors.As(err, &se) {
		ses.txn = nil
		ses.cur = nil
	} else if errors.Is(err, anchor.ErrCursorClosed) {
		ses.cur = nil
	}
	return err
}

func (ses *Session) needTxn() error {
	if ses.txn == nil {
		return errors.New("no transaction; use begin write or begin read")
	}
	return nil
}

func (ses *Session) needCursor() error {
	if ses.cur == nil {
		return errors.New("no range; use range start end")
	}
	return nil
}

func (ses *Session) begin(ctx context.Context, args []string) error {
	if ses.txn != nil {
		return fmt.Errorf("%s is still active", ses.txn)
	}

	var txn *anchor.Txn
	var err error
	switch strings.ToLower(args[0]) {
	case "write":
		txn, err = anchor.BeginWrite(ctx, ses.Env)
	case "read":
		txn, err = anchor.BeginRead(ctx, ses.Env)
	default:
		return fmt.Errorf("begin: got %s; want write or read", args[0])
	}
	if err != nil {
		return err
	}

	ses.txn = txn
	fmt.Fprintf(ses.Writer, "%s transaction begun\n", txn.Mode())
	return nil
}

func (ses *Session) get(ctx context.Context, args []string) error {
	err := ses.needTxn()
	if err != nil {
		return err
	}

	val, err := ses.txn.Get(ctx, args[0])
	if err == anchor.ErrNotFound {
		fmt.Fprintln(ses.Writer, "not found")
		return nil
	} else if err != nil {
		return ses.check(err)
	}
	fmt.Fprintln(ses.Writer, val)
	return nil
}

func (ses *Session) put(ctx context.Context, args []string) error {
	err := ses.needTxn()
	if err != nil {
		return err
	}

	err = ses.txn.Put(ctx, args[0], args[1])
	if err != nil {
		return ses.check(err)
	}
	fmt.Fprintln(ses.Writer, "ok")
	return nil
}

func (ses *Session) openRange(ctx context.Context, args []string) error {
	err := ses.needTxn()
	if err != nil {
		return err
	}

	cur, err := ses.txn.Range(ctx, args[0], args[1])
	if err != nil {
		return ses.check(err)
	}
	ses.cur = cur
	fmt.Fprintln(ses.Writer, "ok")
	return nil
}

func (ses *Session) next(ctx context.Context, args []string) error {
	err := ses.needCursor()
	if err != nil {
		return err
	}

	kv, err := ses.cur.Next(ctx)
	if err == io.EOF {
		ses.cur = nil
		fmt.Fprintln(ses.Writer, "done")
		return nil
	} else if err != nil {
		return ses.check(err)
	}
	fmt.Fprintf(ses.Writer, "%s = %s\n", kv.Key, kv.Value)
	return nil
}

func (ses *Session) take(ctx context.Context, args []string) error {
	err := ses.needCursor()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("take: %s", err)
	}

	kvs, err := ses.cur.Take(ctx, n)
	if err == io.EOF {
		ses.cur = nil
		fmt.Fprintln(ses.Writer, "done")
		return nil
	} else if err != nil {
		return ses.check(err)
	}
	for _, kv := range kvs {
		fmt.Fprintf(ses.Writer, "%s = %s\n", kv.Key, kv.Value)
	}
	return nil
}

// done ends the range if one is open, otherwise the transaction.
func (ses *Session) done(ctx context.Context, args []string) error {
	if ses.cur != nil {
		err := ses.cur.Done(ctx)
		ses.cur = nil
		if err != nil {
			return ses.check(err)
		}
		fmt.Fprintln(ses.Writer, "ok")
		return nil
	}
	return ses.commit(ctx, args)
}

func (ses *Session) commit(ctx context.Context, args []string) error {
	err := ses.needTxn()
	if err != nil {
		return err
	}

	mode := ses.txn.Mode()
	err = ses.txn.Commit(ctx)
	if errors.Is(err, anchor.ErrRangeActive) {
		return err
	}
	ses.txn = nil
	ses.cur = nil
	if err != nil {
		return err
	}
	if mode == anchor.Write {
		fmt.Fprintln(ses.Writer, "committed")
	} else {
		fmt.Fprintln(ses.Writer, "aborted")
	}
	return nil
}

func (ses *Session) abort(ctx context.Context, args []string) error {
	err := ses.needTxn()
	if err != nil {
		return err
	}

	err = ses.txn.Abort(ctx)
	if errors.Is(err, anchor.ErrRangeActive) {
		return err
	}
	ses.txn = nil
	ses.cur = nil
	if err != nil {
		return err
	}
	fmt.Fprintln(ses.Writer, "aborted")
	return nil
}

// scan prints [start, end) as of a new read transaction, independent of the session's own.
func (ses *Session) scan(ctx context.Context, args []string) error {
	return Scan(ctx, ses.Env, args[0], args[1], -1, ses.Writer)
}

// Scan prints up to limit keys and values in [start, end) as a table; a negative limit means
// no limit.
func Scan(ctx context.Context, env *anchor.Env, start, end string, limit int,
	w io.Writer) error {

	txn, err := anchor.BeginRead(ctx, env)
	if err != nil {
		return err
	}
	defer txn.Commit(ctx)

	cur, err := txn.Range(ctx, start, end)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader([]string{"key", "value"})

	cnt := 0
	for limit < 0 || cnt < limit {
		n := scanBatch
		if limit >= 0 && limit-cnt < n {
			n = limit - cnt
		}
		kvs, err := cur.Take(ctx, n)
		if err == io.EOF {
			cur = nil
			break
		} else if err != nil {
			return err
		}
		for _, kv := range kvs {
			tw.Append([]string{kv.Key, kv.Value})
		}
		cnt += len(kvs)
	}
	if cur != nil {
		cur.Done(ctx)
	}

	tw.Render()
	fmt.Fprintf(w, "(%d rows)\n", cnt)
	return nil
}

func (ses *Session) help(ctx context.Context, args []string) error {
	for _, cmd := range commands {
		fmt.Fprintf(ses.Writer, "  %s %s\n", cmd.name, cmd.args)
	}
	return nil
}
