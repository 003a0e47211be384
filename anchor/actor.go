package anchor

import (
	"context"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/anchor/kv"
)

type Mode int

const (
	Write Mode = iota
	Read
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

type state int

const (
	stateActive state = iota
	stateInRange
	stateEnding
)

// actor owns one transaction, and while a range is open, one cursor. Only the goroutine
// running the actor, locked to its OS thread, ever touches tx or cursor.
type actor struct {
	env   *Env
	id    uint64
	mode  Mode
	ctx   context.Context
	idle  time.Duration
	entry *log.Entry

	txnCh  *channel
	tx     kv.Tx
	state  state
	cursor *cursor
	txDone bool
	reason error
}

func (a *actor) run(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer a.env.actors.Done()

	tx, err := a.env.db.Begin(a.mode == Write)
	if err != nil {
		a.txDone = true
		a.stop(&StoreError{Op: "begin", Err: err})
		return
	}
	a.tx = tx
	a.entry.Debug("transaction begun")

	if ready != nil {
		select {
		case ready <- struct{}{}:
		case <-a.ctx.Done():
			a.stop(a.ctx.Err())
			return
		case <-a.env.closing:
			a.stop(ErrEnvClosed)
			return
		}
	}

	for a.state != stateEnding {
		req, inRange, err := a.receive()
		if err != nil {
			a.stop(err)
			return
		}

		var r Reply
		if req.cmd == nil {
			a.entry.Warn("command rejected: nil command")
			r = rejected(nil, ErrUnknownCommand)
		} else if inRange {
			r = a.cursorCommand(req.cmd)
		} else {
			r = a.txnCommand(req.cmd)
		}

		// The reply channel has room for exactly this reply.
		req.reply <- r

		if a.cursor != nil && a.cursor.done {
			a.closeCursor(nil)
		}
	}

	a.stop(a.reason)
}

// receive waits for the next command. While a range is open, commands arriving on the
// transaction's own channel are accepted too, so that they can be rejected rather than left
// waiting.
func (a *actor) receive() (request, bool, error) {
	err := a.ctx.Err()
	if err != nil {
		return request{}, false, err
	}
	select {
	case <-a.env.closing:
		return request{}, false, ErrEnvClosed
	default:
	}

	var cursorReqs chan request
	if a.state == stateInRange {
		cursorReqs = a.cursor.ch.reqs
	}

	var timeout <-chan time.Time
	if a.idle > 0 {
		timer := time.NewTimer(a.idle)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case req := <-a.txnCh.reqs:
		return req, false, nil
	case req := <-cursorReqs:
		return req, true, nil
	case <-timeout:
		return request{}, false, ErrIdleTimeout
	case <-a.ctx.Done():
		return request{}, false, a.ctx.Err()
	case <-a.env.closing:
		return request{}, false, ErrEnvClosed
	}
}

func (a *actor) txnCommand(cmd Command) Reply {
	if a.state == stateInRange {
		a.entry.WithField("command", cmd.String()).Warn("command rejected: range is open")
		return rejected(cmd, ErrRangeActive)
	}

	switch cmd := cmd.(type) {
	case Get:
		var val string
		err := a.tx.Get([]byte(cmd.Key),
			func(v []byte) error {
				val = string(v)
				return nil
			})
		if err == kv.ErrKeyNotFound {
			return Reply{Kind: ReplyNotFound}
		} else if err != nil {
			return a.fail("get", err)
		}
		return Reply{Kind: ReplyValue, Value: val}

	case Put:
		if a.mode == Read {
			return rejected(cmd, ErrReadOnly)
		}
		err := a.tx.Set([]byte(cmd.Key), []byte(cmd.Value))
		if err != nil {
			return a.fail("put", err)
		}
		return Reply{Kind: ReplyOk}

	case Range:
		return a.openCursor(cmd)

	case Done:
		if a.mode == Write {
			return a.finish("commit")
		}
		return a.finish("abort")

	case abort:
		return a.finish("abort")

	case Next, Take:
		a.entry.WithField("command", cmd.String()).Warn("command rejected: no range")
		return rejected(cmd, ErrNoRange)
	}

	return rejected(cmd, ErrUnknownCommand)
}

func (a *actor) finish(op string) Reply {
	var err error
	if op == "commit" {
		err = a.tx.Commit()
	} else {
		err = a.tx.Rollback()
	}
	a.txDone = true
	a.state = stateEnding

	if err != nil {
		return a.fail(op, err)
	}
	a.entry.Debugf("transaction %s", op)
	return Reply{Kind: ReplyOk}
}

// fail records a store failure; the actor stops once the reply has been sent.
func (a *actor) fail(op string, err error) Reply {
	se := &StoreError{Op: op, Err: err}
	a.entry.WithField("error", err.Error()).Errorf("%s failed", op)
	a.state = stateEnding
	a.reason = se
	return Reply{Kind: ReplyFailed, Err: se}
}

// stop releases everything the actor owns: the cursor, the transaction (aborting it if it
// is still open), and both channels.
func (a *actor) stop(reason error) {
	if a.cursor != nil {
		a.closeCursor(reason)
	}

	if !a.txDone && a.tx != nil {
		a.txDone = true
		err := a.tx.Rollback()
		if err != nil {
			a.entry.WithField("error", err.Error()).Error("abort failed")
		}
	}

	if reason != nil {
		a.entry.WithField("reason", reason.Error()).Warn("transaction stopped")
	}
	a.txnCh.close(reason)
}
