package anchor

import (
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/anchor/kv"
)

const (
	maxTakeAlloc = 256
)

// cursor is the state of an open range. It lives on the actor's goroutine and is reached by
// callers through its own channel; done marks that the range ends once the current reply has
// been delivered.
type cursor struct {
	it   kv.Iterator
	ch   *channel
	rng  Range
	done bool
}

func (a *actor) openCursor(cmd Range) Reply {
	it, err := a.tx.Iterate([]byte(cmd.Start), []byte(cmd.End))
	if err != nil {
		return a.fail("range", err)
	}

	a.cursor = &cursor{
		it:  it,
		ch:  newChannel(ErrCursorClosed),
		rng: cmd,
	}
	a.state = stateInRange
	a.entry.WithFields(log.Fields{
		"start": cmd.Start,
		"end":   cmd.End,
	}).Debug("range opened")
	return Reply{Kind: ReplyOk, Cursor: &Cursor{ch: a.cursor.ch}}
}

func (a *actor) cursorCommand(cmd Command) Reply {
	switch cmd := cmd.(type) {
	case Next:
		pair, ok, err := a.cursor.next()
		if err != nil {
			return a.fail("next", err)
		} else if !ok {
			a.cursor.done = true
			return Reply{Kind: ReplyDone}
		}
		return Reply{Kind: ReplyKeyValue, Pairs: []KeyValue{pair}}

	case Take:
		if cmd.Count <= 0 {
			return rejected(cmd, ErrBadCount)
		}

		n := cmd.Count
		if n > maxTakeAlloc {
			n = maxTakeAlloc
		}
		pairs := make([]KeyValue, 0, n)
		for len(pairs) < cmd.Count {
			pair, ok, err := a.cursor.next()
			if err != nil {
				return a.fail("take", err)
			} else if !ok {
				break
			}
			pairs = append(pairs, pair)
		}

		if len(pairs) == 0 {
			a.cursor.done = true
			return Reply{Kind: ReplyDone}
		}
		return Reply{Kind: ReplyBatch, Pairs: pairs}

	case Done:
		a.cursor.done = true
		return Reply{Kind: ReplyOk}
	}

	a.entry.WithField("command", cmd.String()).Warn("command rejected: not a range command")
	return rejected(cmd, ErrRangeCommand)
}

func (a *actor) closeCursor(reason error) {
	a.cursor.it.Close()
	a.cursor.ch.close(reason)
	a.entry.WithFields(log.Fields{
		"start": a.cursor.rng.Start,
		"end":   a.cursor.rng.End,
	}).Debug("range closed")

	a.cursor = nil
	if a.state == stateInRange {
		a.state = stateActive
	}
}

func (c *cursor) next() (KeyValue, bool, error) {
	var pair KeyValue
	err := c.it.Item(
		func(key, val []byte) error {
			pair = KeyValue{Key: string(key), Value: string(val)}
			return nil
		})
	if err == io.EOF {
		return KeyValue{}, false, nil
	} else if err != nil {
		return KeyValue{}, false, err
	}
	return pair, true, nil
}
