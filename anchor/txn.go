package anchor

import (
	"context"
	"fmt"
	"io"
)

// Txn is the caller's handle on a transaction. It may be used from any goroutine, but calls
// are handled one at a time, in the order the actor accepts them.
type Txn struct {
	ch   *channel
	mode Mode
	id   uint64
}

// Cursor is the caller's handle on an open range.
type Cursor struct {
	ch *channel
}

func (txn *Txn) Mode() Mode {
	return txn.mode
}

func (txn *Txn) String() string {
	return fmt.Sprintf("%s-transaction-%d", txn.mode, txn.id)
}

// Call sends one command to the transaction and returns the actor's reply.
func (txn *Txn) Call(ctx context.Context, cmd Command) (Reply, error) {
	return txn.ch.call(ctx, cmd)
}

// Get returns ErrNotFound if key is not there.
func (txn *Txn) Get(ctx context.Context, key string) (string, error) {
	r, err := txn.ch.call(ctx, Get{Key: key})
	if err != nil {
		return "", err
	}
	switch r.Kind {
	case ReplyValue:
		return r.Value, nil
	case ReplyNotFound:
		return "", ErrNotFound
	}
	return "", replyError(r)
}

func (txn *Txn) Put(ctx context.Context, key, val string) error {
	r, err := txn.ch.call(ctx, Put{Key: key, Value: val})
	if err != nil {
		return err
	}
	if r.Kind == ReplyOk {
		return nil
	}
	return replyError(r)
}

// Range opens a cursor over [start, end). Until the cursor is done or exhausted, the
// transaction rejects every other command with ErrRangeActive.
func (txn *Txn) Range(ctx context.Context, start, end string) (*Cursor, error) {
	r, err := txn.ch.call(ctx, Range{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	if r.Kind == ReplyOk && r.Cursor != nil {
		return r.Cursor, nil
	}
	return nil, replyError(r)
}

// Commit ends the transaction: a write transaction is committed and a read transaction,
// having nothing to commit, is aborted.
func (txn *Txn) Commit(ctx context.Context) error {
	return txn.end(ctx, Done{})
}

// Abort ends the transaction without committing it.
func (txn *Txn) Abort(ctx context.Context) error {
	return txn.end(ctx, abort{})
}

func (txn *Txn) end(ctx context.Context, cmd Command) error {
	r, err := txn.ch.call(ctx, cmd)
	if err != nil {
		return err
	}
	if r.Kind == ReplyOk {
		return nil
	}
	return replyError(r)
}

func (c *Cursor) Call(ctx context.Context, cmd Command) (Reply, error) {
	return c.ch.call(ctx, cmd)
}

// Next returns the next key and value in the range, or io.EOF once the range is exhausted;
// the cursor is closed after io.EOF is returned.
func (c *Cursor) Next(ctx context.Context) (KeyValue, error) {
	r, err := c.ch.call(ctx, Next{})
	if err != nil {
		return KeyValue{}, err
	}
	switch r.Kind {
	case ReplyKeyValue:
		return r.Pairs[0], nil
	case ReplyDone:
		return KeyValue{}, io.EOF
	}
	return KeyValue{}, replyError(r)
}

// Take returns up to n of the remaining keys and values in order, or io.EOF if there are
// none; the cursor is closed after io.EOF is returned.
func (c *Cursor) Take(ctx context.Context, n int) ([]KeyValue, error) {
	r, err := c.ch.call(ctx, Take{Count: n})
	if err != nil {
		return nil, err
	}
	switch r.Kind {
	case ReplyBatch:
		return r.Pairs, nil
	case ReplyDone:
		return nil, io.EOF
	}
	return nil, replyError(r)
}

// Done closes the cursor without exhausting it.
func (c *Cursor) Done(ctx context.Context) error {
	r, err := c.ch.call(ctx, Done{})
	if err != nil {
		return err
	}
	if r.Kind == ReplyOk {
		return nil
	}
	return replyError(r)
}

func replyError(r Reply) error {
	if r.Err != nil {
		return r.Err
	}
	return fmt.Errorf("anchor: unexpected reply: %s", r)
}
