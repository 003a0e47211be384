package anchor

import (
	"context"
	"sync"
)

type request struct {
	cmd   Command
	reply chan Reply
}

// channel is the rendezvous between callers and the single actor receiving on it. Requests
// are not buffered: a caller blocks until the actor accepts its command. Each request carries
// its own reply channel with room for the one reply, so the actor never waits on a caller.
// Once the actor stops listening it closes the channel, which releases any blocked callers
// with a ClosedError.
type channel struct {
	reqs      chan request
	closed    chan struct{}
	closedErr error
	reason    error
	once      sync.Once
}

func newChannel(closedErr error) *channel {
	return &channel{
		reqs:      make(chan request),
		closed:    make(chan struct{}),
		closedErr: closedErr,
	}
}

func (ch *channel) call(ctx context.Context, cmd Command) (Reply, error) {
	rch := make(chan Reply, 1)
	select {
	case ch.reqs <- request{cmd: cmd, reply: rch}:
	case <-ch.closed:
		return Reply{}, ch.err()
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	// The actor delivers the reply, if it has one, before closing the channel.
	select {
	case r := <-rch:
		return r, nil
	case <-ch.closed:
		select {
		case r := <-rch:
			return r, nil
		default:
		}
		return Reply{}, ch.err()
	case <-ctx.Done():
		go ch.abandon(rch)
		return Reply{}, ctx.Err()
	}
}

// abandon waits for the reply to a call whose caller has gone away; a range it opened is
// ended so that the transaction accepts commands again.
func (ch *channel) abandon(rch <-chan Reply) {
	var r Reply
	select {
	case r = <-rch:
	case <-ch.closed:
		select {
		case r = <-rch:
		default:
			return
		}
	}

	if r.Cursor != nil {
		r.Cursor.ch.call(context.Background(), Done{})
	}
}

// close must only be called by the actor; reason is nil for a normal end.
func (ch *channel) close(reason error) {
	ch.once.Do(
		func() {
			ch.reason = reason
			close(ch.closed)
		})
}

func (ch *channel) err() error {
	return &ClosedError{
		Err:    ch.closedErr,
		Reason: ch.reason,
	}
}
