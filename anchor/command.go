package anchor

import (
	"fmt"
	"strings"
)

// Command is one request to a transaction actor. Get, Put, Range and Done are valid on a
// transaction; Next, Take and Done are valid on a cursor.
type Command interface {
	fmt.Stringer
	command()
}

type Get struct {
	Key string
}

type Put struct {
	Key   string
	Value string
}

// Range opens a cursor over the keys in [Start, End).
type Range struct {
	Start string
	End   string
}

type Next struct{}

type Take struct {
	Count int
}

type Done struct{}

// abort ends a transaction without committing, whatever its mode.
type abort struct{}

func (Get) command()   {}
func (Put) command()   {}
func (Range) command() {}
func (Next) command()  {}
func (Take) command()  {}
func (Done) command()  {}
func (abort) command() {}

func (cmd Get) String() string {
	return fmt.Sprintf("get %q", cmd.Key)
}

func (cmd Put) String() string {
	return fmt.Sprintf("put %q", cmd.Key)
}

func (cmd Range) String() string {
	return fmt.Sprintf("range %q %q", cmd.Start, cmd.End)
}

func (Next) String() string {
	return "next"
}

func (cmd Take) String() string {
	return fmt.Sprintf("take %d", cmd.Count)
}

func (Done) String() string {
	return "done"
}

func (abort) String() string {
	return "abort"
}

type ReplyKind int

const (
	ReplyOk ReplyKind = iota
	ReplyValue
	ReplyKeyValue
	ReplyBatch
	ReplyDone
	ReplyNotFound
	// ReplyRejected means the command was not valid in the actor's current state; the
	// actor keeps running.
	ReplyRejected
	// ReplyFailed means the store failed; the transaction was aborted and the actor is gone.
	ReplyFailed
)

func (rk ReplyKind) String() string {
	switch rk {
	case ReplyOk:
		return "ok"
	case ReplyValue:
		return "value"
	case ReplyKeyValue:
		return "key-value"
	case ReplyBatch:
		return "batch"
	case ReplyDone:
		return "done"
	case ReplyNotFound:
		return "not-found"
	case ReplyRejected:
		return "rejected"
	case ReplyFailed:
		return "failed"
	default:
		return fmt.Sprintf("ReplyKind(%d)", rk)
	}
}

type KeyValue struct {
	Key   string
	Value string
}

type Reply struct {
	Kind  ReplyKind
	Value string
	// Pairs holds the single pair of a ReplyKeyValue or the 1..n pairs of a ReplyBatch.
	Pairs []KeyValue
	// Cursor is set on the ReplyOk to a Range command.
	Cursor *Cursor
	Err    error
}

func (r Reply) String() string {
	switch r.Kind {
	case ReplyValue:
		return fmt.Sprintf("value %q", r.Value)
	case ReplyKeyValue, ReplyBatch:
		var sb strings.Builder
		sb.WriteString(r.Kind.String())
		for _, kv := range r.Pairs {
			fmt.Fprintf(&sb, " %q=%q", kv.Key, kv.Value)
		}
		return sb.String()
	case ReplyRejected, ReplyFailed:
		return fmt.Sprintf("%s: %s", r.Kind, r.Err)
	}
	return r.Kind.String()
}
