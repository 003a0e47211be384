// Package anchor runs transactions against an embedded, ordered key-value store whose
// transaction and cursor handles may only be used by the thread which created them.
//
// Every transaction is owned by an actor: a goroutine locked to its OS thread for its whole
// life. Callers never touch the store; they send commands to the actor over an unbuffered
// channel and block until it replies. Opening a range hands back a second channel, served by
// the same actor, for stepping through it.
package anchor

import (
	"context"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/anchor/kv"
)

const (
	DefaultIdleTimeout = 5 * time.Minute
)

type Options struct {
	Path      string
	Engine    string
	MaxSize   int64
	CreateDir bool
	Mode      os.FileMode
	// IdleTimeout bounds how long an actor waits for the next command before it aborts the
	// transaction and exits; zero means DefaultIdleTimeout and a negative value means wait
	// forever.
	IdleTimeout time.Duration
	Logger      *log.Logger
}

// Env is an open store. It is shared, read only, by every transaction begun against it.
type Env struct {
	db          kv.DB
	engine      string
	idleTimeout time.Duration

	mutex   sync.Mutex
	closed  bool
	closing chan struct{}
	actors  sync.WaitGroup
	lastID  uint64
}

// Open opens the store described by opts and validates its default container. No Env is
// returned on failure.
func Open(opts Options) (*Env, error) {
	db, err := kv.Open(opts.Engine,
		kv.Config{
			Path:      opts.Path,
			MaxSize:   opts.MaxSize,
			CreateDir: opts.CreateDir,
			Mode:      opts.Mode,
			Logger:    opts.Logger,
		})
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	log.WithFields(log.Fields{
		"path":   opts.Path,
		"engine": opts.Engine,
	}).Info("environment opened")
	return newEnv(db, opts.Engine, opts.IdleTimeout), nil
}

func newEnv(db kv.DB, engine string, idleTimeout time.Duration) *Env {
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Env{
		db:          db,
		engine:      engine,
		idleTimeout: idleTimeout,
		closing:     make(chan struct{}),
	}
}

// Close aborts every transaction still running, waits for their actors to exit, and then
// closes the store.
func (env *Env) Close() error {
	env.mutex.Lock()
	if env.closed {
		env.mutex.Unlock()
		return nil
	}
	env.closed = true
	close(env.closing)
	env.mutex.Unlock()

	env.actors.Wait()
	log.WithField("engine", env.engine).Info("environment closed")
	return env.db.Close()
}

func (env *Env) addActor() (uint64, error) {
	env.mutex.Lock()
	defer env.mutex.Unlock()

	if env.closed {
		return 0, ErrEnvClosed
	}
	env.lastID += 1
	env.actors.Add(1)
	return env.lastID, nil
}

// BeginWrite starts a write transaction. It returns only once the transaction has actually
// begun, which may mean waiting for another writer to finish.
//
// ctx bounds both the wait and the life of the transaction: once ctx is done, the
// transaction is aborted. To bound only the wait, pass a context which outlives the
// transaction and give each call its own deadline.
func BeginWrite(ctx context.Context, env *Env) (*Txn, error) {
	a, err := env.spawn(ctx, Write)
	if err != nil {
		return nil, err
	}

	ready := make(chan struct{})
	go a.run(ready)

	select {
	case <-ready:
	case <-a.txnCh.closed:
		if a.txnCh.reason != nil {
			return nil, a.txnCh.reason
		}
		return nil, a.txnCh.err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Txn{ch: a.txnCh, mode: Write, id: a.id}, nil
}

// BeginRead starts a read transaction without waiting for it to begin; if beginning fails,
// the first call on the transaction reports why. As with BeginWrite, the transaction is
// aborted once ctx is done.
func BeginRead(ctx context.Context, env *Env) (*Txn, error) {
	a, err := env.spawn(ctx, Read)
	if err != nil {
		return nil, err
	}

	go a.run(nil)
	return &Txn{ch: a.txnCh, mode: Read, id: a.id}, nil
}

func (env *Env) spawn(ctx context.Context, mode Mode) (*actor, error) {
	id, err := env.addActor()
	if err != nil {
		return nil, err
	}
	return &actor{
		env:   env,
		id:    id,
		mode:  mode,
		ctx:   ctx,
		idle:  env.idleTimeout,
		txnCh: newChannel(ErrTxnClosed),
		entry: log.WithFields(log.Fields{"txn": id, "mode": mode.String()}),
	}, nil
}
