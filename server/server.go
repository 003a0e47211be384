package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/anchor/anchor"
	"github.com/leftmike/anchor/repl"
)

var ErrServerClosed = errors.New("server: closed")

type Client struct {
	Lines  repl.LineReader
	Writer io.Writer
	User   string
	Type   string
	Addr   string
}

type Handler func(ctx context.Context, env *anchor.Env, c *Client)

type listener interface {
	Close() error
	Shutdown(ctx context.Context) error
}

// Server hands each client connection to Handler, or to a console session if Handler is nil.
// Transactions left open by a client are aborted when it disconnects or the server closes.
type Server struct {
	Env     *anchor.Env
	Handler Handler

	mutex     sync.Mutex
	listeners map[listener]struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	clients   sync.WaitGroup
	shutdown  bool
}

func (svr *Server) init() {
	if svr.listeners == nil {
		svr.listeners = map[listener]struct{}{}
		svr.ctx, svr.cancel = context.WithCancel(context.Background())
	}
}

func (svr *Server) addListener(l listener) error {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	svr.init()
	if svr.shutdown {
		return ErrServerClosed
	}
	svr.listeners[l] = struct{}{}
	return nil
}

func (svr *Server) addClient() (context.Context, error) {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	svr.init()
	if svr.shutdown {
		return nil, ErrServerClosed
	}
	svr.clients.Add(1)
	return svr.ctx, nil
}

// Handle serves one client until it runs out of input. Once the server is shutting down, new
// clients are turned away.
func (svr *Server) Handle(c *Client) {
	ctx, err := svr.addClient()
	if err != nil {
		if c.Writer != nil {
			fmt.Fprintf(c.Writer, "error: %s\n", err)
		}
		return
	}
	defer svr.clients.Done()

	entry := log.WithFields(log.Fields{
		"user": c.User,
		"type": c.Type,
		"addr": c.Addr,
	})
	entry.Info("client connected")

	if svr.Handler != nil {
		svr.Handler(ctx, svr.Env, c)
	} else {
		ses := &repl.Session{
			Env:    svr.Env,
			Writer: c.Writer,
			Source: c.Type + ":" + c.User + "@" + c.Addr,
		}
		ses.Run(ctx, c.Lines)
	}

	entry.Info("client disconnected")
}

func (svr *Server) stop() []listener {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	svr.init()
	svr.shutdown = true
	var ls []listener
	for l := range svr.listeners {
		ls = append(ls, l)
	}
	svr.listeners = map[listener]struct{}{}
	return ls
}

// Shutdown stops accepting clients and waits for the connected ones to finish, or for ctx to
// be done.
func (svr *Server) Shutdown(ctx context.Context) error {
	var err error
	for _, l := range svr.stop() {
		lerr := l.Shutdown(ctx)
		if err == nil {
			err = lerr
		}
	}

	done := make(chan struct{})
	go func() {
		svr.clients.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Close stops accepting clients, drops the connected ones, and aborts their transactions.
func (svr *Server) Close() error {
	var err error
	for _, l := range svr.stop() {
		lerr := l.Close()
		if err == nil {
			err = lerr
		}
	}
	svr.cancel()
	return err
}
