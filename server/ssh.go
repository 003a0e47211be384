package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	sshBanner = "anchor 0.1\n"
)

type SSHConfig struct {
	Address         string
	HostKeysBytes   [][]byte
	AuthorizedBytes []byte
	CheckPassword   func(user, password string) error
}

// sshListener accepts SSH connections for a Server; each session channel on a connection
// becomes a console client.
type sshListener struct {
	svr      *Server
	cfg      *ssh.ServerConfig
	listener net.Listener

	mutex  sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	active sync.WaitGroup
}

func parseAuthorizedKeys(b []byte) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	for len(b) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(b)
		if err != nil {
			return nil, fmt.Errorf("server: authorized keys: %s", err)
		}
		keys[string(key.Marshal())] = struct{}{}
		b = rest
	}
	return keys, nil
}

func (sshCfg SSHConfig) serverConfig() (*ssh.ServerConfig, error) {
	cfg := &ssh.ServerConfig{
		AuthLogCallback: func(md ssh.ConnMetadata, method string, err error) {
			if method == "none" {
				return
			}
			entry := log.WithFields(log.Fields{
				"user":   md.User(),
				"addr":   md.RemoteAddr().String(),
				"method": method,
			})
			if err != nil {
				entry.WithField("error", err.Error()).Warn("ssh authentication failed")
			} else {
				entry.Info("ssh authenticated")
			}
		},
		BannerCallback: func(md ssh.ConnMetadata) string {
			return sshBanner
		},
	}

	if len(sshCfg.HostKeysBytes) == 0 {
		return nil, errors.New("server: ssh needs at least one host key")
	}
	for _, b := range sshCfg.HostKeysBytes {
		key, err := ssh.ParsePrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("server: host key: %s", err)
		}
		cfg.AddHostKey(key)
	}

	keys, err := parseAuthorizedKeys(sshCfg.AuthorizedBytes)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		cfg.PublicKeyCallback =
			func(md ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
				if _, ok := keys[string(key.Marshal())]; !ok {
					return nil, fmt.Errorf("server: %s: public key not authorized", md.User())
				}
				return nil, nil
			}
	}

	if check := sshCfg.CheckPassword; check != nil {
		cfg.PasswordCallback =
			func(md ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
				return nil, check(md.User(), string(password))
			}
	}

	if cfg.PublicKeyCallback == nil && cfg.PasswordCallback == nil {
		cfg.NoClientAuth = true
		log.Warn("ssh: no client authentication")
	}
	return cfg, nil
}

// ListenAndServeSSH serves console sessions over SSH until the server is shut down or
// closed, when it returns ErrServerClosed.
func (svr *Server) ListenAndServeSSH(sshCfg SSHConfig) error {
	cfg, err := sshCfg.serverConfig()
	if err != nil {
		return err
	}
	l, err := net.Listen("tcp", sshCfg.Address)
	if err != nil {
		return err
	}

	sl := &sshListener{
		svr:      svr,
		cfg:      cfg,
		listener: l,
		conns:    map[net.Conn]struct{}{},
	}
	err = svr.addListener(sl)
	if err != nil {
		l.Close()
		return err
	}
	log.WithField("address", l.Addr().String()).Info("ssh listening")

	for {
		conn, err := l.Accept()
		if err != nil {
			if sl.isClosed() {
				return ErrServerClosed
			}
			log.WithField("error", err.Error()).Error("ssh accept")
			return err
		}
		if !sl.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go sl.serveConn(conn)
	}
}

func (sl *sshListener) isClosed() bool {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	return sl.closed
}

func (sl *sshListener) track(conn net.Conn) bool {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	if sl.closed {
		return false
	}
	sl.conns[conn] = struct{}{}
	sl.active.Add(1)
	return true
}

func (sl *sshListener) untrack(conn net.Conn) {
	sl.mutex.Lock()
	delete(sl.conns, conn)
	sl.mutex.Unlock()

	sl.active.Done()
}

// serveConn does the handshake off the accept loop, so a slow client cannot hold up others.
func (sl *sshListener) serveConn(conn net.Conn) {
	defer sl.untrack(conn)
	defer conn.Close()

	sconn, chans, reqs, err := ssh.NewServerConn(conn, sl.cfg)
	if err != nil {
		log.WithFields(log.Fields{
			"addr":  conn.RemoteAddr().String(),
			"error": err.Error(),
		}).Warn("ssh handshake")
		return
	}
	go ssh.DiscardRequests(reqs)

	entry := log.WithFields(log.Fields{
		"user": sconn.User(),
		"addr": sconn.RemoteAddr().String(),
	})
	entry.Info("ssh connected")

	var sessions sync.WaitGroup
	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		sessions.Add(1)
		go func(nch ssh.NewChannel) {
			defer sessions.Done()
			sl.serveSession(sconn, nch, entry)
		}(nch)
	}
	sessions.Wait()
	entry.Info("ssh disconnected")
}

// consoleRequest reports whether a session request is one a console session accepts.
func consoleRequest(typ string) bool {
	switch typ {
	case "pty-req", "window-change", "env", "shell":
		return true
	}
	return false
}

func (sl *sshListener) serveSession(sconn *ssh.ServerConn, nch ssh.NewChannel,
	entry *log.Entry) {

	ch, reqs, err := nch.Accept()
	if err != nil {
		entry.WithField("error", err.Error()).Error("ssh session accept")
		return
	}
	defer ch.Close()

	go func() {
		for req := range reqs {
			ok := consoleRequest(req.Type)
			if !ok {
				entry.WithField("request", req.Type).Debug("ssh request refused")
			}
			if req.WantReply {
				req.Reply(ok, nil)
			}
		}
	}()

	t := terminal.NewTerminal(ch, "anchor: ")
	sl.svr.Handle(&Client{
		Lines:  t,
		Writer: t,
		User:   sconn.User(),
		Type:   "ssh",
		Addr:   sconn.RemoteAddr().String(),
	})

	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
}

func (sl *sshListener) stopAccepting() error {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	if sl.closed {
		return nil
	}
	sl.closed = true
	return sl.listener.Close()
}

// Shutdown stops accepting connections and waits for the open ones to end.
func (sl *sshListener) Shutdown(ctx context.Context) error {
	err := sl.stopAccepting()

	done := make(chan struct{})
	go func() {
		sl.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting connections and drops the open ones.
func (sl *sshListener) Close() error {
	err := sl.stopAccepting()

	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	for conn := range sl.conns {
		conn.Close()
	}
	return err
}
