// Package server runs the accept loop: it binds a listener, spawns a
// connection duplex for each accepted socket, and wires a freshly
// started command actor into either master or replica mode depending on
// configuration.
package server

import (
	"fmt"
	"net"
	"sync/atomic"

	"knotstore/internal/actor"
	"knotstore/internal/conn"
	"knotstore/internal/logger"
	"knotstore/internal/repl"
)

const (
	defaultReadBuffer  = 256 * 1024
	defaultWriteBuffer = 0
)

// Config configures a Server.
type Config struct {
	Addr        string // listen address, e.g. ":6380"
	SlaveOf     string // "host port" of a master to replicate from, or ""
	ReadBuffer  int
	WriteBuffer int
}

// Server accepts client and replica connections and dispatches their
// commands through a single command actor.
type Server struct {
	cfg Config
	ln  net.Listener
	h   *actor.Handle

	activeConns int32
}

// New constructs a Server. It does not bind a listener or start
// replication; call Start for that.
func New(cfg Config) *Server {
	if cfg.ReadBuffer == 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}

	role := repl.RoleMaster
	if cfg.SlaveOf != "" {
		role = repl.RoleReplica
	}

	return &Server{
		cfg: cfg,
		h:   actor.Start(actor.Options{Role: role, ReplicaOf: cfg.SlaveOf}),
	}
}

// Start binds the listener, kicks off replica initialization if
// configured, and begins accepting connections in the background. It
// returns once the listener is bound and, for a replica, once the
// upstream handshake has either succeeded or failed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln

	if s.cfg.SlaveOf != "" {
		ownPort := ownListenPort(s.cfg.Addr)
		if err := repl.Handshake(s.cfg.SlaveOf, ownPort, s.h); err != nil {
			_ = ln.Close()
			return fmt.Errorf("replica initialization failed: %w", err)
		}
		logger.Info("replica initialization completed successfully; now processing commands")
	}

	go s.serve()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			logger.Debugf("accept loop exiting: %v", err)
			return
		}

		if tcpConn, ok := c.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetReadBuffer(s.cfg.ReadBuffer)
			if s.cfg.WriteBuffer > 0 {
				_ = tcpConn.SetWriteBuffer(s.cfg.WriteBuffer)
			}
		}

		atomic.AddInt32(&s.activeConns, 1)
		logger.Debugf("accepted connection from %s (active: %d)", c.RemoteAddr(), atomic.LoadInt32(&s.activeConns))

		go func(c net.Conn) {
			defer atomic.AddInt32(&s.activeConns, -1)
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("recovered from panic serving %s: %v", c.RemoteAddr(), r)
				}
			}()
			conn.Serve(c, s.h)
		}(c)
	}
}

// ownListenPort extracts the port this server itself listens on, sent to
// the master during the REPLCONF listening-port handshake step.
func ownListenPort(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return port
}
