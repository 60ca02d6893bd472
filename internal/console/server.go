// Package console serves the operator command socket. Commands arrive
// as newline-delimited JSON over a Unix domain socket and are answered
// in the same shape.
package console

import (
	"bufio"
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

const (
	unixNetwork    = "unix"
	maxLineBytes   = 1 << 20
	commandTimeout = 5 * time.Second
)

var (
	ErrEmptyPath     = errors.New("console: socket path is empty")
	ErrPathNotSocket = errors.New("console: path exists and is not a socket")
)

// Executor answers operator commands. The core engine implements it.
type Executor interface {
	Execute(ctx context.Context, cmd schema.Command) (schema.Command, error)
}

// Server accepts console connections on a Unix domain socket.
type Server struct {
	path     string
	executor Executor

	mu     sync.Mutex
	ln     *net.UnixListener
	conns  map[*net.UnixConn]struct{}
	closed chan struct{}
	wg     sync.WaitGroup
}

// NewServer creates a console server for the given socket path.
func NewServer(path string, executor Executor) (*Server, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if executor == nil {
		return nil, errors.New("console: nil executor")
	}
	return &Server{
		path:     path,
		executor: executor,
		conns:    make(map[*net.UnixConn]struct{}),
		closed:   make(chan struct{}),
	}, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string { return s.path }

// Start listens and serves connections until ctx is done. A stale
// socket file left by a previous run is removed first.
func (s *Server) Start(ctx context.Context) error {
	if err := removeIfSocket(s.path); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &net.UnixAddr{Name: s.path, Net: unixNetwork})
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	// the watcher is the only goroutine that closes the listener, so
	// ctx cancellation and Close cannot race on a double close
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-s.closed:
		}
		_ = ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.AcceptUnix()
			if err != nil {
				if ctx.Err() != nil || s.closing() {
					return
				}
				logs.Warnf("console accept: %+v", err)
				return
			}
			s.track(conn)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.untrack(conn)
				s.serveConn(ctx, conn)
			}()
		}
	}()
	return nil
}

// Close stops the listener, disconnects active clients, and waits for
// the server goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.ln != nil {
		s.ln = nil
		close(s.closed)
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) closing() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) track(conn *net.UnixConn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *net.UnixConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) serveConn(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd schema.Command
		if err := sonic.Unmarshal(line, &cmd); err != nil {
			s.writeResponse(writer, schema.Command{
				Type: schema.CommandTypeResponse,
				Body: "bad command: " + err.Error(),
			})
			continue
		}

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		resp, err := s.executor.Execute(cmdCtx, cmd)
		cancel()
		if err != nil {
			resp = schema.Command{
				Type:    schema.CommandTypeResponse,
				SubType: cmd.SubType,
				Body:    "execute: " + err.Error(),
			}
		}
		s.writeResponse(writer, resp)
	}
}

func (s *Server) writeResponse(writer *bufio.Writer, resp schema.Command) {
	data, err := sonic.Marshal(resp)
	if err != nil {
		logs.Errorf("console encode response: %+v", err)
		return
	}
	data = append(data, '\n')
	if _, err := writer.Write(data); err != nil {
		logs.Warnf("console write: %+v", err)
		return
	}
	if err := writer.Flush(); err != nil {
		logs.Warnf("console flush: %+v", err)
	}
}

func removeIfSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ErrPathNotSocket
	}
	return os.Remove(path)
}
