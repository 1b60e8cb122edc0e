package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cruciblehq/cruxrun/internal"
	"github.com/cruciblehq/cruxrun/internal/paths"
	"github.com/cruciblehq/cruxrun/internal/session"
)

const (

	// File mode applied to the Unix socket. Only the owner may connect.
	socketMode = 0600

	// How long a connection may take to send its request.
	readTimeout = 5 * time.Second
)

// The session a server reports on.
type Session interface {
	Info() session.Info
}

// Holds server configuration.
type Config struct {
	SocketPath string       // Path of the Unix socket to listen on.
	Session    Session      // Session answered for by status requests.
	Stop       func()       // Called once when a stop request arrives.
	Logger     *slog.Logger // Nil uses slog.Default().
}

// Listens on a session's Unix domain socket and answers control requests.
type Server struct {
	socketPath string        // Path to the Unix socket file.
	session    Session       // Session being reported on.
	stop       func()        // Session stop hook.
	stopOnce   sync.Once     // Guards stop.
	logger     *slog.Logger  // Logger for connection events.
	listener   net.Listener  // Listener for incoming connections.
	done       chan struct{} // Closed when the server shuts down.
	closeOnce  sync.Once     // Guards Close.
	wg         sync.WaitGroup
}

// Creates a new server instance.
//
// The socket is not opened until [Server.Start] is called.
func New(cfg Config) (*Server, error) {
	if cfg.SocketPath == "" || cfg.Session == nil {
		return nil, fmt.Errorf("%w: socket path and session are required", ErrServer)
	}

	stop := cfg.Stop
	if stop == nil {
		stop = func() {}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		socketPath: cfg.SocketPath,
		session:    cfg.Session,
		stop:       stop,
		logger:     logger,
		done:       make(chan struct{}),
	}, nil
}

// Opens the Unix socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener

	s.logger.Debug("control socket listening", "path", s.socketPath)

	s.wg.Add(1)
	go s.accept()
	return nil
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and restricts access to the owner.
//
// Fails with [ErrInUse] if another server still accepts on socketPath.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	if conn, err := net.DialTimeout("unix", socketPath, time.Second); err == nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrInUse, socketPath)
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := os.Chmod(socketPath, socketMode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("%w: failed to chmod socket %s: %w", ErrServer, socketPath, err)
	}

	return listener, nil
}

// Stops accepting connections, waits for in-flight requests and removes the
// socket. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
	return nil
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Processes a single connection.
//
// Reads one newline-delimited JSON message, dispatches the command, and
// writes the response. The connection is closed after one exchange.
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		s.logger.Debug("control read error", "error", err)
		return
	}

	env, payload, err := Decode(line)
	if err != nil {
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	s.logger.Debug("control command received", "command", env.Command)
	s.dispatch(conn, env.Command, payload)
}

// Routes a command to the appropriate handler.
func (s *Server) dispatch(conn net.Conn, cmd Command, _ json.RawMessage) {
	switch cmd {
	case CmdStatus:
		s.handleStatus(conn)
	case CmdStop:
		s.handleStop(conn)
	default:
		s.respond(conn, CmdError, &ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	info := s.session.Info()

	var uptime time.Duration
	if !info.StartedAt.IsZero() {
		uptime = time.Since(info.StartedAt).Truncate(time.Second)
	}

	s.respond(conn, CmdOK, &StatusResult{
		ID:        info.ID,
		Image:     info.Image,
		Args:      info.Args,
		State:     info.State.String(),
		StartedAt: info.StartedAt,
		Uptime:    uptime.String(),
		Pid:       os.Getpid(),
		Version:   internal.VersionString(),
	})
}

// Handles a stop command. The response is sent before the session is told
// to stop.
func (s *Server) handleStop(conn net.Conn) {
	s.respond(conn, CmdOK, nil)
	s.logger.Info("stop requested over control socket")
	s.stopOnce.Do(s.stop)
}

// Writes a JSON envelope response to the connection.
func (s *Server) respond(conn net.Conn, cmd Command, payload any) {
	data, err := Encode(cmd, payload)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}
