package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/basinlabs/upstairs/internal/types"
	"github.com/basinlabs/upstairs/internal/upstairs"
)

const defaultMaxConns int64 = 32

// Server is the guest control-plane listener: one unix socket, one
// goroutine per connection, newline-delimited JSON request/response.
type Server struct {
	socketPath     string
	requestTimeout time.Duration
	log            *slog.Logger
	id             string

	guest *upstairs.GuestBridge
	co    *upstairs.Coordinator

	mu       sync.RWMutex
	listener net.Listener
	shutdown bool

	connSemaphore *semaphore.Weighted
	activeConns   int32

	readyChan    chan struct{}
	doneChan     chan struct{}
	shutdownChan chan struct{}
	stopOnce     sync.Once
}

// New builds a Server bound to socketPath, fronting guest and co.
// upstairsID is returned verbatim by the query_upstairs_uuid verb.
func New(socketPath, upstairsID string, guest *upstairs.GuestBridge, co *upstairs.Coordinator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		socketPath:     socketPath,
		requestTimeout: 30 * time.Second,
		log:            log,
		id:             upstairsID,
		guest:          guest,
		co:             co,
		connSemaphore:  semaphore.NewWeighted(defaultMaxConns),
		readyChan:      make(chan struct{}),
		doneChan:       make(chan struct{}),
		shutdownChan:   make(chan struct{}),
	}
}

// WaitReady returns a channel closed once the listener is accepting.
func (s *Server) WaitReady() <-chan struct{} { return s.readyChan }

// Start binds the unix socket and serves connections until Stop is called
// or the listener errors.
func (s *Server) Start(_ context.Context) error {
	if err := s.ensureSocketDir(); err != nil {
		return fmt.Errorf("ensure socket dir: %w", err)
	}
	if err := s.removeStaleSocket(); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.socketPath, 0600); err != nil {
			_ = listener.Close()
			return fmt.Errorf("chmod socket: %w", err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	close(s.readyChan)
	defer close(s.doneChan)

	for {
		s.mu.RLock()
		l := s.listener
		s.mu.RUnlock()

		conn, err := l.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if s.connSemaphore.TryAcquire(1) {
			go func(c net.Conn) {
				defer s.connSemaphore.Release(1)
				atomic.AddInt32(&s.activeConns, 1)
				defer atomic.AddInt32(&s.activeConns, -1)
				s.handleConnection(c)
			}(conn)
		} else {
			s.log.Warn("rejecting connection: max connections reached")
			_ = conn.Close()
		}
	}
}

// Stop closes the listener and socket file, idempotently.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()

		close(s.shutdownChan)

		if listener != nil {
			if closeErr := listener.Close(); closeErr != nil {
				err = fmt.Errorf("close listener: %w", closeErr)
			}
		}
		_ = os.Remove(s.socketPath)
	})

	select {
	case <-s.doneChan:
	case <-time.After(5 * time.Second):
	}
	return err
}

func (s *Server) ensureSocketDir() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	_ = os.Chmod(dir, 0700)
	return nil
}

func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in handleConnection", "recover", r, "stack", string(debug.Stack()))
		}
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}
		} else {
			resp = s.dispatch(&req)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}
		if err := s.writeResponse(writer, resp); err != nil {
			return
		}
	}
}

func (s *Server) writeResponse(w *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

func fail(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

func ok(data any) Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return fail(err)
	}
	return Response{Success: true, Data: raw}
}

func (s *Server) dispatch(req *Request) Response {
	switch req.Verb {
	case "read":
		return s.handleRead(req)
	case "write":
		return s.handleWrite(req)
	case "flush":
		return s.handleFlush(req)
	case "activate":
		return s.handleActivate(req)
	case "deactivate":
		return s.handleDeactivate(req)
	case "replace":
		return s.handleReplace(req)
	case "show_work":
		return s.handleShowWork(req)
	case "query_upstairs_uuid":
		return s.handleQueryUUID(req)
	case "shutdown":
		return s.handleShutdown(req)
	default:
		return fail(fmt.Errorf("unknown verb %q", req.Verb))
	}
}

func (s *Server) handleRead(req *Request) Response {
	var args ReadArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(err)
	}
	w := s.guest.Read([]types.ReadRequest{{Block: types.Block(args.OffsetBlocks), NumBlocks: args.NumBlocks}})
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	data, err := w.Wait(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(data)
}

func (s *Server) handleWrite(req *Request) Response {
	var args WriteArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(err)
	}
	w := s.guest.Write([]types.WriteItem{{Block: types.Block(args.OffsetBlocks), Data: args.Data}}, args.Unwritten)
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if _, err := w.Wait(ctx); err != nil {
		return fail(err)
	}
	return ok(struct{}{})
}

func (s *Server) handleFlush(req *Request) Response {
	var args FlushArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(err)
	}
	var snap *types.SnapshotDetails
	if args.SnapshotName != "" {
		snap = &types.SnapshotDetails{Name: args.SnapshotName}
	}
	w, err := s.guest.Flush(snap)
	if err != nil {
		return fail(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if _, err := w.Wait(ctx); err != nil {
		return fail(err)
	}
	return ok(struct{}{})
}

func (s *Server) handleActivate(req *Request) Response {
	var args ActivateArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(err)
	}
	// No region maximum generation is available here: passing
	// Generation-1 as maxGen accepts any generation above zero (a
	// generation of 0 wraps maxGen and is refused).
	if err := s.guest.Activate(args.Generation, args.Generation-1); err != nil {
		return fail(err)
	}
	return ok(struct{}{})
}

func (s *Server) handleDeactivate(_ *Request) Response {
	if err := s.guest.Deactivate(); err != nil {
		return fail(err)
	}
	return ok(struct{}{})
}

func (s *Server) handleReplace(req *Request) Response {
	var args ReplaceArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return fail(err)
	}
	if args.ClientID < 0 || args.ClientID >= types.NumClients {
		return fail(types.ErrReplaceInvalid)
	}
	c := s.co.Client(types.ClientId(args.ClientID))
	if c.Target != args.OldAddr {
		return fail(types.ErrReplaceInvalid)
	}
	c.Target = args.NewAddr
	c.Transition(types.DsStateFaulted)
	return ok(struct{}{})
}

func (s *Server) handleShowWork(_ *Request) Response {
	return ok(s.guest.ShowWork())
}

func (s *Server) handleQueryUUID(_ *Request) Response {
	return ok(struct {
		UpstairsID string `json:"upstairs_id"`
	}{UpstairsID: s.upstairsID()})
}

func (s *Server) upstairsID() string {
	return s.id
}

func (s *Server) handleShutdown(_ *Request) Response {
	go func() {
		time.Sleep(100 * time.Millisecond)
		if err := s.Stop(); err != nil {
			s.log.Error("error during shutdown", "error", err)
		}
	}()
	return ok(struct {
		Message string `json:"message"`
	}{Message: "daemon shutting down"})
}
