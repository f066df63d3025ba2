package mcpquic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"

	"github.com/daniela2708/ganaderia/pkg/kit"
)

// Handler serves MCP sessions on QUIC connections accepted elsewhere; the
// chassis hands it every connection that negotiated ALPNProtocolMCP.
type Handler struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewHandler creates an MCP connection handler.
func NewHandler(mcpSrv *server.MCPServer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{mcpServer: mcpSrv, logger: logger}
}

// ServeConn runs one MCP session on the first stream the client opens.
func (h *Handler) ServeConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Warn("mcp accept stream failed", "remote", remote, "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return
	}

	err = h.ServeStream(ctx, stream, remote)
	switch {
	case errors.Is(err, ErrInvalidPreamble):
		stream.CancelRead(StreamErrorProtocolConfusion)
		stream.CancelWrite(StreamErrorProtocolConfusion)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid preamble")
	case errors.Is(err, ErrMessageTooLarge):
		stream.CancelRead(StreamErrorMessageTooLarge)
		conn.CloseWithError(ConnErrorProtocolViolation, "message too large")
	default:
		stream.Close()
		conn.CloseWithError(ConnErrorNoError, "")
	}
}

// ServeStream runs an MCP session over any bidirectional byte stream: the
// preamble, then one JSON-RPC message per line in each direction.
func (h *Handler) ServeStream(ctx context.Context, rw io.ReadWriter, remote string) error {
	if err := readPreamble(rw); err != nil {
		h.logger.Warn("mcp preamble rejected", "remote", remote, "error", err)
		return err
	}

	sess := &session{
		id:            "quic_" + uuid.NewString()[:8],
		notifications: make(chan mcp.JSONRPCNotification, 64),
		w:             rw,
	}
	if err := h.mcpServer.RegisterSession(ctx, sess); err != nil {
		h.logger.Error("mcp session register failed", "session", sess.id, "error", err)
		return err
	}
	defer h.mcpServer.UnregisterSession(ctx, sess.id)
	h.logger.Info("mcp session started", "session", sess.id, "remote", remote)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = kit.WithTransport(ctx, kit.TransportMCPQUIC)
	ctx = h.mcpServer.WithContext(ctx, sess)
	go sess.forwardNotifications(ctx)

	sc := bufio.NewScanner(rw)
	sc.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := h.mcpServer.HandleMessage(kit.WithRequestID(ctx, kit.NewRequestID()), json.RawMessage(line))
		if resp == nil {
			continue
		}
		if err := sess.send(resp); err != nil {
			h.logger.Warn("mcp write failed", "session", sess.id, "error", err)
			return err
		}
	}
	err := sc.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		err = ErrMessageTooLarge
	}
	if err != nil && ctx.Err() == nil {
		h.logger.Warn("mcp read failed", "session", sess.id, "error", err)
	}
	h.logger.Info("mcp session ended", "session", sess.id, "remote", remote)
	return err
}

// session implements server.ClientSession for one stream.
type session struct {
	id            string
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool
	mu            sync.Mutex
	w             io.Writer
}

func (s *session) SessionID() string                                   { return s.id }
func (s *session) NotificationChannel() chan<- mcp.JSONRPCNotification { return s.notifications }
func (s *session) Initialize()                                         { s.initialized.Store(true) }
func (s *session) Initialized() bool                                   { return s.initialized.Load() }

// send writes one message line; responses and notifications share the
// stream so writes are serialized.
func (s *session) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}

func (s *session) forwardNotifications(ctx context.Context) {
	for {
		select {
		case n := <-s.notifications:
			_ = s.send(n)
		case <-ctx.Done():
			return
		}
	}
}
