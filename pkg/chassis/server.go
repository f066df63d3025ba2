// Package chassis runs the dashboard API on one port with two transports.
//
//   - TCP: HTTP/1.1 and HTTP/2 over TLS, curl-friendly
//   - UDP: QUIC, demultiplexed by ALPN
//     "h3"               -> HTTP/3, same handler as TCP
//     "ganaderia-mcp-v1" -> MCP JSON-RPC over a QUIC stream
//
// HTTP responses advertise HTTP/3 through Alt-Svc. Without cert files a
// self-signed ECDSA P-256 certificate is generated. With Plain set only a
// cleartext HTTP/1.1 listener is started.
package chassis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/daniela2708/ganaderia/pkg/mcpquic"
)

// QUIC close codes for connections the chassis refuses.
const (
	connErrMCPDisabled quic.ApplicationErrorCode = 0x10
	connErrBadALPN     quic.ApplicationErrorCode = 0x11
)

// Server is the unified listener pair.
type Server struct {
	addr       string
	logger     *slog.Logger
	tlsCfg     *tls.Config
	plain      bool
	handler    http.Handler
	mcpHandler *mcpquic.Handler
	h3Server   *http3.Server
	tcpServer  *http.Server
	quicLn     *quic.Listener
	mu         sync.Mutex
}

// Config holds the chassis settings.
type Config struct {
	Addr      string      // TCP and UDP listen address, e.g. ":8443"
	TLS       *tls.Config // nil: load CertFile/KeyFile or self-sign
	CertFile  string
	KeyFile   string
	Plain     bool              // cleartext HTTP/1.1 only, no QUIC
	Handler   http.Handler      // dashboard API router
	MCPServer *server.MCPServer // nil disables MCP over QUIC
	Logger    *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		return nil, errors.New("chassis: nil handler")
	}

	s := &Server{
		addr:   cfg.Addr,
		logger: cfg.Logger,
		plain:  cfg.Plain,
	}

	if !cfg.Plain {
		tlsCfg := cfg.TLS
		if tlsCfg == nil {
			var err error
			if cfg.CertFile != "" && cfg.KeyFile != "" {
				if tlsCfg, err = LoadTLSConfig(cfg.CertFile, cfg.KeyFile); err != nil {
					return nil, fmt.Errorf("load TLS cert: %w", err)
				}
				cfg.Logger.Info("TLS: certificate loaded", "cert", cfg.CertFile)
			} else {
				hosts := certHosts(cfg.Addr)
				if tlsCfg, err = DevTLSConfig(hosts...); err != nil {
					return nil, fmt.Errorf("generate dev TLS: %w", err)
				}
				cfg.Logger.Warn("TLS: self-signed dev certificate generated", "hosts", tlsCfg.Certificates[0].Leaf.DNSNames)
			}
		}
		s.tlsCfg = tlsCfg
		if cfg.MCPServer != nil {
			s.mcpHandler = mcpquic.NewHandler(cfg.MCPServer, cfg.Logger)
		}
	}

	s.handler = securityHeaders(cfg.Handler)
	if !cfg.Plain {
		s.handler = altSvc(cfg.Addr, s.handler)
	}
	return s, nil
}

// Handler returns the wrapped HTTP handler served on every transport.
func (s *Server) Handler() http.Handler { return s.handler }

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// altSvc advertises HTTP/3 on the same port.
func altSvc(addr string, next http.Handler) http.Handler {
	_, port, _ := net.SplitHostPort(addr)
	if port == "" {
		port = "8443"
	}
	value := fmt.Sprintf(`h3=":%s"; ma=86400`, port)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is done or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.tcpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.plain {
		s.mu.Unlock()
		return s.startPlain(ctx)
	}

	tcpTLS := s.tlsCfg.Clone()
	tcpTLS.NextProtos = []string{"h2", "http/1.1"}
	s.tcpServer.TLSConfig = tcpTLS

	ln, err := quic.ListenAddr(s.addr, s.tlsCfg, mcpquic.QUICConfig())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("QUIC listen: %w", err)
	}
	s.quicLn = ln
	s.h3Server = &http3.Server{Handler: s.handler}
	s.mu.Unlock()

	s.logger.Info("chassis started",
		"addr", s.addr,
		"tcp", "HTTP/1.1+HTTP/2 (TLS)",
		"udp", "QUIC (HTTP/3 + MCP)",
		"mcp_quic", s.mcpHandler != nil,
	)

	errCh := make(chan error, 2)
	go func() {
		tcpLn, err := tls.Listen("tcp", s.addr, tcpTLS)
		if err != nil {
			errCh <- fmt.Errorf("TCP listen: %w", err)
			return
		}
		if err := s.tcpServer.Serve(tcpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("TCP: %w", err)
		}
	}()
	go s.acceptQUIC(ctx, ln, errCh)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) startPlain(ctx context.Context) error {
	s.logger.Info("chassis started", "addr", s.addr, "tcp", "HTTP/1.1 (cleartext)")
	errCh := make(chan error, 1)
	go func() {
		if err := s.tcpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("TCP: %w", err)
		}
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// acceptQUIC routes each connection by its negotiated ALPN.
func (s *Server) acceptQUIC(ctx context.Context, ln *quic.Listener, errCh chan<- error) {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				errCh <- fmt.Errorf("QUIC accept: %w", err)
			}
			return
		}

		switch alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn {
		case http3.NextProtoH3:
			go func() {
				if err := s.h3Server.ServeQUICConn(conn); err != nil {
					s.logger.Debug("HTTP/3 conn done", "remote", conn.RemoteAddr(), "error", err)
				}
			}()
		case mcpquic.ALPNProtocolMCP:
			if s.mcpHandler == nil {
				conn.CloseWithError(connErrMCPDisabled, "MCP not enabled")
				continue
			}
			go s.mcpHandler.ServeConn(ctx, conn)
		default:
			s.logger.Warn("unknown ALPN, closing", "alpn", alpn, "remote", conn.RemoteAddr())
			conn.CloseWithError(connErrBadALPN, "unsupported ALPN: "+alpn)
		}
	}
}

// Stop shuts down every listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.tcpServer != nil {
		errs = append(errs, s.tcpServer.Shutdown(ctx))
	}
	if s.quicLn != nil {
		errs = append(errs, s.quicLn.Close())
	}
	if s.h3Server != nil {
		errs = append(errs, s.h3Server.Close())
	}
	s.logger.Info("chassis stopped")
	return errors.Join(errs...)
}
