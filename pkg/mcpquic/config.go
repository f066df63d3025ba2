// Package mcpquic carries MCP JSON-RPC over a single bidirectional QUIC
// stream. Connections negotiate the ALPN protocol ganaderia-mcp-v1 and the
// client opens its stream with a 4-byte preamble before newline-delimited
// JSON-RPC messages.
package mcpquic

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	ALPNProtocolMCP    = "ganaderia-mcp-v1"
	Preamble           = "GMC1"
	MaxMessageSize     = 4 * 1024 * 1024
	DefaultIdleTimeout = 5 * time.Minute
	DefaultKeepAlive   = 30 * time.Second
)

// Stream and connection error codes.
const (
	StreamErrorProtocolConfusion quic.StreamErrorCode = 0x02
	StreamErrorMessageTooLarge   quic.StreamErrorCode = 0x03

	ConnErrorNoError           quic.ApplicationErrorCode = 0x00
	ConnErrorUnsupportedALPN   quic.ApplicationErrorCode = 0x01
	ConnErrorProtocolViolation quic.ApplicationErrorCode = 0x03
)

var (
	ErrInvalidPreamble = errors.New("invalid stream preamble")
	ErrUnsupportedALPN = errors.New("ALPN negotiation failed: " + ALPNProtocolMCP + " not selected")
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
)

// QUICConfig returns the transport settings shared by client and server.
func QUICConfig() *quic.Config {
	return &quic.Config{
		MaxStreamReceiveWindow:     10 * 1024 * 1024,
		MaxConnectionReceiveWindow: 50 * 1024 * 1024,
		MaxIdleTimeout:             DefaultIdleTimeout,
		KeepAlivePeriod:            DefaultKeepAlive,
	}
}

// ClientTLSConfig returns a TLS 1.3 client config offering only the MCP ALPN.
// insecure skips certificate verification for self-signed dev servers.
func ClientTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{ALPNProtocolMCP},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
	}
}

func readPreamble(r io.Reader) error {
	got := make([]byte, len(Preamble))
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("read preamble: %w", err)
	}
	if !bytes.Equal(got, []byte(Preamble)) {
		return fmt.Errorf("%w: got %q", ErrInvalidPreamble, got)
	}
	return nil
}

func writePreamble(w io.Writer) error {
	if _, err := io.WriteString(w, Preamble); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	return nil
}
