// Package transport provides the byte transports an HTTP/2 connection
// engine runs over, and the establishment logic that proves both ends speak
// HTTP/2 before any frame is exchanged.
//
// Two concrete variants exist: cleartext with prior knowledge (both sides
// agree out of band, the client just sends the connection preface) and TLS
// with application-protocol negotiation. Establishment performs no HTTP/2
// frame exchange; the engine's Start sends the initial SETTINGS.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"github.com/waieez/solicit/h2/frame"
)

// ALPNProtocols is the application-protocol list advertised during the TLS
// handshake, in preference order: the canonical identifier first, then the
// legacy draft identifiers for broad server compatibility. Read-only after
// initialization.
var ALPNProtocols = []string{"h2", "h2-16", "h2-15", "h2-14"}

// DefaultCleartextPort is used when a cleartext target names no port.
const DefaultCleartextPort = "80"

// Transport is an established, ordered, reliable duplex byte stream ready
// for frame exchange. The connection engine requires nothing else of it.
type Transport interface {
	io.ReadWriteCloser

	// Protocol reports the negotiated application protocol; "h2" for
	// cleartext prior-knowledge transports.
	Protocol() string
}

// NegotiationError reports that the TLS peer selected an application
// protocol outside the supported set.
type NegotiationError struct {
	// Proto is the protocol the peer selected; empty when it selected
	// none at all.
	Proto string
}

func (e NegotiationError) Error() string {
	if e.Proto == "" {
		return "transport: peer did not negotiate an HTTP/2 protocol"
	}
	return fmt.Sprintf("transport: peer negotiated unsupported protocol %q", e.Proto)
}

type netTransport struct {
	net.Conn
	proto string
}

func (t *netTransport) Protocol() string { return t.proto }

// Dial establishes a cleartext prior-knowledge transport: it connects to
// addr (port 80 when none is given) and immediately writes the 24-octet
// connection preface. Errors are wrapped lower-level I/O failures.
func Dial(ctx context.Context, addr string) (Transport, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultCleartextPort)
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	if err := writePreface(nc); err != nil {
		nc.Close()
		return nil, err
	}
	return &netTransport{Conn: nc, proto: "h2"}, nil
}

// DialTLS establishes a TLS transport to addr, negotiating the application
// protocol during the handshake. The advertised protocol list is fixed;
// any NextProtos on cfg are overwritten. Fails with a NegotiationError if
// the peer selects a protocol outside the supported set, with no transport
// returned.
func DialTLS(ctx context.Context, addr string, cfg *tls.Config) (Transport, error) {
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	cfg.NextProtos = ALPNProtocols
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err == nil {
			cfg.ServerName = host
		}
	}
	d := tls.Dialer{Config: cfg}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: tls dial %s: %w", addr, err)
	}
	tc := nc.(*tls.Conn)
	proto := tc.ConnectionState().NegotiatedProtocol
	if !supportedProto(proto) {
		tc.Close()
		return nil, NegotiationError{Proto: proto}
	}
	if err := writePreface(tc); err != nil {
		tc.Close()
		return nil, err
	}
	return &netTransport{Conn: tc, proto: proto}, nil
}

// Client wraps an already-connected cleartext stream, writing the preface.
// Used when the caller manages its own dialing.
func Client(nc net.Conn) (Transport, error) {
	if err := writePreface(nc); err != nil {
		return nil, err
	}
	return &netTransport{Conn: nc, proto: "h2"}, nil
}

// Server wraps an accepted cleartext stream, consuming and verifying the
// client preface.
func Server(nc net.Conn) (Transport, error) {
	buf := make([]byte, len(frame.ClientPreface))
	if _, err := io.ReadFull(nc, buf); err != nil {
		return nil, fmt.Errorf("transport: failed to read client preface: %w", err)
	}
	if string(buf) != frame.ClientPreface {
		return nil, fmt.Errorf("transport: bogus greeting from client: %q", buf)
	}
	return &netTransport{Conn: nc, proto: "h2"}, nil
}

func supportedProto(p string) bool {
	for _, v := range ALPNProtocols {
		if p == v {
			return true
		}
	}
	return false
}

func writePreface(w io.Writer) error {
	n, err := io.WriteString(w, frame.ClientPreface)
	if err != nil {
		return fmt.Errorf("transport: failed to write client preface: %w", err)
	}
	if n != len(frame.ClientPreface) {
		return fmt.Errorf("transport: preface mismatch, wrote %d bytes; want %d", n, len(frame.ClientPreface))
	}
	return nil
}
