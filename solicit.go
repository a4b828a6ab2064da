// Package solicit is a client-side HTTP/2 protocol engine. It drives one
// HTTP/2 connection over an abstract byte transport, multiplexing streams
// and reporting connection and stream events to a caller-supplied Session.
//
// The root package is the thin embedding surface: configuration and the
// dial helpers that run establishment and hand back a driven ClientConn.
// The protocol machinery lives in the h2, h2/frame, h2/hpack and transport
// packages.
package solicit

import (
	"context"
	"crypto/tls"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/waieez/solicit/h2"
	"github.com/waieez/solicit/transport"
)

// Config carries the connection knobs an embedder may tune. The zero value
// selects protocol defaults. Field names follow the JSON/YAML convention
// so configs can be loaded from files.
type Config struct {
	// InitialWindowSize is the per-stream receive window, minimum 65535.
	InitialWindowSize uint32 `json:"initialWindowSize,omitempty"`
	// InitialConnWindowSize is the connection-level receive window.
	InitialConnWindowSize uint32 `json:"initialConnWindowSize,omitempty"`
	// MaxFrameSize is the largest frame payload we accept, 16384..2^24-1.
	MaxFrameSize uint32 `json:"maxFrameSize,omitempty"`
	// MaxHeaderListSize bounds decoded header lists.
	MaxHeaderListSize uint32 `json:"maxHeaderListSize,omitempty"`
	// HeaderTableSize sizes the peer's header compression table.
	HeaderTableSize uint32 `json:"headerTableSize,omitempty"`

	WriteBufferSize int `json:"writeBufferSize,omitempty"`
	ReadBufferSize  int `json:"readBufferSize,omitempty"`
}

// LoadConfig parses a YAML (or JSON) config document.
func LoadConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("solicit: invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) engine() *h2.Config {
	if c == nil {
		return nil
	}
	return &h2.Config{
		InitialWindowSize:     c.InitialWindowSize,
		InitialConnWindowSize: c.InitialConnWindowSize,
		MaxFrameSize:          c.MaxFrameSize,
		MaxHeaderListSize:     c.MaxHeaderListSize,
		HeaderTableSize:       c.HeaderTableSize,
		WriteBufferSize:       c.WriteBufferSize,
		ReadBufferSize:        c.ReadBufferSize,
	}
}

// Dial establishes a cleartext prior-knowledge connection to addr (port 80
// when none is given) and returns a started ClientConn: establishment and
// the initial SETTINGS are done and the read loop is running. The
// connection reports its demise on Done/Err.
func Dial(ctx context.Context, addr string, sess h2.Session, cfg *Config) (*h2.ClientConn, error) {
	tr, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return startConn(ctx, tr, sess, cfg)
}

// DialTLS establishes a TLS connection to addr, negotiating HTTP/2 via the
// fixed protocol list, and returns a started ClientConn.
func DialTLS(ctx context.Context, addr string, tlsCfg *tls.Config, sess h2.Session, cfg *Config) (*h2.ClientConn, error) {
	tr, err := transport.DialTLS(ctx, addr, tlsCfg)
	if err != nil {
		return nil, err
	}
	return startConn(ctx, tr, sess, cfg)
}

func startConn(ctx context.Context, tr transport.Transport, sess h2.Session, cfg *Config) (*h2.ClientConn, error) {
	cc := h2.NewClientConn(tr, sess, cfg.engine())
	if err := cc.Start(); err != nil {
		tr.Close()
		return nil, err
	}
	go cc.Run(ctx)
	return cc, nil
}
