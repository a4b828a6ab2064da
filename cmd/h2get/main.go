// h2get dials a URL over HTTP/2 (cleartext prior-knowledge or TLS with
// protocol negotiation), issues a single GET and streams the response body
// to stdout.
//
//	h2get https://example.com/
//	h2get -plaintext http://localhost:8080/health
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/waieez/solicit"
	"github.com/waieez/solicit/h2"
	"github.com/waieez/solicit/h2/hpack"
)

var (
	plaintext = flag.Bool("plaintext", false, "use cleartext prior-knowledge instead of TLS")
	insecure  = flag.Bool("insecure", false, "skip TLS certificate verification")
	timeout   = flag.Duration("timeout", 30*time.Second, "overall request timeout")
	cfgFile   = flag.String("config", "", "optional YAML config file for connection settings")
)

// getSession implements h2.Session for one request with no body.
type getSession struct {
	log  zerolog.Logger
	done chan struct{}
}

func (s *getSession) OnHeaders(streamID uint32, headers []hpack.HeaderField, endStream bool) {
	for _, f := range headers {
		if f.Name == ":status" {
			s.log.Info().Str("status", f.Value).Msg("response")
		} else if !f.IsPseudo() {
			s.log.Debug().Str(f.Name, f.Value).Msg("header")
		}
	}
}

func (s *getSession) OnData(streamID uint32, data []byte, endStream bool) {
	os.Stdout.Write(data)
}

func (s *getSession) OnStreamClosed(streamID uint32, reason h2.CloseReason) {
	s.log.Debug().Uint32("stream", streamID).Stringer("reason", reason).Msg("stream closed")
	close(s.done)
}

func (s *getSession) NewStreamsAllowed() bool { return true }

func (s *getSession) NextOutboundChunk(streamID uint32) ([]byte, bool) { return nil, false }

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if flag.NArg() != 1 {
		log.Fatal().Msg("usage: h2get [flags] URL")
	}
	u, err := url.Parse(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid url")
	}
	host := u.Host
	if u.Port() == "" && u.Scheme == "https" {
		host = net.JoinHostPort(u.Hostname(), "443")
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	var cfg *solicit.Config
	if *cfgFile != "" {
		data, err := os.ReadFile(*cfgFile)
		if err != nil {
			log.Fatal().Err(err).Msg("reading config")
		}
		if cfg, err = solicit.LoadConfig(data); err != nil {
			log.Fatal().Err(err).Msg("parsing config")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sess := &getSession{log: log, done: make(chan struct{})}

	var cc *h2.ClientConn
	if *plaintext || u.Scheme == "http" {
		cc, err = solicit.Dial(ctx, host, sess, cfg)
	} else {
		cc, err = solicit.DialTLS(ctx, host, &tls.Config{InsecureSkipVerify: *insecure}, sess, cfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("connect failed")
	}
	defer cc.Close()

	scheme := "https"
	if *plaintext || u.Scheme == "http" {
		scheme = "http"
	}
	streamID, err := cc.StartRequest([]hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: scheme},
		{Name: ":path", Value: path},
		{Name: ":authority", Value: u.Host},
		{Name: "user-agent", Value: "h2get"},
	}, false)
	if err != nil {
		log.Fatal().Err(err).Msg("request failed")
	}
	log.Debug().Uint32("stream", streamID).Msg("request sent")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-sess.done:
			return nil
		case <-cc.Done():
			return cc.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("request did not complete")
	}
}
