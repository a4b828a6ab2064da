package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waieez/solicit/h2/frame"
)

// selfSignedCert generates an ephemeral server certificate for loopback
// TLS tests.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

func TestDialTLSNegotiatesH2(t *testing.T) {
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{selfSignedCert(t)},
		NextProtos:   []string{"h2"},
	})
	require.NoError(t, err)
	defer ln.Close()

	prefaceCh := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, len(frame.ClientPreface))
		if _, err := io.ReadFull(c, buf); err == nil {
			prefaceCh <- string(buf)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := DialTLS(ctx, ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "h2", tr.Protocol())

	select {
	case got := <-prefaceCh:
		assert.Equal(t, frame.ClientPreface, got)
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the preface")
	}
}

// A server that negotiates no HTTP/2 protocol yields a NegotiationError
// and no transport.
func TestDialTLSNegotiationFailure(t *testing.T) {
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{selfSignedCert(t)},
		// No NextProtos: the handshake completes without selecting any
		// application protocol.
	})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.(*tls.Conn).Handshake()
			c.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := DialTLS(ctx, ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	assert.Nil(t, tr)
	var ne NegotiationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "", ne.Proto)
}

func TestCleartextDialWritesPreface(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	prefaceCh := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, len(frame.ClientPreface))
		if _, err := io.ReadFull(c, buf); err == nil {
			prefaceCh <- string(buf)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "h2", tr.Protocol())

	select {
	case got := <-prefaceCh:
		assert.Equal(t, frame.ClientPreface, got)
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the preface")
	}
}

func TestServerVerifiesPreface(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go io.WriteString(a, frame.ClientPreface)
	tr, err := Server(b)
	require.NoError(t, err)
	assert.Equal(t, "h2", tr.Protocol())

	c, d := net.Pipe()
	defer c.Close()
	defer d.Close()
	go io.WriteString(c, "GET / HTTP/1.1\r\nHost: x\r\n\r\n....")
	_, err = Server(d)
	assert.Error(t, err)
}

func TestALPNProtocolOrder(t *testing.T) {
	// The canonical identifier leads; legacy drafts follow for server
	// compatibility.
	require.Equal(t, []string{"h2", "h2-16", "h2-15", "h2-14"}, ALPNProtocols)
	assert.True(t, supportedProto("h2-14"))
	assert.False(t, supportedProto("http/1.1"))
	assert.False(t, supportedProto(""))
}

func TestPipeCarriesBothDirections(t *testing.T) {
	a, b := Pipe()
	_, err := a.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	_, err = b.Write([]byte("pong"))
	require.NoError(t, err)
	_, err = io.ReadFull(a, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))

	// Buffered data survives a close; then EOF.
	_, err = a.Write([]byte("tail"))
	require.NoError(t, err)
	a.Close()
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(buf))
	_, err = b.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipeWriteNeverBlocks(t *testing.T) {
	a, _ := Pipe()
	// Far more than any kernel buffer; must return immediately.
	big := make([]byte, 1<<20)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			a.Write(big)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipe write blocked")
	}
}
