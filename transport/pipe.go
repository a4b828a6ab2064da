package transport

import (
	"io"
	"sync"
)

// Pipe returns two connected in-memory transports. Writes are buffered and
// never block, which keeps two engines driving each other on one goroutine
// pair free of write-write deadlocks. Intended for tests.
func Pipe() (Transport, Transport) {
	a2b := newPipeBuffer()
	b2a := newPipeBuffer()
	a := &pipeTransport{r: b2a, w: a2b}
	b := &pipeTransport{r: a2b, w: b2a}
	return a, b
}

type pipeTransport struct {
	r, w *pipeBuffer
}

func (p *pipeTransport) Read(b []byte) (int, error)  { return p.r.read(b) }
func (p *pipeTransport) Write(b []byte) (int, error) { return p.w.write(b) }
func (p *pipeTransport) Protocol() string            { return "h2" }

func (p *pipeTransport) Close() error {
	p.w.close()
	p.r.close()
	return nil
}

// pipeBuffer is one direction of a Pipe: an unbounded byte queue.
type pipeBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	closed bool
}

func newPipeBuffer() *pipeBuffer {
	b := &pipeBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *pipeBuffer) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return len(p), nil
}

func (b *pipeBuffer) read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.data) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *pipeBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
