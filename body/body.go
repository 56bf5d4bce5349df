// Package body implements the unified streaming body abstraction:
// empty, full, incoming, boxed, and limited constructors over a single
// Body interface, so the rest of the engine never needs to know whether a
// request or response body is a byte slice already in memory or a stream
// still arriving off the wire.
package body

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pitabwire/relay/relayerr"
)

// Frame is one chunk produced by Frame(). Trailers carry no Data.
type Frame struct {
	Data     []byte
	Trailers map[string][]string
}

// Body is the lazy sequence of byte chunks shared by requests and responses.
// An implementation need only be safe for a single reader; bodies are not
// broadcastable.
type Body interface {
	// Collect reads the body to completion and returns it as a single slice.
	Collect(ctx context.Context) ([]byte, error)

	// Frame returns the next frame, or (nil, io.EOF) when exhausted.
	Frame(ctx context.Context) (*Frame, error)

	// SizeHint reports a lower bound and, when known, an upper bound on the
	// remaining byte count.
	SizeHint() (lower uint64, upper *uint64)
}

// dataStream adapts a Body into an io.Reader of its remaining data frames.
type dataStream struct {
	ctx context.Context
	b   Body
	buf []byte
}

func (s *dataStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		f, err := s.b.Frame(s.ctx)
		if err != nil {
			return 0, err
		}
		if f.Data != nil {
			s.buf = f.Data
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// IntoDataStream returns an io.Reader over b's remaining data frames,
// skipping trailer-only frames.
func IntoDataStream(ctx context.Context, b Body) io.Reader {
	return &dataStream{ctx: ctx, b: b}
}

// --- empty ---

type emptyBody struct{}

// Empty returns a body with zero bytes and a known length of zero.
func Empty() Body { return emptyBody{} }

func (emptyBody) Collect(context.Context) ([]byte, error) { return nil, nil }
func (emptyBody) Frame(context.Context) (*Frame, error)   { return nil, io.EOF }
func (emptyBody) SizeHint() (uint64, *uint64) {
	zero := uint64(0)
	return 0, &zero
}

// --- full ---

type fullBody struct {
	data []byte
	read bool
}

// Full returns a body backed by an already-materialized byte slice.
func Full(data []byte) Body { return &fullBody{data: data} }

func (f *fullBody) Collect(context.Context) ([]byte, error) {
	f.read = true
	return f.data, nil
}

func (f *fullBody) Frame(context.Context) (*Frame, error) {
	if f.read || len(f.data) == 0 {
		return nil, io.EOF
	}
	f.read = true
	return &Frame{Data: f.data}, nil
}

func (f *fullBody) SizeHint() (uint64, *uint64) {
	n := uint64(len(f.data))
	return n, &n
}

// --- incoming (a live wire stream) ---

// Stream is the minimal capability an incoming wire body needs: sequential
// reads and an optional known content length.
type Stream interface {
	io.Reader
	// ContentLength returns the declared length, or -1 when unknown
	// (chunked transfer encoding).
	ContentLength() int64
}

type incomingBody struct {
	mu       sync.Mutex
	stream   Stream
	eof      bool
	chunkCap int // next Frame's read size, 0 means use defaultChunk
}

const defaultChunk = 32 * 1024

// boundNextChunk caps the size of the next underlying stream read to n
// bytes. Limited calls this before each Frame so a ceiling smaller than
// defaultChunk bounds the socket read itself, not just the cumulative
// byte count checked after the read returns.
func (b *incomingBody) boundNextChunk(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunkCap = n
}

// Incoming wraps a live Stream (e.g. the remainder of an HTTP/1.1 or
// HTTP/2 request body still arriving off the socket) as a Body.
func Incoming(s Stream) Body { return &incomingBody{stream: s} }

func (b *incomingBody) Collect(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	for {
		f, err := b.Frame(ctx)
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
		buf.Write(f.Data)
	}
}

func (b *incomingBody) Frame(ctx context.Context) (*Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.eof {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, relayerr.Cancelled
	}

	size := defaultChunk
	if b.chunkCap > 0 && b.chunkCap < size {
		size = b.chunkCap
	}
	chunk := make([]byte, size)
	n, err := b.stream.Read(chunk)
	if n > 0 {
		if err == io.EOF {
			// Surface the final chunk now; report EOF on the next call.
			b.eof = true
			return &Frame{Data: chunk[:n]}, nil
		}
		if err != nil {
			return nil, relayerr.ClientError("reading request body: %v", err)
		}
		return &Frame{Data: chunk[:n]}, nil
	}
	if err == io.EOF {
		b.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, relayerr.ClientError("reading request body: %v", err)
	}
	return &Frame{}, nil
}

func (b *incomingBody) SizeHint() (uint64, *uint64) {
	cl := b.stream.ContentLength()
	if cl < 0 {
		return 0, nil
	}
	n := uint64(cl)
	return n, &n
}

// --- boxed (type-erased wrapper, for handlers returning a custom Body) ---

// Boxed returns b unchanged; it exists so call sites that build a Body from
// an interface value (as opposed to a concrete constructor above) read the
// same as the other constructors at the call site.
func Boxed(b Body) Body { return b }

// --- limited ---

var ErrTooLarge = relayerr.PayloadTooLarge("request body exceeds the configured limit")

type limitedBody struct {
	inner   Body
	max     int64
	read    atomic.Int64
}

// Limited wraps inner so that once more than max bytes have been read
// cumulatively, further reads fail with a payload-too-large error, before
// the offending bytes are retained anywhere.
func Limited(inner Body, max int64) Body {
	return &limitedBody{inner: inner, max: max}
}

func (l *limitedBody) Collect(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	for {
		f, err := l.Frame(ctx)
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
		buf.Write(f.Data)
	}
}

// chunkBounder lets Limited cap the size of a wrapped stream body's next
// read to the allowance remaining under max, so the limit bounds the
// socket read itself rather than only rejecting after an oversized read
// has already landed. In-memory bodies (Full, Empty, Boxed) don't
// implement it; they have nothing left to bound.
type chunkBounder interface {
	boundNextChunk(n int)
}

func (l *limitedBody) Frame(ctx context.Context) (*Frame, error) {
	if cb, ok := l.inner.(chunkBounder); ok {
		remaining := l.max - l.read.Load() + 1 // +1 so an oversized chunk is still detected in one read
		if remaining <= 0 || remaining > defaultChunk {
			remaining = defaultChunk
		}
		cb.boundNextChunk(int(remaining))
	}

	f, err := l.inner.Frame(ctx)
	if err != nil {
		return nil, err
	}
	if f.Data != nil {
		total := l.read.Add(int64(len(f.Data)))
		if total > l.max {
			return nil, ErrTooLarge
		}
	}
	return f, nil
}

func (l *limitedBody) SizeHint() (uint64, *uint64) {
	lower, upper := l.inner.SizeHint()
	maxU := uint64(l.max)
	if upper == nil || *upper > maxU {
		return lower, nil
	}
	return lower, upper
}
