package internal

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// ErrReadLimit is returned once a LimitedReader has used up its budget.
var ErrReadLimit = errors.New("read limit reached")

// LimitedReader reads from R but stops after N bytes. Unlike io.LimitedReader
// an exhausted budget is reported as ErrReadLimit, so callers can tell an
// oversized peer from one that hung up.
type LimitedReader struct {
	R io.Reader // underlying reader
	N int64     // max bytes remaining
}

// Init initializes a LimitedReader.
func (l *LimitedReader) Init(src io.Reader, n int64) {
	l.R = src
	l.N = n
}

func (l *LimitedReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if l.N <= 0 {
		return 0, ErrReadLimit
	}
	if int64(len(p)) > l.N {
		p = p[:l.N]
	}
	n, err = l.R.Read(p)
	l.N -= int64(n)
	return
}

// HandshakeReader is a pooled, buffered reader over a byte budget. The buffer
// may read ahead of the frame being decoded; Buffered reports how much.
type HandshakeReader struct {
	*bufio.Reader
	lr LimitedReader
}

var handshakePool = sync.Pool{
	New: func() any {
		hr := &HandshakeReader{}
		hr.Reader = bufio.NewReaderSize(&hr.lr, 512)
		return hr
	},
}

// GetHandshakeReader returns a reader from the pool that reads at most limit
// bytes from src.
func GetHandshakeReader(src io.Reader, limit int64) *HandshakeReader {
	hr := handshakePool.Get().(*HandshakeReader)
	hr.lr.Init(src, limit)
	hr.Reader.Reset(&hr.lr)
	return hr
}

// Remaining reports how many bytes may still be pulled from the source.
func (hr *HandshakeReader) Remaining() int64 {
	return hr.lr.N
}

// Release drops the source and returns hr to the pool. hr must not be used
// afterwards.
func (hr *HandshakeReader) Release() {
	hr.lr.Init(nil, 0)
	hr.Reader.Reset(&hr.lr)
	handshakePool.Put(hr)
}
