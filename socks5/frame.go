package socks5

import (
	"bytes"
	"fmt"
	"io"
)

// Upper bounds of each frame, derived from the 1-byte length prefixes.
const (
	maxHandshakeRequestLen = 2 + 255
	maxUserPassRequestLen  = 1 + 1 + 255 + 1 + 255
	maxRequestLen          = 4 + 1 + 255 + 2

	// MaxHandshakeSize is the largest number of bytes a client can legally
	// send before the handshake completes.
	MaxHandshakeSize = maxHandshakeRequestLen + maxUserPassRequestLen + maxRequestLen
)

// readFull reads exactly len(buf) bytes. Any short read, including deadline
// expiry or a closed connection, is reported as ErrTruncatedFrame.
func readFull(src io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(src, buf)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrTruncatedFrame, err)
	}
	return n, nil
}

// writeFrame hands a fully built frame to dst in a single Write.
func writeFrame(dst io.Writer, frame []byte) (int64, error) {
	n, err := dst.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	return int64(n), err
}

// unmarshalFrame decodes exactly one frame from data.
func unmarshalFrame(data []byte, rf io.ReaderFrom) error {
	r := bytes.NewReader(data)
	if _, err := rf.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedLength, r.Len())
	}
	return nil
}
