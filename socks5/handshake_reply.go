package socks5

import (
	"fmt"
	"io"
)

// HandshakeReply represents the server's response to a SOCKS5 handshake request.
type HandshakeReply struct {
	Version byte   // VER (should always be 0x05)
	Method  Method // METHOD; selected authentication method
}

// Init initializes a handshake reply with the given method.
func (h *HandshakeReply) Init(version byte, method Method) {
	h.Version = version
	h.Method = method
}

// Validate ensures the handshake reply is valid.
func (h *HandshakeReply) Validate() error {
	if h.Version != SocksVersion {
		return versionError(h.Version, SocksVersion)
	}
	return nil
}

// Accepted reports whether the server picked a method.
func (h *HandshakeReply) Accepted() bool {
	return h.Method != MethodNoAcceptable
}

// ReadFrom reads a SOCKS5 handshake reply from an io.Reader.
// Implements io.ReaderFrom.
func (h *HandshakeReply) ReadFrom(src io.Reader) (int64, error) {
	var buf [2]byte

	n, err := readFull(src, buf[:])
	if err != nil {
		return int64(n), err
	}

	h.Version = buf[0]
	h.Method = Method(buf[1])

	return int64(n), h.Validate()
}

// AppendBinary appends the encoded reply to b.
func (h *HandshakeReply) AppendBinary(b []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return b, err
	}
	return append(b, h.Version, byte(h.Method)), nil
}

// MarshalBinary returns the encoded reply.
func (h *HandshakeReply) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, 2))
}

// UnmarshalBinary decodes exactly one reply from data.
func (h *HandshakeReply) UnmarshalBinary(data []byte) error {
	return unmarshalFrame(data, h)
}

// WriteTo writes the handshake reply to an io.Writer.
// Implements io.WriterTo.
func (h *HandshakeReply) WriteTo(dst io.Writer) (int64, error) {
	buf, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return writeFrame(dst, buf)
}

// String returns a human-readable representation of the handshake reply.
func (h *HandshakeReply) String() string {
	return fmt.Sprintf(
		"SOCKS5 HandshakeReply{Version=%d, Method=%s}",
		h.Version, h.Method,
	)
}
