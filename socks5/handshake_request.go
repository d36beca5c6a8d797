package socks5

import (
	"fmt"
	"io"
	"slices"
)

// Errors for SOCKS5 handshake requests.
var (
	ErrNoMethodsProvided = fmt.Errorf("%w: no authentication methods provided", ErrMalformedLength)
	ErrTooManyMethods    = fmt.Errorf("%w: more than 255 authentication methods", ErrMalformedLength)
)

// HandshakeRequest represents the initial SOCKS5 client handshake (method negotiation).
//
//	+----+----------+----------+
//	|VER | NMETHODS | METHODS  |
//	+----+----------+----------+
//	| 1  |    1     | 1 to 255 |
//	+----+----------+----------+
type HandshakeRequest struct {
	Version byte     // VER (should always be 0x05)
	Methods []Method // METHODS; NMETHODS is len(Methods)
}

// Init initializes a handshake request with the given methods.
func (h *HandshakeRequest) Init(version byte, methods ...Method) {
	h.Version = version
	h.Methods = slices.Clone(methods)
}

// Validate ensures the handshake request is structurally valid.
func (h *HandshakeRequest) Validate() error {
	if h.Version != SocksVersion {
		return versionError(h.Version, SocksVersion)
	}
	if len(h.Methods) == 0 {
		return ErrNoMethodsProvided
	}
	if len(h.Methods) > 255 {
		return ErrTooManyMethods
	}
	return nil
}

// Offers reports whether the client listed m.
func (h *HandshakeRequest) Offers(m Method) bool {
	return slices.Contains(h.Methods, m)
}

// ReadFrom reads a SOCKS5 handshake request from an io.Reader.
// Implements io.ReaderFrom.
func (h *HandshakeRequest) ReadFrom(src io.Reader) (int64, error) {
	var hdr [2]byte

	n, err := readFull(src, hdr[:])
	if err != nil {
		return int64(n), err
	}

	h.Version = hdr[0]
	if h.Version != SocksVersion {
		return int64(n), versionError(h.Version, SocksVersion)
	}
	if hdr[1] == 0 {
		return int64(n), ErrNoMethodsProvided
	}

	methods := make([]byte, hdr[1])
	n2, err := readFull(src, methods)
	total := int64(n + n2)
	if err != nil {
		return total, err
	}

	h.Methods = make([]Method, len(methods))
	for i, m := range methods {
		h.Methods[i] = Method(m)
	}
	return total, nil
}

// AppendBinary appends the encoded request to b.
func (h *HandshakeRequest) AppendBinary(b []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return b, err
	}
	b = append(b, h.Version, byte(len(h.Methods)))
	for _, m := range h.Methods {
		b = append(b, byte(m))
	}
	return b, nil
}

// MarshalBinary returns the encoded request.
func (h *HandshakeRequest) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, 2+len(h.Methods)))
}

// UnmarshalBinary decodes exactly one request from data.
func (h *HandshakeRequest) UnmarshalBinary(data []byte) error {
	return unmarshalFrame(data, h)
}

// WriteTo writes the handshake request to an io.Writer.
// Implements io.WriterTo.
func (h *HandshakeRequest) WriteTo(dst io.Writer) (int64, error) {
	buf, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return writeFrame(dst, buf)
}

// String returns a human-readable representation of the handshake request.
func (h *HandshakeRequest) String() string {
	return fmt.Sprintf(
		"SOCKS5 HandshakeRequest{Version=%d, Methods=%v}",
		h.Version, h.Methods,
	)
}
