package socks5

import (
	"fmt"
	"io"
)

// UserPassReply represents a username/password authentication reply.
type UserPassReply struct {
	Version byte // VER (should be AuthVersionUserPass = 0x01)
	Status  byte // STATUS (0x00 = success, otherwise failure)
}

// Init initializes a user/password authentication reply with the given version and status.
func (r *UserPassReply) Init(version, status byte) {
	r.Version = version
	r.Status = status
}

// Validate ensures the reply is structurally valid.
func (r *UserPassReply) Validate() error {
	if r.Version != AuthVersionUserPass {
		return versionError(r.Version, AuthVersionUserPass)
	}
	return nil
}

// ReadFrom reads a username/password authentication reply from an io.Reader.
// Implements io.ReaderFrom.
func (r *UserPassReply) ReadFrom(src io.Reader) (int64, error) {
	var buf [2]byte

	n, err := readFull(src, buf[:])
	if err != nil {
		return int64(n), err
	}

	r.Version = buf[0]
	r.Status = buf[1]

	return int64(n), r.Validate()
}

// AppendBinary appends the encoded reply to b.
func (r *UserPassReply) AppendBinary(b []byte) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return b, err
	}
	return append(b, r.Version, r.Status), nil
}

// MarshalBinary returns the encoded reply.
func (r *UserPassReply) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, 2))
}

// UnmarshalBinary decodes exactly one reply from data.
func (r *UserPassReply) UnmarshalBinary(data []byte) error {
	return unmarshalFrame(data, r)
}

// WriteTo writes the authentication reply to an io.Writer.
// Implements io.WriterTo.
func (r *UserPassReply) WriteTo(dst io.Writer) (int64, error) {
	buf, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return writeFrame(dst, buf)
}

// Success returns true if STATUS == 0x00.
func (r *UserPassReply) Success() bool {
	return r.Status == AuthStatusSuccess
}

// String returns a human-readable representation.
func (r *UserPassReply) String() string {
	var status string
	if r.Success() {
		status = "success"
	} else {
		status = fmt.Sprintf("failure(0x%02x)", r.Status)
	}

	return fmt.Sprintf(
		"UserPassReply{Version=%d, Status=%s}",
		r.Version, status,
	)
}
