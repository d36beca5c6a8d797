package socks5

import (
	"fmt"
	"io"
)

// Errors for username/password authentication requests.
var (
	ErrEmptyUserPassUsername = fmt.Errorf("%w: username cannot be empty", ErrMalformedLength)
	ErrEmptyUserPassPassword = fmt.Errorf("%w: password cannot be empty", ErrMalformedLength)
	ErrUserPassTooLong       = fmt.Errorf("%w: username or password too long (max 255)", ErrMalformedLength)
)

// UserPassRequest represents a username/password authentication request (RFC 1929).
//
//	+----+------+----------+------+----------+
//	|VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+----+------+----------+------+----------+
//	| 1  |  1   | 1 to 255 |  1   | 1 to 255 |
//	+----+------+----------+------+----------+
type UserPassRequest struct {
	Version  byte   // VER (should always be AuthVersionUserPass = 0x01)
	Username string // UNAME (1–255 bytes)
	Password string // PASSWD (1–255 bytes)
}

// Init initializes the authentication request with username and password.
func (r *UserPassRequest) Init(version byte, username, password string) {
	r.Version = version
	r.Username = username
	r.Password = password
}

// Validate checks for protocol correctness.
func (r *UserPassRequest) Validate() error {
	if r.Version != AuthVersionUserPass {
		return versionError(r.Version, AuthVersionUserPass)
	}
	if len(r.Username) == 0 {
		return ErrEmptyUserPassUsername
	}
	if len(r.Password) == 0 {
		return ErrEmptyUserPassPassword
	}
	if len(r.Username) > 255 || len(r.Password) > 255 {
		return ErrUserPassTooLong
	}
	return nil
}

// ReadFrom reads a username/password authentication request from a reader.
// Implements io.ReaderFrom.
func (r *UserPassRequest) ReadFrom(src io.Reader) (int64, error) {
	var hdr [2]byte

	// Read VER and ULEN
	n, err := readFull(src, hdr[:])
	total := int64(n)
	if err != nil {
		return total, err
	}

	r.Version = hdr[0]
	if r.Version != AuthVersionUserPass {
		return total, versionError(r.Version, AuthVersionUserPass)
	}
	if hdr[1] == 0 {
		return total, ErrEmptyUserPassUsername
	}

	// UNAME followed by PLEN
	buf := make([]byte, int(hdr[1])+1)
	n, err = readFull(src, buf)
	total += int64(n)
	if err != nil {
		return total, err
	}
	r.Username = string(buf[:hdr[1]])

	plen := int(buf[hdr[1]])
	if plen == 0 {
		return total, ErrEmptyUserPassPassword
	}

	password := make([]byte, plen)
	n, err = readFull(src, password)
	total += int64(n)
	if err != nil {
		return total, err
	}
	r.Password = string(password)

	return total, nil
}

// AppendBinary appends the encoded request to b.
func (r *UserPassRequest) AppendBinary(b []byte) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return b, err
	}
	b = append(b, r.Version, byte(len(r.Username)))
	b = append(b, r.Username...)
	b = append(b, byte(len(r.Password)))
	b = append(b, r.Password...)
	return b, nil
}

// MarshalBinary returns the encoded request.
func (r *UserPassRequest) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, 3+len(r.Username)+len(r.Password)))
}

// UnmarshalBinary decodes exactly one request from data.
func (r *UserPassRequest) UnmarshalBinary(data []byte) error {
	return unmarshalFrame(data, r)
}

// WriteTo writes the username/password request to a writer.
// Implements io.WriterTo.
func (r *UserPassRequest) WriteTo(dst io.Writer) (int64, error) {
	buf, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return writeFrame(dst, buf)
}

// String returns a human-readable representation. The password is never printed.
func (r *UserPassRequest) String() string {
	return fmt.Sprintf(
		"UserPassRequest{Version=%d, Username=%q, PasswordLen=%d}",
		r.Version, r.Username, len(r.Password),
	)
}
