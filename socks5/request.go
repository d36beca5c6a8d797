package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Request represents a SOCKS5 CONNECT/BIND/UDP ASSOCIATE request.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
type Request struct {
	Version  byte    // VER; SOCKS protocol version (always 5)
	Command  Command // CMD; CONNECT, BIND or UDP ASSOCIATE
	Reserved byte    // RSV; reserved byte (must be 0x00)
	Addr     Addr    // ATYP + DST.ADDR
	Port     uint16  // DST.PORT
}

// Init initializes a SOCKS5 request.
func (r *Request) Init(version byte, command Command, reserved byte, addr Addr, port uint16) {
	r.Version = version
	r.Command = command
	r.Reserved = reserved
	r.Addr = addr
	r.Port = port
}

// Address returns the full "host:port" string form of the destination.
func (r *Request) Address() string {
	return r.Addr.HostPort(r.Port)
}

// ValidateHeader validates the SOCKS5 request header.
func (r *Request) ValidateHeader() error {
	if r.Version != SocksVersion {
		return versionError(r.Version, SocksVersion)
	}
	if r.Reserved != 0x00 {
		return ErrInvalidReserved
	}
	if !r.Command.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, r.Command)
	}
	if !r.Addr.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedAddrType, r.Addr.Type)
	}
	return nil
}

// Validate validates the full SOCKS5 request.
func (r *Request) Validate() error {
	if err := r.ValidateHeader(); err != nil {
		return err
	}
	return r.Addr.Validate()
}

// ReadFrom reads a SOCKS5 request from a Reader.
// Implements the io.ReaderFrom interface.
//
// An unknown command is reported only after the whole frame has been read,
// so the decoded fields remain usable for a CommandNotSupported reply.
func (r *Request) ReadFrom(src io.Reader) (int64, error) {
	var hdr [4]byte

	n, err := readFull(src, hdr[:])
	total := int64(n)
	if err != nil {
		return total, err
	}

	r.Version = hdr[0]
	r.Command = Command(hdr[1])
	r.Reserved = hdr[2]
	r.Addr = Addr{Type: AddrType(hdr[3])}

	if r.Version != SocksVersion {
		return total, versionError(r.Version, SocksVersion)
	}
	if r.Reserved != 0x00 {
		return total, ErrInvalidReserved
	}

	addr, n2, err := ReadAddr(src, r.Addr.Type)
	total += n2
	if err != nil {
		return total, err
	}
	r.Addr = addr

	var portBuf [2]byte
	n, err = readFull(src, portBuf[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	r.Port = binary.BigEndian.Uint16(portBuf[:])

	if !r.Command.Valid() {
		return total, fmt.Errorf("%w: %s", ErrUnsupportedCommand, r.Command)
	}
	return total, nil
}

// AppendBinary appends the encoded request to b.
func (r *Request) AppendBinary(b []byte) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return b, err
	}
	b = append(b, r.Version, byte(r.Command), r.Reserved, byte(r.Addr.Type))
	b, err := r.Addr.AppendBinary(b)
	if err != nil {
		return b, err
	}
	return binary.BigEndian.AppendUint16(b, r.Port), nil
}

// MarshalBinary returns the encoded request.
func (r *Request) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, 4+r.Addr.Len()+2))
}

// UnmarshalBinary decodes exactly one request from data.
func (r *Request) UnmarshalBinary(data []byte) error {
	return unmarshalFrame(data, r)
}

// WriteTo writes a SOCKS5 request to a Writer.
// Implements the io.WriterTo interface.
func (r *Request) WriteTo(dst io.Writer) (int64, error) {
	buf, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return writeFrame(dst, buf)
}

// String returns a string representation of the SOCKS5 Request.
func (r *Request) String() string {
	return fmt.Sprintf(
		"SOCKS5 Request{Cmd=%s, AddrType=%s, Host=%s, Port=%d, Version=%d, RSV=%#02x}",
		r.Command, r.Addr.Type, r.Addr, r.Port, r.Version, r.Reserved,
	)
}
