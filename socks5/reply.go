package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reply represents a SOCKS5 server reply.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
type Reply struct {
	Version  byte      // VER; SOCKS protocol version (always 5)
	Reply    ReplyCode // REP; reply code
	Reserved byte      // RSV; must be 0x00
	Addr     Addr      // ATYP + BND.ADDR
	Port     uint16    // BND.PORT
}

// Init initializes a SOCKS5 reply.
func (r *Reply) Init(version byte, rep ReplyCode, reserved byte, addr Addr, port uint16) {
	r.Version = version
	r.Reply = rep
	r.Reserved = reserved
	r.Addr = addr
	r.Port = port
}

// Address returns a combined "host:port" string.
func (r *Reply) Address() string {
	return r.Addr.HostPort(r.Port)
}

// Succeeded reports whether REP is RepSuccess.
func (r *Reply) Succeeded() bool {
	return r.Reply == RepSuccess
}

// ValidateHeader validates the reply header fields.
func (r *Reply) ValidateHeader() error {
	if r.Version != SocksVersion {
		return versionError(r.Version, SocksVersion)
	}
	if r.Reserved != 0x00 {
		return ErrInvalidReserved
	}
	if !r.Reply.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidReplyCode, r.Reply)
	}
	if !r.Addr.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedAddrType, r.Addr.Type)
	}
	return nil
}

// Validate validates the full reply.
func (r *Reply) Validate() error {
	if err := r.ValidateHeader(); err != nil {
		return err
	}
	return r.Addr.Validate()
}

// ReadFrom reads a SOCKS5 reply from a Reader.
// Implements io.ReaderFrom.
func (r *Reply) ReadFrom(src io.Reader) (int64, error) {
	var hdr [4]byte

	n, err := readFull(src, hdr[:])
	total := int64(n)
	if err != nil {
		return total, err
	}

	r.Version = hdr[0]
	r.Reply = ReplyCode(hdr[1])
	r.Reserved = hdr[2]
	r.Addr = Addr{Type: AddrType(hdr[3])}

	if err := r.ValidateHeader(); err != nil {
		return total, err
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

	return total, nil
}

// AppendBinary appends the encoded reply to b.
func (r *Reply) AppendBinary(b []byte) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return b, err
	}
	b = append(b, r.Version, byte(r.Reply), r.Reserved, byte(r.Addr.Type))
	b, err := r.Addr.AppendBinary(b)
	if err != nil {
		return b, err
	}
	return binary.BigEndian.AppendUint16(b, r.Port), nil
}

// MarshalBinary returns the encoded reply.
func (r *Reply) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, 4+r.Addr.Len()+2))
}

// UnmarshalBinary decodes exactly one reply from data.
func (r *Reply) UnmarshalBinary(data []byte) error {
	return unmarshalFrame(data, r)
}

// WriteTo writes a SOCKS5 reply to a Writer.
// Implements io.WriterTo.
func (r *Reply) WriteTo(dst io.Writer) (int64, error) {
	buf, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return writeFrame(dst, buf)
}

// String returns a human-readable representation of the reply.
func (r *Reply) String() string {
	return fmt.Sprintf(
		"SOCKS5 Reply{Reply=%s, AddrType=%s, Host=%s, Port=%d, Version=%d, RSV=%#02x}",
		r.Reply, r.Addr.Type, r.Addr, r.Port, r.Version, r.Reserved,
	)
}
