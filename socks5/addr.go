package socks5

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
)

// Address codec errors.
var (
	errShortAddress  = fmt.Errorf("%w: %w", ErrMalformedAddress, ErrTruncatedFrame)
	errEmptyDomain   = fmt.Errorf("%w: %w: empty domain", ErrMalformedLength, ErrMalformedAddress)
	errDomainTooLong = fmt.Errorf("%w: domain longer than 255 bytes", ErrMalformedLength)
)

// Addr is the address field shared by requests and replies (DST.ADDR and
// BND.ADDR). Exactly one of IP and Domain is meaningful, selected by Type.
// Domain is an opaque byte string; it is never normalised or resolved here.
type Addr struct {
	Type   AddrType
	IP     netip.Addr
	Domain string
}

// ZeroAddr is 0.0.0.0, the bound address used when no relay identity exists.
var ZeroAddr = Addr{Type: AddrTypeIPv4, IP: netip.IPv4Unspecified()}

// AddrFromIP returns an IPv4 Addr for IPv4 and IPv4-mapped addresses and an
// IPv6 Addr otherwise.
func AddrFromIP(ip netip.Addr) Addr {
	ip = ip.WithZone("")
	if ip.Is4() || ip.Is4In6() {
		return Addr{Type: AddrTypeIPv4, IP: ip.Unmap()}
	}
	return Addr{Type: AddrTypeIPv6, IP: ip}
}

// AddrFromDomain returns a domain Addr.
func AddrFromDomain(name string) Addr {
	return Addr{Type: AddrTypeDomain, Domain: name}
}

// ParseAddr returns an IP Addr when host is a literal IP, else a domain Addr.
func ParseAddr(host string) Addr {
	if ip, err := netip.ParseAddr(host); err == nil {
		return AddrFromIP(ip)
	}
	return AddrFromDomain(host)
}

// AddrFromNetAddr converts a socket address into an Addr and port.
func AddrFromNetAddr(na net.Addr) (Addr, uint16, error) {
	switch a := na.(type) {
	case *net.TCPAddr:
		ap := a.AddrPort()
		return AddrFromIP(ap.Addr()), ap.Port(), nil
	case *net.UDPAddr:
		ap := a.AddrPort()
		return AddrFromIP(ap.Addr()), ap.Port(), nil
	case nil:
		return Addr{}, 0, fmt.Errorf("%w: nil address", ErrMalformedAddress)
	}

	host, portStr, err := net.SplitHostPort(na.String())
	if err != nil {
		return Addr{}, 0, fmt.Errorf("%w: %w", ErrMalformedAddress, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, 0, fmt.Errorf("%w: invalid port %q", ErrMalformedAddress, portStr)
	}
	return ParseAddr(host), uint16(port), nil
}

// Validate checks that the address can be encoded.
func (a Addr) Validate() error {
	switch a.Type {
	case AddrTypeIPv4:
		if !a.IP.Is4() {
			return fmt.Errorf("%w: %v is not an IPv4 address", ErrMalformedAddress, a.IP)
		}
	case AddrTypeIPv6:
		if !a.IP.Is6() || a.IP.Zone() != "" {
			return fmt.Errorf("%w: %v is not an unzoned IPv6 address", ErrMalformedAddress, a.IP)
		}
	case AddrTypeDomain:
		if len(a.Domain) == 0 {
			return errEmptyDomain
		}
		if len(a.Domain) > 255 {
			return errDomainTooLong
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAddrType, a.Type)
	}
	return nil
}

// Len returns the encoded length of the address body (without ATYP).
func (a Addr) Len() int {
	switch a.Type {
	case AddrTypeIPv4:
		return 4
	case AddrTypeIPv6:
		return 16
	case AddrTypeDomain:
		return 1 + len(a.Domain)
	}
	return 0
}

// AppendBinary appends the encoded address body to b.
// Implements encoding.BinaryAppender.
func (a Addr) AppendBinary(b []byte) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return b, err
	}
	switch a.Type {
	case AddrTypeIPv4:
		ip := a.IP.As4()
		b = append(b, ip[:]...)
	case AddrTypeIPv6:
		ip := a.IP.As16()
		b = append(b, ip[:]...)
	case AddrTypeDomain:
		b = append(b, byte(len(a.Domain)))
		b = append(b, a.Domain...)
	}
	return b, nil
}

// MarshalBinary returns the encoded address body.
func (a Addr) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, a.Len()))
}

// DecodeAddr decodes an address body of type t from the front of buf and
// reports how many bytes it consumed.
func DecodeAddr(buf []byte, t AddrType) (Addr, int, error) {
	switch t {
	case AddrTypeIPv4:
		if len(buf) < 4 {
			return Addr{}, 0, errShortAddress
		}
		return Addr{Type: t, IP: netip.AddrFrom4([4]byte(buf[:4]))}, 4, nil

	case AddrTypeIPv6:
		if len(buf) < 16 {
			return Addr{}, 0, errShortAddress
		}
		return Addr{Type: t, IP: netip.AddrFrom16([16]byte(buf[:16]))}, 16, nil

	case AddrTypeDomain:
		if len(buf) < 1 {
			return Addr{}, 0, errShortAddress
		}
		n := int(buf[0])
		if n == 0 {
			return Addr{}, 0, errEmptyDomain
		}
		if len(buf) < 1+n {
			return Addr{}, 0, errShortAddress
		}
		return Addr{Type: t, Domain: string(buf[1 : 1+n])}, 1 + n, nil
	}
	return Addr{}, 0, fmt.Errorf("%w: %s", ErrUnsupportedAddrType, t)
}

// ReadAddr reads an address body of type t from src, consuming exactly the
// bytes the address declares.
func ReadAddr(src io.Reader, t AddrType) (Addr, int64, error) {
	switch t {
	case AddrTypeIPv4:
		var ip [4]byte
		n, err := readFull(src, ip[:])
		if err != nil {
			return Addr{}, int64(n), err
		}
		return Addr{Type: t, IP: netip.AddrFrom4(ip)}, int64(n), nil

	case AddrTypeIPv6:
		var ip [16]byte
		n, err := readFull(src, ip[:])
		if err != nil {
			return Addr{}, int64(n), err
		}
		return Addr{Type: t, IP: netip.AddrFrom16(ip)}, int64(n), nil

	case AddrTypeDomain:
		var ln [1]byte
		n, err := readFull(src, ln[:])
		if err != nil {
			return Addr{}, int64(n), err
		}
		if ln[0] == 0 {
			return Addr{}, int64(n), errEmptyDomain
		}
		buf := make([]byte, ln[0])
		n2, err := readFull(src, buf)
		total := int64(n + n2)
		if err != nil {
			return Addr{}, total, err
		}
		return Addr{Type: t, Domain: string(buf)}, total, nil
	}
	return Addr{}, 0, fmt.Errorf("%w: %s", ErrUnsupportedAddrType, t)
}

// String returns the host form of the address.
func (a Addr) String() string {
	switch a.Type {
	case AddrTypeIPv4, AddrTypeIPv6:
		return a.IP.String()
	case AddrTypeDomain:
		return a.Domain
	}
	return fmt.Sprintf("Addr(%s)", a.Type)
}

// HostPort joins the address and port into "host:port".
func (a Addr) HostPort(port uint16) string {
	return net.JoinHostPort(a.String(), strconv.Itoa(int(port)))
}
