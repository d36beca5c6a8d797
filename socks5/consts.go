package socks5

import "fmt"

// Protocol versions.
const (
	SocksVersion        = 5 // VER of every RFC 1928 frame
	AuthVersionUserPass = 1 // VER of the RFC 1929 sub-negotiation
)

// Username/password sub-negotiation status codes.
const (
	AuthStatusSuccess = 0x00
	AuthStatusFailure = 0x01
)

// Method is an authentication method code (METHOD).
type Method byte

// Authentication methods for the initial greeting.
const (
	MethodNoAuth       Method = 0x00 // No authentication required
	MethodGSSAPI       Method = 0x01 // GSS-API (recognised, never selected)
	MethodUserPass     Method = 0x02 // Username/password
	MethodNoAcceptable Method = 0xFF // No acceptable methods (server only)
)

// Implemented reports whether the server can drive the method's sub-negotiation.
func (m Method) Implemented() bool {
	return m == MethodNoAuth || m == MethodUserPass
}

// IsPrivate reports whether m lies in the range reserved for private methods.
func (m Method) IsPrivate() bool {
	return m >= 0x80 && m <= 0xFE
}

func (m Method) String() string {
	switch m {
	case MethodNoAuth:
		return "NoAuth"
	case MethodGSSAPI:
		return "GSSAPI"
	case MethodUserPass:
		return "UserPass"
	case MethodNoAcceptable:
		return "NoAcceptable"
	}
	if m.IsPrivate() {
		return fmt.Sprintf("Private(0x%02x)", byte(m))
	}
	return fmt.Sprintf("Unknown(0x%02x)", byte(m))
}

// Command is a request command code (CMD).
type Command byte

// Command codes for client requests.
const (
	CmdConnect      Command = 1 // Establish a TCP/IP stream connection
	CmdBind         Command = 2 // Establish a TCP/IP port binding
	CmdUDPAssociate Command = 3 // Associate UDP relay
)

// Valid reports whether c is one of the commands defined by RFC 1928.
func (c Command) Valid() bool {
	return c >= CmdConnect && c <= CmdUDPAssociate
}

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdBind:
		return "BIND"
	case CmdUDPAssociate:
		return "UDP_ASSOCIATE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
	}
}

// AddrType is an address type tag (ATYP).
type AddrType byte

// Address types used in requests and replies.
const (
	AddrTypeIPv4   AddrType = 1 // IPv4 address
	AddrTypeDomain AddrType = 3 // Domain name
	AddrTypeIPv6   AddrType = 4 // IPv6 address
)

// Valid reports whether t is a known address type.
func (t AddrType) Valid() bool {
	return t == AddrTypeIPv4 || t == AddrTypeDomain || t == AddrTypeIPv6
}

func (t AddrType) String() string {
	switch t {
	case AddrTypeIPv4:
		return "IPv4"
	case AddrTypeDomain:
		return "DOMAIN"
	case AddrTypeIPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// ReplyCode is a server reply code (REP).
type ReplyCode byte

// Reply codes for server responses.
const (
	RepSuccess              ReplyCode = 0 // Request granted
	RepGeneralFailure       ReplyCode = 1 // General SOCKS server failure
	RepConnectionNotAllowed ReplyCode = 2 // Connection not allowed by ruleset
	RepNetworkUnreachable   ReplyCode = 3 // Network unreachable
	RepHostUnreachable      ReplyCode = 4 // Host unreachable
	RepConnectionRefused    ReplyCode = 5 // Connection refused
	RepTTLExpired           ReplyCode = 6 // TTL expired
	RepCommandNotSupported  ReplyCode = 7 // Command not supported
	RepAddrTypeNotSupported ReplyCode = 8 // Address type not supported
)

// Valid reports whether r is an assigned reply code (0x00-0x08).
func (r ReplyCode) Valid() bool {
	return r <= RepAddrTypeNotSupported
}

func (r ReplyCode) String() string {
	switch r {
	case RepSuccess:
		return "SUCCESS"
	case RepGeneralFailure:
		return "GENERAL_FAILURE"
	case RepConnectionNotAllowed:
		return "CONNECTION_NOT_ALLOWED"
	case RepNetworkUnreachable:
		return "NETWORK_UNREACHABLE"
	case RepHostUnreachable:
		return "HOST_UNREACHABLE"
	case RepConnectionRefused:
		return "CONNECTION_REFUSED"
	case RepTTLExpired:
		return "TTL_EXPIRED"
	case RepCommandNotSupported:
		return "COMMAND_NOT_SUPPORTED"
	case RepAddrTypeNotSupported:
		return "ADDR_TYPE_NOT_SUPPORTED"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(r))
	}
}
