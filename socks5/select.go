package socks5

import "slices"

// SelectMethod picks the authentication method for a greeting.
//
// supported is walked in the server's order of preference and the first
// entry the client also offered wins, so the server rather than the client
// decides the security policy. Methods the server cannot drive (GSSAPI,
// private codes, 0xFF) are never selected. When nothing matches it returns
// MethodNoAcceptable and false.
func SelectMethod(supported, offered []Method) (Method, bool) {
	for _, m := range supported {
		if m.Implemented() && slices.Contains(offered, m) {
			return m, true
		}
	}
	return MethodNoAcceptable, false
}
