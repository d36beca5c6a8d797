package socks5_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/33TU/socksd/socks5"
)

func Test_UserPassReply_WriteTo_ReadFrom_RoundTrip(t *testing.T) {
	for _, status := range []byte{socks5.AuthStatusSuccess, socks5.AuthStatusFailure} {
		var orig socks5.UserPassReply
		orig.Init(socks5.AuthVersionUserPass, status)

		var buf bytes.Buffer
		if _, err := orig.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo failed: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), []byte{0x01, status}) {
			t.Fatalf("unexpected encoding % x", buf.Bytes())
		}

		var got socks5.UserPassReply
		if _, err := got.ReadFrom(&buf); err != nil {
			t.Fatalf("ReadFrom failed: %v", err)
		}
		if got != orig {
			t.Errorf("got %v, want %v", &got, &orig)
		}
		if got.Success() != (status == socks5.AuthStatusSuccess) {
			t.Errorf("Success() = %v for status %#02x", got.Success(), status)
		}
	}
}

func Test_UserPassReply_Validate(t *testing.T) {
	var r socks5.UserPassReply
	r.Init(socks5.SocksVersion, socks5.AuthStatusSuccess)
	if err := r.Validate(); !errors.Is(err, socks5.ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func Test_UserPassReply_String(t *testing.T) {
	var r socks5.UserPassReply
	r.Init(socks5.AuthVersionUserPass, 0x01)
	if s := r.String(); s == "" {
		t.Errorf("expected non-empty String() output")
	}
}
