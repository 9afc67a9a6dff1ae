// Package email validates email address syntax for both protocol sides.
package email

import (
	"net/mail"
	"strings"
)

// Valid reports whether addr is a plain, syntactically valid email
// address. Display names, angle brackets and comments are rejected: the
// protocol deals in bare addresses only.
func Valid(addr string) bool {
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return false
	}
	at := strings.LastIndex(addr, "@")
	return at > 0 && strings.Contains(addr[at+1:], ".")
}
