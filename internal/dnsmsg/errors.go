// Package dnsmsg implements DNS wire-format encoding and decoding
// (RFC 1035 messages, RFC 6891 EDNS0) without any third-party DNS library.
package dnsmsg

import "errors"

// ErrMalformed is wrapped by every parse error in this package so callers
// can distinguish "bad input" from programmer errors with errors.Is.
var ErrMalformed = errors.New("dnsmsg: malformed message")
