package dnsmsg

import "encoding/binary"

// DefaultUDPPayloadSize is used when a request carries no OPT record.
const DefaultUDPPayloadSize = 512

// ednsDOFlag is the DO (DNSSEC OK) bit within the OPT record's extended flags.
const ednsDOFlag uint32 = 1 << 15

// OPTOption is a single EDNS0 option (RFC 6891 section 6.1.2). Only COOKIE
// and PADDING are forwarded; anything else is dropped when an OPT record is
// rebuilt, matching the proxy's "no extended options required" contract
// (spec.md §6).
type OPTOption struct {
	Code uint16
	Data []byte
}

const (
	optCodeCookie  uint16 = 10
	optCodePadding uint16 = 12
)

func isAllowedEDNSOption(code uint16) bool {
	return code == optCodeCookie || code == optCodePadding
}

// ExtractOPT finds the OPT record in additionals, if any, and reports the
// client's advertised UDP payload size and its DNSSEC-OK bit.
func ExtractOPT(additionals []Record) (udpSize uint16, dnssecOK bool, found bool) {
	for _, rr := range additionals {
		if RecordType(rr.Type) != TypeOPT {
			continue
		}
		udpSize = rr.Class // OPT overloads CLASS as requestor's UDP payload size
		dnssecOK = rr.TTL&ednsDOFlag != 0
		return udpSize, dnssecOK, true
	}
	return 0, false, false
}

// CreateOPT builds a minimal OPT record advertising udpSize and DO.
func CreateOPT(udpSize uint16, dnssecOK bool) Record {
	var ttl uint32
	if dnssecOK {
		ttl |= ednsDOFlag
	}
	opts, _ := MarshalEDNSOptions(nil)
	return Record{Name: "", Type: uint16(TypeOPT), Class: udpSize, TTL: ttl, Data: opts}
}

// ParseEDNSOptions decodes the OPT record's RDATA into a list of options,
// dropping anything not in the allow-list.
func ParseEDNSOptions(rdata []byte) []OPTOption {
	var out []OPTOption
	i := 0
	for i+4 <= len(rdata) {
		code := binary.BigEndian.Uint16(rdata[i : i+2])
		l := int(binary.BigEndian.Uint16(rdata[i+2 : i+4]))
		if i+4+l > len(rdata) {
			break
		}
		if isAllowedEDNSOption(code) {
			out = append(out, OPTOption{Code: code, Data: append([]byte(nil), rdata[i+4:i+4+l]...)})
		}
		i += 4 + l
	}
	return out
}

// MarshalEDNSOptions encodes options back into OPT RDATA bytes.
func MarshalEDNSOptions(opts []OPTOption) ([]byte, error) {
	var out []byte
	for _, o := range opts {
		if !isAllowedEDNSOption(o.Code) {
			continue
		}
		var head [4]byte
		binary.BigEndian.PutUint16(head[0:2], o.Code)
		binary.BigEndian.PutUint16(head[2:4], uint16(len(o.Data)))
		out = append(out, head[:]...)
		out = append(out, o.Data...)
	}
	return out, nil
}

// ClientMaxUDPSize returns the negotiated UDP payload size for a request
// packet: the OPT-advertised size if present and sane, else the RFC 1035
// default of 512 bytes.
func ClientMaxUDPSize(p Packet) uint16 {
	size, _, found := ExtractOPT(p.Additionals)
	if !found || size < DefaultUDPPayloadSize {
		return DefaultUDPPayloadSize
	}
	return size
}

// IsTruncated reports the TC flag of a raw wire message without fully
// parsing it.
func IsTruncated(msg []byte) bool {
	if len(msg) < HeaderSize {
		return false
	}
	flags := binary.BigEndian.Uint16(msg[2:4])
	return flags&TCFlag != 0
}
