package dnsmsg

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed on-wire size of a DNS message header.
const HeaderSize = 12

// Header is the fixed 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Marshal appends the wire encoding of h to buf and returns the result.
func (h Header) Marshal(buf []byte) []byte {
	var b [HeaderSize]byte
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	binary.BigEndian.PutUint16(b[2:4], h.Flags)
	binary.BigEndian.PutUint16(b[4:6], h.QDCount)
	binary.BigEndian.PutUint16(b[6:8], h.ANCount)
	binary.BigEndian.PutUint16(b[8:10], h.NSCount)
	binary.BigEndian.PutUint16(b[10:12], h.ARCount)
	return append(buf, b[:]...)
}

// ParseHeader reads a Header from buf starting at *off, advancing *off.
func ParseHeader(buf []byte, off *int) (Header, error) {
	if *off+HeaderSize > len(buf) {
		return Header{}, fmt.Errorf("header: short buffer: %w", ErrMalformed)
	}
	h := Header{
		ID:      binary.BigEndian.Uint16(buf[*off : *off+2]),
		Flags:   binary.BigEndian.Uint16(buf[*off+2 : *off+4]),
		QDCount: binary.BigEndian.Uint16(buf[*off+4 : *off+6]),
		ANCount: binary.BigEndian.Uint16(buf[*off+6 : *off+8]),
		NSCount: binary.BigEndian.Uint16(buf[*off+8 : *off+10]),
		ARCount: binary.BigEndian.Uint16(buf[*off+10 : *off+12]),
	}
	*off += HeaderSize
	return h, nil
}
