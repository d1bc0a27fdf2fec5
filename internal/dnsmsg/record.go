package dnsmsg

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Record is a single resource record. Data's concrete type depends on Type:
//
//	A, AAAA, OPT, opaque types -> []byte (raw RDATA)
//	CNAME, NS, PTR             -> string (a domain name)
//	MX                         -> MXData
//	TXT                        -> []string (one entry per character-string)
//	SOA                        -> SOAData
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  any
}

// MXData is the RDATA of an MX record.
type MXData struct {
	Preference uint16
	Exchange   string
}

// SOAData is the RDATA of an SOA record.
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// IPv4 returns the A record's address, or nil if r is not a valid A record.
func (r Record) IPv4() net.IP {
	if RecordType(r.Type) != TypeA {
		return nil
	}
	b, ok := r.Data.([]byte)
	if !ok || len(b) != 4 {
		return nil
	}
	return net.IP(b)
}

// IPv6 returns the AAAA record's address, or nil if r is not a valid AAAA record.
func (r Record) IPv6() net.IP {
	if RecordType(r.Type) != TypeAAAA {
		return nil
	}
	b, ok := r.Data.([]byte)
	if !ok || len(b) != 16 {
		return nil
	}
	return net.IP(b)
}

// CNAMETarget returns the CNAME's target name and true, or ("", false) if r
// is not a CNAME record.
func (r Record) CNAMETarget() (string, bool) {
	if RecordType(r.Type) != TypeCNAME {
		return "", false
	}
	s, ok := r.Data.(string)
	return s, ok
}

// Marshal appends the wire encoding of r to buf.
func (r Record) Marshal(buf []byte) ([]byte, error) {
	buf, err := EncodeName(buf, r.Name)
	if err != nil {
		return nil, err
	}
	var head [8]byte
	binary.BigEndian.PutUint16(head[0:2], r.Type)
	binary.BigEndian.PutUint16(head[2:4], r.Class)
	binary.BigEndian.PutUint32(head[4:8], r.TTL)
	buf = append(buf, head[:]...)

	rdata, err := marshalRData(r)
	if err != nil {
		return nil, err
	}
	var rdlen [2]byte
	binary.BigEndian.PutUint16(rdlen[:], uint16(len(rdata)))
	buf = append(buf, rdlen[:]...)
	return append(buf, rdata...), nil
}

func marshalRData(r Record) ([]byte, error) {
	switch RecordType(r.Type) {
	case TypeA:
		b, ok := r.Data.([]byte)
		if !ok || len(b) != 4 {
			return nil, fmt.Errorf("record: bad A rdata: %w", ErrMalformed)
		}
		return append([]byte(nil), b...), nil
	case TypeAAAA:
		b, ok := r.Data.([]byte)
		if !ok || len(b) != 16 {
			return nil, fmt.Errorf("record: bad AAAA rdata: %w", ErrMalformed)
		}
		return append([]byte(nil), b...), nil
	case TypeCNAME, TypeNS, TypePTR:
		name, ok := r.Data.(string)
		if !ok {
			return nil, fmt.Errorf("record: bad name rdata for type %d: %w", r.Type, ErrMalformed)
		}
		return EncodeName(nil, name)
	case TypeMX:
		mx, ok := r.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("record: bad MX rdata: %w", ErrMalformed)
		}
		var pref [2]byte
		binary.BigEndian.PutUint16(pref[:], mx.Preference)
		out := append([]byte(nil), pref[:]...)
		return EncodeName(out, mx.Exchange)
	case TypeTXT:
		strs, ok := r.Data.([]string)
		if !ok {
			return nil, fmt.Errorf("record: bad TXT rdata: %w", ErrMalformed)
		}
		return marshalTXT(strs)
	case TypeSOA:
		soa, ok := r.Data.(SOAData)
		if !ok {
			return nil, fmt.Errorf("record: bad SOA rdata: %w", ErrMalformed)
		}
		return marshalSOA(soa)
	default:
		b, ok := r.Data.([]byte)
		if !ok {
			return nil, fmt.Errorf("record: unsupported rdata for type %d: %w", r.Type, ErrMalformed)
		}
		return append([]byte(nil), b...), nil
	}
}

func marshalTXT(strs []string) ([]byte, error) {
	var out []byte
	for _, s := range strs {
		for len(s) > 0 {
			chunk := s
			if len(chunk) > 255 {
				chunk = chunk[:255]
			}
			out = append(out, byte(len(chunk)))
			out = append(out, chunk...)
			s = s[len(chunk):]
		}
		if len(s) == 0 && len(out) == 0 {
			out = append(out, 0)
		}
	}
	if len(out) == 0 {
		out = append(out, 0)
	}
	return out, nil
}

func marshalSOA(soa SOAData) ([]byte, error) {
	out, err := EncodeName(nil, soa.MName)
	if err != nil {
		return nil, err
	}
	out, err = EncodeName(out, soa.RName)
	if err != nil {
		return nil, err
	}
	var nums [20]byte
	binary.BigEndian.PutUint32(nums[0:4], soa.Serial)
	binary.BigEndian.PutUint32(nums[4:8], soa.Refresh)
	binary.BigEndian.PutUint32(nums[8:12], soa.Retry)
	binary.BigEndian.PutUint32(nums[12:16], soa.Expire)
	binary.BigEndian.PutUint32(nums[16:20], soa.Minimum)
	return append(out, nums[:]...), nil
}

// ParseRecord reads one Record from buf at *off, advancing *off.
func ParseRecord(buf []byte, off *int) (Record, error) {
	name, err := DecodeName(buf, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(buf) {
		return Record{}, fmt.Errorf("record: short header: %w", ErrMalformed)
	}
	rtype := binary.BigEndian.Uint16(buf[*off : *off+2])
	rclass := binary.BigEndian.Uint16(buf[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(buf[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(buf[*off+8 : *off+10]))
	*off += 10
	if *off+rdlen > len(buf) {
		return Record{}, fmt.Errorf("record: rdata overruns buffer: %w", ErrMalformed)
	}
	rdataEnd := *off + rdlen
	data, err := parseRData(buf, *off, rdataEnd, RecordType(rtype))
	if err != nil {
		return Record{}, err
	}
	*off = rdataEnd
	return Record{Name: name, Type: rtype, Class: rclass, TTL: ttl, Data: data}, nil
}

func parseRData(buf []byte, start, end int, t RecordType) (any, error) {
	switch t {
	case TypeA:
		if end-start != 4 {
			return nil, fmt.Errorf("record: bad A length: %w", ErrMalformed)
		}
		return append([]byte(nil), buf[start:end]...), nil
	case TypeAAAA:
		if end-start != 16 {
			return nil, fmt.Errorf("record: bad AAAA length: %w", ErrMalformed)
		}
		return append([]byte(nil), buf[start:end]...), nil
	case TypeCNAME, TypeNS, TypePTR:
		off := start
		name, err := DecodeName(buf, &off)
		if err != nil {
			return nil, err
		}
		return name, nil
	case TypeMX:
		if end-start < 3 {
			return nil, fmt.Errorf("record: bad MX length: %w", ErrMalformed)
		}
		pref := binary.BigEndian.Uint16(buf[start : start+2])
		off := start + 2
		exch, err := DecodeName(buf, &off)
		if err != nil {
			return nil, err
		}
		return MXData{Preference: pref, Exchange: exch}, nil
	case TypeTXT:
		return parseTXT(buf[start:end])
	case TypeSOA:
		off := start
		mname, err := DecodeName(buf, &off)
		if err != nil {
			return nil, err
		}
		rname, err := DecodeName(buf, &off)
		if err != nil {
			return nil, err
		}
		if off+20 > end {
			return nil, fmt.Errorf("record: bad SOA length: %w", ErrMalformed)
		}
		soa := SOAData{
			MName:   mname,
			RName:   rname,
			Serial:  binary.BigEndian.Uint32(buf[off : off+4]),
			Refresh: binary.BigEndian.Uint32(buf[off+4 : off+8]),
			Retry:   binary.BigEndian.Uint32(buf[off+8 : off+12]),
			Expire:  binary.BigEndian.Uint32(buf[off+12 : off+16]),
			Minimum: binary.BigEndian.Uint32(buf[off+16 : off+20]),
		}
		return soa, nil
	default:
		return append([]byte(nil), buf[start:end]...), nil
	}
}

func parseTXT(rdata []byte) ([]string, error) {
	var out []string
	i := 0
	for i < len(rdata) {
		n := int(rdata[i])
		if i+1+n > len(rdata) {
			return nil, fmt.Errorf("record: truncated TXT character-string: %w", ErrMalformed)
		}
		out = append(out, string(rdata[i+1:i+1+n]))
		i += 1 + n
	}
	return out, nil
}
