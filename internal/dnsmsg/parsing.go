package dnsmsg

import "fmt"

// Anti-DoS bounds on an incoming client message.
const (
	MaxIncomingMessageSize = 4096
	MaxQuestions           = 4
	MaxRRPerSection        = 100
	MaxTotalRR             = 200
)

// ParseRequestBounded parses a client request with extra validation beyond
// ParsePacket: size ceiling, QR=0 (it must be a query), opcode must be
// standard query, and section-count sanity.
func ParseRequestBounded(reqBytes []byte) (Packet, error) {
	if len(reqBytes) > MaxIncomingMessageSize {
		return Packet{}, fmt.Errorf("parsing: request too large: %w", ErrMalformed)
	}
	if len(reqBytes) < HeaderSize {
		return Packet{}, fmt.Errorf("parsing: request too short: %w", ErrMalformed)
	}

	p, err := ParsePacket(reqBytes)
	if err != nil {
		return Packet{}, err
	}
	if p.Header.Flags&QRFlag != 0 {
		return Packet{}, fmt.Errorf("parsing: not a query: %w", ErrMalformed)
	}
	if (p.Header.Flags&OpcodeMask)>>OpcodeSh != OpcodeQuery {
		return Packet{}, fmt.Errorf("parsing: unsupported opcode: %w", ErrMalformed)
	}
	if len(p.Questions) == 0 {
		return Packet{}, fmt.Errorf("parsing: no question: %w", ErrMalformed)
	}
	total := len(p.Answers) + len(p.Authorities) + len(p.Additionals)
	if total > MaxTotalRR {
		return Packet{}, fmt.Errorf("parsing: too many records: %w", ErrMalformed)
	}
	return p, nil
}

// buildResponseFlags derives response flags from a request, setting QR=1,
// copying opcode and RD, setting RA=1 (we do recurse on the client's behalf),
// and stamping rcode.
func buildResponseFlags(reqFlags uint16, rcode uint16) uint16 {
	flags := QRFlag
	flags |= reqFlags & (OpcodeMask | RDFlag)
	flags |= RAFlag
	flags |= rcode & RCodeMask
	return flags
}

// BuildErrorResponse synthesizes an empty-answer response carrying rcode,
// echoing the request's ID, opcode, RD flag and question (if any).
func BuildErrorResponse(req Packet, rcode uint16) Packet {
	return Packet{
		Header: Header{
			ID:    req.Header.ID,
			Flags: buildResponseFlags(req.Header.Flags, rcode),
		},
		Questions: req.Questions,
	}
}
