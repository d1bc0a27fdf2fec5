package frontend

import "encoding/binary"

// truncateUDPResponse fits respBytes within maxSize by setting the TC flag
// and dropping every section but the question, per spec.md §4.6/RFC 1035
// §4.1.1. The client is expected to retry over TCP on seeing TC set.
func truncateUDPResponse(respBytes []byte, maxSize int) []byte {
	const headerSize = 12
	if maxSize <= 0 {
		maxSize = 512
	}
	if len(respBytes) <= maxSize || len(respBytes) < headerSize {
		return respBytes
	}

	qdcount := binary.BigEndian.Uint16(respBytes[4:6])
	header := buildTruncatedHeader(respBytes, qdcount)
	if qdcount == 0 {
		return header
	}

	questionEnd := findQuestionSectionEnd(respBytes, int(qdcount))
	if questionEnd <= headerSize || questionEnd > maxSize {
		return header
	}

	out := make([]byte, 0, questionEnd)
	out = append(out, header...)
	out = append(out, respBytes[headerSize:questionEnd]...)
	return out
}

func buildTruncatedHeader(respBytes []byte, qdcount uint16) []byte {
	const tcFlag uint16 = 1 << 9
	flags := binary.BigEndian.Uint16(respBytes[2:4]) | tcFlag

	h := make([]byte, 12)
	copy(h[0:2], respBytes[0:2])
	binary.BigEndian.PutUint16(h[2:4], flags)
	binary.BigEndian.PutUint16(h[4:6], qdcount)
	return h
}

func findQuestionSectionEnd(msg []byte, qdcount int) int {
	pos := 12
	for range qdcount {
		pos = skipQNAME(msg, pos)
		if pos > len(msg) {
			return len(msg)
		}
		if pos+4 > len(msg) {
			return len(msg)
		}
		pos += 4
	}
	return pos
}

func skipQNAME(msg []byte, pos int) int {
	for pos < len(msg) {
		labelLen := msg[pos]
		if labelLen == 0 {
			return pos + 1
		}
		if labelLen >= 0xC0 {
			if pos+2 > len(msg) {
				return len(msg)
			}
			return pos + 2
		}
		pos++
		if pos+int(labelLen) > len(msg) {
			return len(msg)
		}
		pos += int(labelLen)
	}
	return pos
}
