package dnsmsg

import (
	"encoding/binary"
	"fmt"
)

// Question is one entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// Marshal appends the wire encoding of q to buf.
func (q Question) Marshal(buf []byte) ([]byte, error) {
	buf, err := EncodeName(buf, q.Name)
	if err != nil {
		return nil, err
	}
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], q.Type)
	binary.BigEndian.PutUint16(tail[2:4], q.Class)
	return append(buf, tail[:]...), nil
}

// ParseQuestion reads a Question from buf at *off, advancing *off.
// The name is lowercased, matching query-key canonicalization (spec.md §3).
func ParseQuestion(buf []byte, off *int) (Question, error) {
	name, err := DecodeName(buf, off)
	if err != nil {
		return Question{}, err
	}
	if *off+4 > len(buf) {
		return Question{}, fmt.Errorf("question: short buffer: %w", ErrMalformed)
	}
	q := Question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(buf[*off : *off+2]),
		Class: binary.BigEndian.Uint16(buf[*off+2 : *off+4]),
	}
	*off += 4
	return q, nil
}
