package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsflatd/internal/dnsmsg"
)

func buildAnswerPacket(t *testing.T, numA int) []byte {
	t.Helper()
	p := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: 7, Flags: dnsmsg.QRFlag | dnsmsg.RDFlag},
		Questions: []dnsmsg.Question{{Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
	}
	for i := 0; i < numA; i++ {
		p.Answers = append(p.Answers, dnsmsg.Record{
			Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN),
			TTL: 60, Data: []byte{10, 0, 0, byte(i + 1)},
		})
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}

func TestTruncateUDPResponsePassesThroughWhenUnderLimit(t *testing.T) {
	b := buildAnswerPacket(t, 1)
	out := truncateUDPResponse(b, 512)
	assert.Equal(t, b, out)
}

func TestTruncateUDPResponseSetsTCFlagAndDropsAnswers(t *testing.T) {
	b := buildAnswerPacket(t, 20)
	out := truncateUDPResponse(b, 64)

	require.True(t, len(out) < len(b))
	flags := uint16(out[2])<<8 | uint16(out[3])
	assert.NotZero(t, flags&dnsmsg.TCFlag, "truncated response must have TC set")

	p, err := dnsmsg.ParsePacket(out)
	require.NoError(t, err)
	assert.Empty(t, p.Answers, "every RR section is dropped on truncation")
	assert.Len(t, p.Questions, 1, "the question section survives truncation")
}

func TestTruncateUDPResponseDefaultsMaxSizeWhenNonPositive(t *testing.T) {
	b := buildAnswerPacket(t, 1)
	out := truncateUDPResponse(b, 0)
	assert.Equal(t, b, out, "a small single-answer packet fits under the default 512-byte limit")
}

func TestTruncateUDPResponseLeavesShortBufferUntouched(t *testing.T) {
	short := []byte{0, 1, 2}
	out := truncateUDPResponse(short, 512)
	assert.Equal(t, short, out)
}
