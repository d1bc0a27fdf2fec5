package dnsmsg

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketMarshalParseRoundTrip(t *testing.T) {
	pkt := Packet{
		Header: Header{ID: 0xABCD, Flags: QRFlag | RDFlag | RAFlag},
		Questions: []Question{
			{Name: "flatten.example.com", Type: uint16(TypeA), Class: uint16(ClassIN)},
		},
		Answers: []Record{
			{Name: "flatten.example.com", Type: uint16(TypeA), Class: uint16(ClassIN), TTL: 120, Data: []byte{10, 0, 0, 1}},
		},
	}

	b, err := pkt.Marshal()
	require.NoError(t, err)

	got, err := ParsePacket(b)
	require.NoError(t, err)

	assert.Equal(t, pkt.Header.ID, got.Header.ID)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "flatten.example.com", got.Questions[0].Name)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, net.IP{10, 0, 0, 1}, got.Answers[0].IPv4())
	assert.Equal(t, uint32(120), got.Answers[0].TTL)
}

func TestPacketMarshalParseRoundTripCNAMEAndAAAA(t *testing.T) {
	pkt := Packet{
		Header: Header{ID: 1, Flags: QRFlag},
		Questions: []Question{
			{Name: "alias.example.com", Type: uint16(TypeAAAA), Class: uint16(ClassIN)},
		},
		Answers: []Record{
			{Name: "alias.example.com", Type: uint16(TypeCNAME), Class: uint16(ClassIN), TTL: 60, Data: "target.example.com"},
			{Name: "target.example.com", Type: uint16(TypeAAAA), Class: uint16(ClassIN), TTL: 60,
				Data: net.ParseIP("2001:db8::1").To16()},
		},
	}

	b, err := pkt.Marshal()
	require.NoError(t, err)

	got, err := ParsePacket(b)
	require.NoError(t, err)
	require.Len(t, got.Answers, 2)

	cname, ok := got.Answers[0].CNAMETarget()
	require.True(t, ok)
	assert.Equal(t, "target.example.com", cname)

	assert.Equal(t, net.ParseIP("2001:db8::1"), got.Answers[1].IPv6())
}

func TestParsePacketRejectsShortBuffer(t *testing.T) {
	_, err := ParsePacket([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestRCodeFromFlags(t *testing.T) {
	assert.Equal(t, RCodeNXDomain, RCodeFromFlags(0x8183))
	assert.Equal(t, RCodeNoError, RCodeFromFlags(0x8180))
}

func TestIsAddressType(t *testing.T) {
	assert.True(t, TypeA.IsAddressType())
	assert.True(t, TypeAAAA.IsAddressType())
	assert.False(t, TypeCNAME.IsAddressType())
}
