package dnsmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildQueryBytes(t *testing.T, qname string) []byte {
	t.Helper()
	p := Packet{
		Header:    Header{ID: 42, Flags: RDFlag},
		Questions: []Question{{Name: qname, Type: uint16(TypeA), Class: uint16(ClassIN)}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}

func TestParseRequestBoundedAcceptsValidQuery(t *testing.T) {
	b := buildQueryBytes(t, "example.com")
	p, err := ParseRequestBounded(b)
	require.NoError(t, err)
	assert.Equal(t, "example.com", p.Questions[0].Name)
}

func TestParseRequestBoundedRejectsResponse(t *testing.T) {
	p := Packet{
		Header:    Header{ID: 1, Flags: QRFlag | RDFlag},
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: uint16(ClassIN)}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)

	_, err = ParseRequestBounded(b)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRequestBoundedRejectsOversized(t *testing.T) {
	_, err := ParseRequestBounded(make([]byte, MaxIncomingMessageSize+1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRequestBoundedRejectsNoQuestion(t *testing.T) {
	p := Packet{Header: Header{ID: 1, Flags: RDFlag}}
	b, err := p.Marshal()
	require.NoError(t, err)

	_, err = ParseRequestBounded(b)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBuildErrorResponseEchoesRequest(t *testing.T) {
	req := Packet{
		Header:    Header{ID: 0x99, Flags: RDFlag},
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: uint16(ClassIN)}},
	}

	resp := BuildErrorResponse(req, uint16(RCodeServFail))

	assert.Equal(t, req.Header.ID, resp.Header.ID)
	assert.Equal(t, req.Questions, resp.Questions)
	assert.Equal(t, RCodeServFail, RCodeFromFlags(resp.Header.Flags))
	assert.NotZero(t, resp.Header.Flags&QRFlag)
	assert.NotZero(t, resp.Header.Flags&RDFlag)
}
