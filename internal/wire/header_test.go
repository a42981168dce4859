package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Header{
		{Kind: ReqOwn, ID: 1, Aux: 7},
		{Kind: SetValue, ID: 42, Aux: 4096},
		{Kind: BarrierRelease, ID: 0, Aux: 0},
		{Kind: InvalAck, ID: 0xFFFFFFFF, Aux: 0xFFFFFFFFFFFFFFFF},
	}
	for _, h := range cases {
		buf := Marshal(h)
		require.Len(t, buf, HeaderSize)
		got, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestEncodeIsLittleEndian(t *testing.T) {
	buf := Marshal(Header{Kind: ReqOwn, ID: 0x01020304, Aux: 1})
	// kind field: ReqOwn == 1
	assert.Equal(t, byte(1), buf[0])
	assert.Equal(t, byte(0), buf[1])
	// id field, little-endian 0x01020304
	assert.Equal(t, byte(0x04), buf[4])
	assert.Equal(t, byte(0x03), buf[5])
	assert.Equal(t, byte(0x02), buf[6])
	assert.Equal(t, byte(0x01), buf[7])
}

func TestKindHasPayload(t *testing.T) {
	assert.True(t, SetValue.HasPayload())
	assert.False(t, ReqOwn.HasPayload())
	assert.False(t, BarrierEnter.HasPayload())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "REQ_OWN", ReqOwn.String())
	assert.Equal(t, "SET_VALUE", SetValue.String())
	assert.Contains(t, Kind(255).String(), "255")
}

func TestSiteIDStable(t *testing.T) {
	a := SiteID("example.go", 42)
	b := SiteID("example.go", 42)
	assert.Equal(t, a, b)

	c := SiteID("example.go", 43)
	assert.NotEqual(t, a, c)

	d := SiteID("other.go", 42)
	assert.NotEqual(t, a, d)
}
