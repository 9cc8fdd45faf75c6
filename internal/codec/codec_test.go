package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("x"),
		bytes.Repeat([]byte("abc"), 500),
		bytes.Repeat([]byte{0xff}, 10), // short, likely incompressible under lz4
	}

	for _, c := range []Codec{None, Snappy, LZ4} {
		for _, in := range inputs {
			encoded, err := Encode(c, nil, in)
			require.NoError(t, err, "codec=%s", c)
			decoded, err := Decode(c, encoded)
			require.NoError(t, err, "codec=%s", c)
			require.True(t, bytes.Equal(in, decoded), "codec=%s: got %v want %v", c, decoded, in)
		}
	}
}

func TestParseCodec(t *testing.T) {
	cases := map[string]Codec{"": None, "none": None, "snappy": Snappy, "lz4": LZ4}
	for s, want := range cases {
		got, err := ParseCodec(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseCodec("zstd")
	require.Error(t, err)
}
