package stream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deflateRaw(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func deflateZlib(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeStrategies(t *testing.T) {
	payload := bytes.Repeat([]byte("국어 지문 텍스트 "), 50)

	tests := []struct {
		name         string
		raw          []byte
		compressed   bool
		wantData     []byte
		wantStrategy string
	}{
		{"uncompressed passes through", payload, false, payload, NameRaw},
		{"raw deflate", deflateRaw(t, payload), true, payload, NameRawInflate},
		{"zlib framed falls back", deflateZlib(t, payload), true, payload, NameZlibInflate},
		{"plain bytes flagged compressed", []byte{0xFF, 0xFF, 0xFF, 0xFF}, true, []byte{0xFF, 0xFF, 0xFF, 0xFF}, NameRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw, tt.compressed)
			assert.Equal(t, tt.wantStrategy, got.Strategy)
			assert.Equal(t, tt.wantData, got.Data)
		})
	}
}

func TestDecodeTruncatedDeflateFallsBackToRaw(t *testing.T) {
	full := deflateRaw(t, bytes.Repeat([]byte("abcdefgh"), 1000))
	truncated := full[:len(full)/2]

	got := Decode(truncated, true)
	assert.Equal(t, NameRaw, got.Strategy)
	assert.Equal(t, truncated, got.Data)
	assert.Len(t, got.Attempts, 2)
}

func TestDecoderCustomChainOrder(t *testing.T) {
	failing := Strategy{Name: "always-fails", Decode: func([]byte) ([]byte, error) { return nil, errors.New("nope") }}
	upper := Strategy{Name: "upper", Decode: func(b []byte) ([]byte, error) { return bytes.ToUpper(b), nil }}

	got := NewDecoder([]Strategy{failing, upper}).Decode([]byte("abc"), true)
	assert.Equal(t, "upper", got.Strategy)
	assert.Equal(t, []byte("ABC"), got.Data)
	require.Len(t, got.Attempts, 1)
	assert.Contains(t, got.Attempts[0].Error(), "always-fails")
}
