package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositionRoundTrip(t *testing.T) {
	for _, p := range []uint64{0, 1, 255, 256, 1 << 40} {
		b := EncodePosition(p)
		require.Len(t, b, PositionLen)
		got, err := DecodePosition(b)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestPositionKeysSortNumerically(t *testing.T) {
	a := EncodePosition(1)
	b := EncodePosition(2)
	c := EncodePosition(256)
	require.True(t, string(a) < string(b))
	require.True(t, string(b) < string(c))
}

func TestIdentifierIndexKeyRoundTrip(t *testing.T) {
	key := EncodeIdentifierIndexKey(42, 7, 100)
	hash, version, position, err := DecodeIdentifierIndexKey(key)
	require.NoError(t, err)
	require.Equal(t, uint64(42), hash)
	require.Equal(t, uint64(7), version)
	require.Equal(t, uint64(100), position)
}

func TestTagIndexKeySortsByPositionWithinHash(t *testing.T) {
	a := EncodeTagIndexKey(5, 1)
	b := EncodeTagIndexKey(5, 2)
	c := EncodeTagIndexKey(6, 0)
	require.True(t, string(a) < string(b))
	require.True(t, string(b) < string(c))
}

func TestEventValueRoundTrip(t *testing.T) {
	v := EventValue{
		Version:        3,
		Timestamp:      1234567,
		IdentifierHash: 99,
		TagHashes:      []uint64{1, 2, 3},
		Data:           []byte("hello world"),
	}
	encoded := EncodeEventValue(v)
	decoded, err := DecodeEventValue(encoded)
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}

func TestEventValueRoundTripEmptyTagsOneByteData(t *testing.T) {
	v := EventValue{Version: 0, Timestamp: 0, IdentifierHash: 1, TagHashes: nil, Data: []byte{0}}
	decoded, err := DecodeEventValue(EncodeEventValue(v))
	require.NoError(t, err)
	require.Equal(t, 0, len(decoded.TagHashes))
	require.Equal(t, v.Data, decoded.Data)
}

func TestDecodeEventValueRejectsTruncatedInput(t *testing.T) {
	v := EventValue{Version: 1, Timestamp: 1, IdentifierHash: 1, TagHashes: []uint64{1}, Data: []byte("x")}
	encoded := EncodeEventValue(v)
	_, err := DecodeEventValue(encoded[:len(encoded)-2])
	require.Error(t, err)
}

func TestDecodeEventValueRejectsShortHeader(t *testing.T) {
	_, err := DecodeEventValue([]byte{1, 2, 3})
	require.Error(t, err)
}
