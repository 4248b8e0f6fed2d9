package common

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func TestUnpackIntegers(t *testing.T) {
	input := []byte{
		0x7f,
		0x34, 0x12,
		0x78, 0x56, 0x34, 0x12,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xAA,
	}

	u8, rest, err := UnpackU8(input)
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), u8)

	u16, rest, err := UnpackU16(rest)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), u16)

	u32, rest, err := UnpackU32(rest)
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), u32)

	u64, rest, err := UnpackU64(rest)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), u64)

	i64, rest, err := UnpackI64(rest)
	require.NoError(t, err)
	require.Equal(t, int64(-1), i64)

	require.Equal(t, []byte{0xAA}, rest)
}

func TestUnpackShortInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		fn    func([]byte) error
	}{
		{"u8 empty", nil, func(b []byte) error { _, _, err := UnpackU8(b); return err }},
		{"u16 one byte", []byte{1}, func(b []byte) error { _, _, err := UnpackU16(b); return err }},
		{"u32 three bytes", []byte{1, 2, 3}, func(b []byte) error { _, _, err := UnpackU32(b); return err }},
		{"u64 seven bytes", make([]byte, 7), func(b []byte) error { _, _, err := UnpackU64(b); return err }},
		{"i64 empty", nil, func(b []byte) error { _, _, err := UnpackI64(b); return err }},
		{"u128 fifteen bytes", make([]byte, 15), func(b []byte) error { _, _, err := UnpackU128(b); return err }},
		{"pubkey 31 bytes", make([]byte, 31), func(b []byte) error { _, _, err := UnpackPubkey(b); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestUnpackU128AndPubkey(t *testing.T) {
	raw := make([]byte, 16+32+2)
	raw[0] = 0x01
	raw[8] = 0x02
	key := solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	copy(raw[16:], key[:])
	raw[48], raw[49] = 0xde, 0xad

	v, rest, err := UnpackU128(raw)
	require.NoError(t, err)
	require.Equal(t, uint128.New(1, 2), v)

	pk, rest, err := UnpackPubkey(rest)
	require.NoError(t, err)
	require.True(t, pk.Equals(key))
	require.Equal(t, []byte{0xde, 0xad}, rest)
}

func TestWriterMatchesUnpack(t *testing.T) {
	key := solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	out, err := NewWriter().
		U8(9).
		U16(513).
		U32(70000).
		U64(1_000_000_007).
		I64(-42).
		U128(uint128.New(5, 6)).
		Pubkey(key).
		Bytes()
	require.NoError(t, err)
	require.Len(t, out, 1+2+4+8+8+16+32)

	u8, rest, _ := UnpackU8(out)
	u16, rest, _ := UnpackU16(rest)
	u32, rest, _ := UnpackU32(rest)
	u64, rest, _ := UnpackU64(rest)
	i64, rest, _ := UnpackI64(rest)
	u128v, rest, _ := UnpackU128(rest)
	pk, rest, err := UnpackPubkey(rest)
	require.NoError(t, err)
	require.Empty(t, rest)

	require.Equal(t, uint8(9), u8)
	require.Equal(t, uint16(513), u16)
	require.Equal(t, uint32(70000), u32)
	require.Equal(t, uint64(1_000_000_007), u64)
	require.Equal(t, int64(-42), i64)
	require.Equal(t, uint128.New(5, 6), u128v)
	require.True(t, pk.Equals(key))
}
