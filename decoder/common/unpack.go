package common

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Each helper consumes a fixed-width little-endian value from the front of
// input and returns it together with the remaining bytes.

func take(input []byte, n int, what string) ([]byte, []byte, error) {
	if len(input) < n {
		return nil, nil, Payloadf("%s needs %d bytes, have %d", what, n, len(input))
	}
	return input[:n], input[n:], nil
}

func UnpackU8(input []byte) (uint8, []byte, error) {
	b, rest, err := take(input, 1, "u8")
	if err != nil {
		return 0, nil, err
	}
	return b[0], rest, nil
}

func UnpackU16(input []byte) (uint16, []byte, error) {
	b, rest, err := take(input, 2, "u16")
	if err != nil {
		return 0, nil, err
	}
	return binary.LittleEndian.Uint16(b), rest, nil
}

func UnpackU32(input []byte) (uint32, []byte, error) {
	b, rest, err := take(input, 4, "u32")
	if err != nil {
		return 0, nil, err
	}
	return binary.LittleEndian.Uint32(b), rest, nil
}

func UnpackU64(input []byte) (uint64, []byte, error) {
	b, rest, err := take(input, 8, "u64")
	if err != nil {
		return 0, nil, err
	}
	return binary.LittleEndian.Uint64(b), rest, nil
}

func UnpackI64(input []byte) (int64, []byte, error) {
	v, rest, err := UnpackU64(input)
	if err != nil {
		return 0, nil, err
	}
	return int64(v), rest, nil
}

// UnpackU128 reads a 16-byte little-endian integer.
func UnpackU128(input []byte) (uint128.Uint128, []byte, error) {
	b, rest, err := take(input, 16, "u128")
	if err != nil {
		return uint128.Zero, nil, err
	}
	return uint128.FromBytes(b), rest, nil
}

// UnpackPubkey reads a raw 32-byte public key.
func UnpackPubkey(input []byte) (solana.PublicKey, []byte, error) {
	b, rest, err := take(input, solana.PublicKeyLength, "pubkey")
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	return solana.PublicKeyFromBytes(b), rest, nil
}
