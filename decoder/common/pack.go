package common

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Writer builds little-endian instruction payloads. The first failure sticks
// and is reported by Bytes, so call sites can chain writes without checks.
type Writer struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

func NewWriter() *Writer {
	buf := new(bytes.Buffer)
	return &Writer{buf: buf, enc: bin.NewBorshEncoder(buf)}
}

func (w *Writer) put(v any, field string) *Writer {
	if w.err != nil {
		return w
	}
	if err := w.enc.Encode(v); err != nil {
		w.err = fmt.Errorf("encode %s: %w", field, err)
	}
	return w
}

func (w *Writer) U8(v uint8) *Writer   { return w.put(v, "u8") }
func (w *Writer) U16(v uint16) *Writer { return w.put(v, "u16") }
func (w *Writer) U32(v uint32) *Writer { return w.put(v, "u32") }
func (w *Writer) U64(v uint64) *Writer { return w.put(v, "u64") }
func (w *Writer) I64(v int64) *Writer  { return w.put(v, "i64") }

func (w *Writer) U128(v uint128.Uint128) *Writer {
	var b [16]byte
	v.PutBytes(b[:])
	return w.Raw(b[:])
}

func (w *Writer) Pubkey(pk solana.PublicKey) *Writer {
	return w.Raw(pk[:])
}

// Raw appends bytes without a length prefix.
func (w *Writer) Raw(b []byte) *Writer {
	if w.err != nil {
		return w
	}
	if err := w.enc.WriteBytes(b, false); err != nil {
		w.err = fmt.Errorf("write bytes: %w", err)
	}
	return w
}

func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}
