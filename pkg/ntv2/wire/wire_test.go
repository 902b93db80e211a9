package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncoderBigEndianLayout(t *testing.T) {
	e := NewEncoder(Order, 0)
	e.U8(0x01)
	e.U16(0x0203)
	e.U32(0x04050607)
	e.U64(0x08090A0B0C0D0E0F)
	e.Bool(true)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 1}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("encoded = %v, want %v", e.Bytes(), want)
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	for _, order := range []ByteOrder{binary.BigEndian, binary.LittleEndian} {
		e := NewEncoder(order, 32)
		e.U16(0xBEEF)
		e.U32(0xDEADBEEF)
		e.U64(0x0123456789ABCDEF)
		e.Raw([]byte("ntv2"))

		d := NewDecoder(order, e.Bytes())
		if v := d.U16(); v != 0xBEEF {
			t.Errorf("%v U16 = %#x", order, v)
		}
		if v := d.U32(); v != 0xDEADBEEF {
			t.Errorf("%v U32 = %#x", order, v)
		}
		if v := d.U64(); v != 0x0123456789ABCDEF {
			t.Errorf("%v U64 = %#x", order, v)
		}
		if v := string(d.Raw(4)); v != "ntv2" {
			t.Errorf("%v Raw = %q", order, v)
		}
		if d.Err() != nil || d.Remaining() != 0 {
			t.Errorf("%v err=%v remaining=%d", order, d.Err(), d.Remaining())
		}
	}
}

func TestDecoderStickyError(t *testing.T) {
	d := NewDecoder(Order, []byte{0, 1, 2})
	_ = d.U16()
	if v := d.U32(); v != 0 {
		t.Errorf("truncated U32 = %#x, want 0", v)
	}
	if !errors.Is(d.Err(), ErrShortBuffer) {
		t.Fatalf("Err() = %v, want ErrShortBuffer", d.Err())
	}
	if v := d.U8(); v != 0 {
		t.Errorf("read after failure = %d, want 0", v)
	}
	if d.Pos() != 2 {
		t.Errorf("Pos() = %d, want 2", d.Pos())
	}
}

func TestEncoderPatchU32(t *testing.T) {
	e := NewEncoder(Order, 8)
	e.U32(0)
	e.U32(7)
	if !e.PatchU32(0, uint32(e.Len())) {
		t.Fatal("PatchU32 within message failed")
	}
	if got := binary.BigEndian.Uint32(e.Bytes()); got != 8 {
		t.Errorf("patched word = %d, want 8", got)
	}
	if e.PatchU32(6, 1) {
		t.Error("PatchU32 past the end should fail")
	}
}
