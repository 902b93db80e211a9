package buffer

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unsafe"
)

const maxAsStringBytes = 256

// String renders the buffer address and size. Owned buffers use an upper-case
// "0X" prefix.
func (b *Buffer) String() string {
	prefix := "0x"
	if b.IsAllocatedBySDK() {
		prefix = "0X"
	}
	return fmt.Sprintf("%s%016X/%d", prefix, b.address(), b.ByteCount())
}

// AsString renders the buffer address, size and up to maxBytes leading bytes
// in hex (capped at 256).
func (b *Buffer) AsString(maxBytes int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "0x%016X:%d bytes", b.address(), b.ByteCount())
	if maxBytes > 0 && !b.IsNULL() {
		if maxBytes > maxAsStringBytes {
			maxBytes = maxAsStringBytes
		}
		if maxBytes > len(b.data) {
			maxBytes = len(b.data)
		}
		sb.WriteByte(':')
		sb.WriteString(strings.ToUpper(hex.EncodeToString(b.data[:maxBytes])))
	}
	return sb.String()
}

// HexString renders the content as upper-case hex, inserting a newline every
// lineBreak bytes when lineBreak is non-zero.
func (b *Buffer) HexString(lineBreak int) string {
	if b.IsNULL() {
		return ""
	}
	var sb strings.Builder
	for i, c := range b.data {
		fmt.Fprintf(&sb, "%02X", c)
		if lineBreak > 0 && i+1 < len(b.data) && (i+1)%lineBreak == 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// SetFromHexString replaces the content with the bytes encoded in s. Newlines
// and tabs are ignored; any other non-hex character fails.
func (b *Buffer) SetFromHexString(s string) bool {
	s = strings.NewReplacer("\n", "", "\t", "").Replace(s)
	if len(s)%2 != 0 {
		return false
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	if len(decoded) == 0 {
		return b.Set(nil, 0)
	}
	if !b.Allocate(len(decoded), false) {
		return false
	}
	copy(b.data, decoded)
	return true
}

// Dump writes a hex dump of byteCount bytes starting at startOffset
// (0 means through the end) in the canonical offset/hex/ASCII layout.
func (b *Buffer) Dump(w io.Writer, startOffset, byteCount int) error {
	if b.IsNULL() || startOffset < 0 || startOffset >= len(b.data) {
		return nil
	}
	end := len(b.data)
	if byteCount > 0 && startOffset+byteCount < end {
		end = startOffset + byteCount
	}
	d := hex.Dumper(w)
	if _, err := d.Write(b.data[startOffset:end]); err != nil {
		return err
	}
	return d.Close()
}

// AsCode renders the content as a Go slice literal of bytesPerWord-sized
// words (1, 2, 4 or 8), optionally byte-swapping each word first.
func (b *Buffer) AsCode(bytesPerWord int, varName string, byteSwap bool) string {
	goType := map[int]string{1: "uint8", 2: "uint16", 4: "uint32", 8: "uint64"}[bytesPerWord]
	if goType == "" {
		return ""
	}
	if varName == "" {
		varName = "tmpSlice"
	}
	tmp := b.Clone()
	if byteSwap {
		switch bytesPerWord {
		case 2:
			tmp.ByteSwap16()
		case 4:
			tmp.ByteSwap32()
		case 8:
			tmp.ByteSwap64()
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s := []%s{\n", varName, goType)
	numWords := tmp.ByteCount() / bytesPerWord
	for i := 0; i < numWords; i++ {
		switch bytesPerWord {
		case 1:
			fmt.Fprintf(&sb, "0x%02X", tmp.data[i])
		case 2:
			fmt.Fprintf(&sb, "0x%04X", tmp.U16(i))
		case 4:
			fmt.Fprintf(&sb, "0x%08X", tmp.U32(i))
		case 8:
			v, _ := tmp.GetU64s(i, 1, false)
			fmt.Fprintf(&sb, "0x%016X", v[0])
		}
		if i+1 < numWords {
			sb.WriteByte(',')
		}
		if (i+1)%128 == 0 {
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (b *Buffer) address() uintptr {
	if b.IsNULL() {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.data[0]))
}
