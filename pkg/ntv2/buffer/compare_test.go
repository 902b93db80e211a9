package buffer

import (
	"bytes"
	"strings"
	"testing"
)

func TestIsContentEqual(t *testing.T) {
	a := Wrap([]byte{1, 2, 3, 4, 5, 6})
	b := Wrap([]byte{1, 2, 9, 4, 5, 6})

	tests := []struct {
		name         string
		other        *Buffer
		offset, size int
		want         bool
	}{
		{"prefix equal", b, 0, 2, true},
		{"suffix equal", b, 3, 3, true},
		{"covers difference", b, 0, 6, false},
		{"range past end", b, 4, 3, false},
		{"offset at end", b, 6, 0, false},
		{"size mismatch", Wrap([]byte{1, 2}), 0, 1, false},
		{"null other", &Buffer{}, 0, 1, false},
		{"same storage", a, 0, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.IsContentEqual(tt.other, tt.offset, tt.size); got != tt.want {
				t.Errorf("IsContentEqual(%d,%d) = %v, want %v", tt.offset, tt.size, got, tt.want)
			}
		})
	}
}

func TestFindAll(t *testing.T) {
	hay := Wrap([]byte{7, 1, 2, 7, 1, 2, 0, 7, 1})
	needle := Wrap([]byte{7, 1})
	got := hay.FindAll(needle)
	// Offset 7 is the final candidate and is not examined.
	want := []int{0, 3}
	if len(got) != len(want) {
		t.Fatalf("FindAll = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FindAll[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if res := needle.FindAll(hay); len(res) != 0 {
		t.Errorf("needle larger than haystack found %v", res)
	}
}

func TestNextDifference(t *testing.T) {
	a := Wrap([]byte{1, 2, 3, 4})
	b := Wrap([]byte{1, 0, 3, 0})

	off, ok := a.NextDifference(b, 0)
	if !ok || off != 1 {
		t.Errorf("first difference = %d, %v", off, ok)
	}
	off, ok = a.NextDifference(b, 2)
	if !ok || off != 3 {
		t.Errorf("second difference = %d, %v", off, ok)
	}
	c := Wrap([]byte{1, 2, 3, 4})
	off, ok = a.NextDifference(c, 0)
	if !ok || off != NoDifference {
		t.Errorf("identical content = %d, %v", off, ok)
	}
	if _, ok := a.NextDifference(b, 4); ok {
		t.Error("offset at end should fail")
	}
}

func TestGetRingChangedByteRange(t *testing.T) {
	tests := []struct {
		name        string
		a, b        []byte
		first, last int
		ok          bool
	}{
		{"identical", []byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}, 4, 4, true},
		{"middle change", []byte{1, 2, 3, 4, 5}, []byte{1, 9, 9, 4, 5}, 1, 2, true},
		{"too small", []byte{1, 2}, []byte{2, 1}, 2, 2, false},
		{"size mismatch", []byte{1, 2, 3}, []byte{1, 2, 3, 4}, 3, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, ok := Wrap(tt.a).GetRingChangedByteRange(Wrap(tt.b))
			if ok != tt.ok || first != tt.first || last != tt.last {
				t.Errorf("got (%d,%d,%v), want (%d,%d,%v)", first, last, ok, tt.first, tt.last, tt.ok)
			}
		})
	}
}

func TestGetRingChangedByteRangeWrap(t *testing.T) {
	// Changes at both ends of the ring: the changed span wraps around.
	a := Wrap([]byte{9, 9, 3, 4, 5, 6, 9, 9})
	b := Wrap([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	first, last, ok := a.GetRingChangedByteRange(b)
	if !ok {
		t.Fatal("wrap case should succeed")
	}
	if first <= last {
		t.Errorf("wrapped range should have first > last, got first=%d last=%d", first, last)
	}
}

func TestDumpAndAsString(t *testing.T) {
	b := Wrap([]byte("AJA ntv2 buffer!"))
	var out bytes.Buffer
	if err := b.Dump(&out, 0, 0); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(out.String(), "|AJA ntv2 buffer!|") {
		t.Errorf("Dump missing ASCII column: %q", out.String())
	}
	if s := b.AsString(3); !strings.HasSuffix(s, "16 bytes:414A41") {
		t.Errorf("AsString(3) = %q", s)
	}
	code := Wrap([]byte{1, 0, 0, 0}).AsCode(4, "regs", false)
	if !strings.HasPrefix(code, "regs := []uint32{") {
		t.Errorf("AsCode = %q", code)
	}
}
