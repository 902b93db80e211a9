package device

import (
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// registerFile is the emulated register space. Read-only registers reject
// external writes but are still updated by the device itself.
type registerFile struct {
	values   []uint32
	readOnly map[uint32]bool
}

func newRegisterFile(n int, boardID uint32) *registerFile {
	r := &registerFile{
		values: make([]uint32, n),
		readOnly: map[uint32]bool{
			ntv2.RegStatus:  true,
			ntv2.RegBoardID: true,
		},
	}
	r.set(ntv2.RegBoardID, boardID)
	return r
}

func (r *registerFile) read(num uint32) (uint32, bool) {
	if int(num) >= len(r.values) {
		return 0, false
	}
	return r.values[num], true
}

// write applies a masked, shifted write coming from a client.
func (r *registerFile) write(ri ntv2.RegInfo) bool {
	if int(ri.Num) >= len(r.values) || r.readOnly[ri.Num] {
		return false
	}
	r.values[ri.Num] = ri.Apply(r.values[ri.Num])
	return true
}

// set stores a device-owned value.
func (r *registerFile) set(num, value uint32) {
	if int(num) < len(r.values) {
		r.values[num] = value
	}
}

func (r *registerFile) setBits(num, mask uint32, on bool) {
	v, ok := r.read(num)
	if !ok {
		return
	}
	if on {
		v |= mask
	} else {
		v &^= mask
	}
	r.values[num] = v
}
