package ntv2

import (
	"slices"

	"github.com/smazurov/ntv2node/pkg/ntv2/buffer"
)

// GetRegisters is a batch register read. The request names the registers;
// the response lists the registers that were read successfully, which may be
// fewer than requested, and their values.
type GetRegisters struct {
	InNumRegisters  uint32
	InRegisters     buffer.Buffer
	OutNumRegisters uint32
	OutGoodRegs     buffer.Buffer
	OutValues       buffer.Buffer
}

// NewGetRegisters builds a read request for the given register numbers.
func NewGetRegisters(regs []uint32) *GetRegisters {
	g := &GetRegisters{}
	g.ResetUsing(regs)
	return g
}

// ResetUsing replaces the requested register list and clears any results.
func (g *GetRegisters) ResetUsing(regs []uint32) bool {
	g.InNumRegisters = uint32(len(regs))
	g.OutNumRegisters = 0
	n := len(regs) * 4
	if !g.InRegisters.Allocate(n, false) || !g.OutGoodRegs.Allocate(n, false) || !g.OutValues.Allocate(n, false) {
		return false
	}
	return len(regs) == 0 || g.InRegisters.PutU32s(regs, 0, false)
}

// RequestedRegisters returns the register numbers named in the request.
func (g *GetRegisters) RequestedRegisters() ([]uint32, bool) {
	n := min(int(g.InNumRegisters), g.InRegisters.ByteCount()/4)
	if n == 0 {
		return nil, g.InNumRegisters == 0
	}
	return g.InRegisters.GetU32s(0, n, false)
}

// goodCount bounds OutNumRegisters by what both result arrays can hold.
func (g *GetRegisters) goodCount() int {
	return min(int(g.OutNumRegisters), g.OutGoodRegs.ByteCount()/4, g.OutValues.ByteCount()/4)
}

// GoodRegisters returns the register numbers that were read.
func (g *GetRegisters) GoodRegisters() ([]uint32, bool) {
	n := g.goodCount()
	if n == 0 {
		return nil, g.OutNumRegisters == 0
	}
	return g.OutGoodRegs.GetU32s(0, n, false)
}

// RegisterValues returns the values read, parallel to GoodRegisters.
func (g *GetRegisters) RegisterValues() ([]uint32, bool) {
	n := g.goodCount()
	if n == 0 {
		return nil, g.OutNumRegisters == 0
	}
	return g.OutValues.GetU32s(0, n, false)
}

// RegisterValueMap returns the values read keyed by register number.
func (g *GetRegisters) RegisterValueMap() (map[uint32]uint32, bool) {
	regs, ok := g.GoodRegisters()
	if !ok {
		return nil, false
	}
	vals, ok := g.RegisterValues()
	if !ok {
		return nil, false
	}
	out := make(map[uint32]uint32, len(regs))
	for i, r := range regs {
		out[r] = vals[i]
	}
	return out, true
}

// BadRegisters returns the requested registers that were not read.
func (g *GetRegisters) BadRegisters() ([]uint32, bool) {
	req, ok := g.RequestedRegisters()
	if !ok {
		return nil, false
	}
	good, ok := g.GoodRegisters()
	if !ok {
		return nil, false
	}
	var bad []uint32
	for _, r := range req {
		if !slices.Contains(good, r) {
			bad = append(bad, r)
		}
	}
	return bad, true
}

// AddResult appends one successful read to the response.
func (g *GetRegisters) AddResult(reg, value uint32) bool {
	i := int(g.OutNumRegisters)
	if !g.OutGoodRegs.SetU32(i, reg) || !g.OutValues.SetU32(i, value) {
		return false
	}
	g.OutNumRegisters++
	return true
}

// PatchRegister replaces the value returned for a register already in the
// response.
func (g *GetRegisters) PatchRegister(reg, value uint32) bool {
	regs, ok := g.GoodRegisters()
	if !ok {
		return false
	}
	i := slices.Index(regs, reg)
	if i < 0 {
		return false
	}
	return g.OutValues.SetU32(i, value)
}

// RegInfo is one masked register write.
type RegInfo struct {
	Num   uint32
	Value uint32
	Mask  uint32
	Shift uint32
}

const regInfoSize = 16

// Apply returns the register contents after writing ri over current.
func (ri RegInfo) Apply(current uint32) uint32 {
	return current&^ri.Mask | (ri.Value<<ri.Shift)&ri.Mask
}

// SetRegisters is a batch register write. The response reports the index,
// within the request, of every write that failed.
type SetRegisters struct {
	InNumRegisters   uint32
	InRegInfos       buffer.Buffer
	OutNumFailures   uint32
	OutBadRegIndexes buffer.Buffer
}

// NewSetRegisters builds a write request.
func NewSetRegisters(infos []RegInfo) *SetRegisters {
	s := &SetRegisters{}
	s.ResetUsing(infos)
	return s
}

// ResetUsing replaces the writes and clears any results.
func (s *SetRegisters) ResetUsing(infos []RegInfo) bool {
	s.InNumRegisters = uint32(len(infos))
	s.OutNumFailures = 0
	if !s.InRegInfos.Allocate(len(infos)*regInfoSize, false) || !s.OutBadRegIndexes.Allocate(len(infos)*2, false) {
		return false
	}
	for i, ri := range infos {
		if !s.InRegInfos.PutU32s([]uint32{ri.Num, ri.Value, ri.Mask, ri.Shift}, i*4, false) {
			return false
		}
	}
	return true
}

// RegInfos returns the requested writes.
func (s *SetRegisters) RegInfos() ([]RegInfo, bool) {
	n := min(int(s.InNumRegisters), s.InRegInfos.ByteCount()/regInfoSize)
	if n == 0 {
		return nil, s.InNumRegisters == 0
	}
	words, ok := s.InRegInfos.GetU32s(0, n*4, false)
	if !ok {
		return nil, false
	}
	out := make([]RegInfo, n)
	for i := range out {
		w := words[i*4 : i*4+4]
		out[i] = RegInfo{Num: w[0], Value: w[1], Mask: w[2], Shift: w[3]}
	}
	return out, true
}

// BadRegIndexes returns the request indexes of the writes that failed.
func (s *SetRegisters) BadRegIndexes() ([]uint16, bool) {
	n := min(int(s.OutNumFailures), s.OutBadRegIndexes.ByteCount()/2)
	if n == 0 {
		return nil, s.OutNumFailures == 0
	}
	return s.OutBadRegIndexes.GetU16s(0, n, false)
}

// AddFailure records that the write at request index failed.
func (s *SetRegisters) AddFailure(index uint16) bool {
	if !s.OutBadRegIndexes.SetU16(int(s.OutNumFailures), index) {
		return false
	}
	s.OutNumFailures++
	return true
}

// BadRegInfos returns the writes that failed.
func (s *SetRegisters) BadRegInfos() ([]RegInfo, bool) {
	infos, ok := s.RegInfos()
	if !ok {
		return nil, false
	}
	idx, ok := s.BadRegIndexes()
	if !ok {
		return nil, false
	}
	out := make([]RegInfo, 0, len(idx))
	for _, i := range idx {
		if int(i) < len(infos) {
			out = append(out, infos[i])
		}
	}
	return out, true
}
